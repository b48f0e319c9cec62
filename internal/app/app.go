// Package app assembles the relay from configuration. Both entrypoints share
// it and differ only in how turns are scheduled and how requests arrive.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"slack-relay/internal/config"
	"slack-relay/internal/integrations/openai"
	"slack-relay/internal/integrations/paramstore"
	"slack-relay/internal/integrations/slack"
	"slack-relay/internal/integrations/uniai"
	"slack-relay/internal/repository"
	"slack-relay/internal/repository/boltdb"
	"slack-relay/internal/repository/postgres"
	"slack-relay/internal/usecase"
)

// Store is what every persistence backend provides.
type Store interface {
	usecase.TurnStore
	usecase.CredentialStore
}

// Options carries the collaborators that differ per entrypoint or test.
type Options struct {
	// AWS is used for SSM and DynamoDB unless Params overrides the former.
	AWS    aws.Config
	Params paramstore.Getter

	Scheduler  usecase.Scheduler
	HTTPClient *http.Client
}

type App struct {
	Relay *usecase.RelayService
	// Install is nil when the OAuth flow is not configured.
	Install *usecase.InstallService
	Store   Store

	closers []func() error
}

// Build wires every component named by cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("app: scheduler must not be nil")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	params := opts.Params
	if params == nil {
		ps, err := paramstore.New(awsssm.NewFromConfig(opts.AWS), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("app: paramstore: %w", err)
		}
		params = ps
	}

	a := &App{}
	store, err := a.openStore(ctx, cfg, log, opts.AWS)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = store

	completion, err := newCompletion(cfg, params, opts.HTTPClient)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	verifier, err := slack.NewSecretVerifier(params)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: verifier: %w", err)
	}
	messenger := slack.NewMessenger(slack.WithAPIBase(cfg.SlackAPIBase), slack.WithHTTPClient(opts.HTTPClient))
	dispatcher, err := usecase.NewReplyDispatcher(store, messenger, cfg.DispatchTimeout)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: dispatcher: %w", err)
	}

	a.Relay, err = usecase.NewRelayService(usecase.Dependencies{
		Verifier:   verifier,
		Classifier: slack.NewClassifier(cfg.SlackBotUserID),
		Turns:      store,
		Completion: completion,
		Dispatcher: dispatcher,
		Scheduler:  opts.Scheduler,
		Params:     params,
	}, usecase.Config{
		MaxContextItems:   cfg.MaxContextItems,
		CompletionTimeout: cfg.CompletionTimeout,
	}, log)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: relay: %w", err)
	}

	if cfg.OAuthEnabled() {
		oauth, err := slack.NewOAuth(cfg.SlackClientID, cfg.SlackRedirectURI, params, opts.HTTPClient)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: oauth: %w", err)
		}
		a.Install, err = usecase.NewInstallService(oauth, store, log)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: install: %w", err)
		}
	}

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("completion", completionName(completion, cfg.CompletionProvider)).
		Bool("oauth", a.Install != nil).
		Msg("relay assembled")
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger, awsCfg aws.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, fmt.Errorf("app: dynamodb store: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		db, err := postgres.Connect(postgres.Config{DSN: cfg.DatabaseURL, MaxOpenConns: cfg.WorkerCount * 2})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		if err := postgres.AutoMigrate(ctx, db, log); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		store, err := postgres.New(db)
		if err != nil {
			return nil, fmt.Errorf("app: postgres store: %w", err)
		}
		return store, nil
	case config.BackendBolt:
		store, err := boltdb.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	}
	return nil, fmt.Errorf("app: unsupported store backend %q", cfg.StoreBackend)
}

// newCompletion picks go-openai for the openai provider and uniai for every
// other provider name.
func newCompletion(cfg *config.Config, params paramstore.Getter, httpClient *http.Client) (usecase.CompletionProvider, error) {
	if cfg.CompletionProvider == config.ProviderOpenAI {
		opts := []openai.Option{openai.WithHTTPClient(httpClient)}
		if cfg.CompletionEndpoint != "" {
			opts = append(opts, openai.WithBaseURL(cfg.CompletionEndpoint))
		}
		if cfg.CompletionModel != "" {
			opts = append(opts, openai.WithModel(cfg.CompletionModel))
		}
		c, err := openai.NewClient(params, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: completion: %w", err)
		}
		return c, nil
	}

	c, err := uniai.New(uniai.Config{
		Provider:       cfg.CompletionProvider,
		Endpoint:       cfg.CompletionEndpoint,
		Model:          cfg.CompletionModel,
		Temperature:    cfg.CompletionTemperature,
		RequestTimeout: cfg.CompletionTimeout,
	}, params)
	if err != nil {
		return nil, fmt.Errorf("app: completion: %w", err)
	}
	return c, nil
}

func completionName(c usecase.CompletionProvider, fallback string) string {
	if u, ok := c.(*uniai.Client); ok {
		return "uniai/" + u.Provider()
	}
	return fallback
}

// Close releases store handles in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
