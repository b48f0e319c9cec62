package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"slack-relay/handler"
	"slack-relay/internal/app"
	"slack-relay/internal/config"
	"slack-relay/internal/logger"
	"slack-relay/internal/worker"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("slack-relay", "production", "info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.ServiceName, cfg.Environment, cfg.LogLevel)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load AWS config")
		os.Exit(1)
	}

	// The runtime freezes once the response is returned, so turns run inline.
	relay, err := app.Build(ctx, cfg, log, app.Options{AWS: awsCfg, Scheduler: worker.NewInline(log)})
	if err != nil {
		log.Error().Err(err).Msg("failed to assemble relay")
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(relay.Relay, installer(relay), log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create handler")
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// installer avoids handing a typed nil pointer to the handler.
func installer(a *app.App) handler.Installer {
	if a.Install == nil {
		return nil
	}
	return a.Install
}
