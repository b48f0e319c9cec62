package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slack-relay/internal/domain"
	"slack-relay/internal/integrations/paramstore"
	"slack-relay/internal/metrics"
)

const (
	DefaultSystemPrompt = "You are a helpful Slack bot. Keep responses short."

	defaultMaxContext        = 5
	defaultCompletionTimeout = 20 * time.Second
	systemPromptParameter    = "system_prompt"
)

// Pipeline stages, used in logs and metrics.
const (
	stagePersisting      = "persisting"
	stageContextBuilding = "context_building"
	stageCompleting      = "completing"
	stageDispatching     = "dispatching"
	stagePersistingReply = "persisting_reply"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Verifier interface {
	Verify(ctx context.Context, timestamp string, body []byte, signature string) (bool, error)
}

type Classifier interface {
	Classify(body []byte) domain.InboundEvent
}

type TurnStore interface {
	Append(ctx context.Context, turn domain.Turn) error
	RecentWindow(ctx context.Context, key domain.ThreadKey, limit int) ([]domain.Turn, error)
}

type CompletionProvider interface {
	Complete(ctx context.Context, system string, messages []domain.ChatMessage) (string, error)
}

// Scheduler runs a turn task either inline or on a background worker.
type Scheduler interface {
	Submit(ctx context.Context, name string, run func(ctx context.Context) error) error
}

type Dependencies struct {
	Verifier   Verifier
	Classifier Classifier
	Turns      TurnStore
	Completion CompletionProvider
	Dispatcher *ReplyDispatcher
	Scheduler  Scheduler
	// Params is optional; without it the built-in system prompt is used.
	Params ParamGetter
}

type Config struct {
	MaxContextItems   int
	CompletionTimeout time.Duration
}

type RelayService struct {
	verifier   Verifier
	classifier Classifier
	turns      TurnStore
	completion CompletionProvider
	dispatcher *ReplyDispatcher
	scheduler  Scheduler
	params     ParamGetter

	maxContextItems   int
	completionTimeout time.Duration
	log               zerolog.Logger
	now               func() time.Time

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	systemPrompt string
}

type EventInput struct {
	Timestamp string
	Signature string
	Body      []byte
}

type EventOutput struct {
	Handshake bool
	Challenge string
}

func NewRelayService(deps Dependencies, cfg Config, log zerolog.Logger) (*RelayService, error) {
	switch {
	case deps.Verifier == nil:
		return nil, errors.New("usecase: verifier must not be nil")
	case deps.Classifier == nil:
		return nil, errors.New("usecase: classifier must not be nil")
	case deps.Turns == nil:
		return nil, errors.New("usecase: turn store must not be nil")
	case deps.Completion == nil:
		return nil, errors.New("usecase: completion provider must not be nil")
	case deps.Dispatcher == nil:
		return nil, errors.New("usecase: reply dispatcher must not be nil")
	case deps.Scheduler == nil:
		return nil, errors.New("usecase: scheduler must not be nil")
	}
	if cfg.MaxContextItems <= 0 {
		cfg.MaxContextItems = defaultMaxContext
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = defaultCompletionTimeout
	}
	return &RelayService{
		verifier:          deps.Verifier,
		classifier:        deps.Classifier,
		turns:             deps.Turns,
		completion:        deps.Completion,
		dispatcher:        deps.Dispatcher,
		scheduler:         deps.Scheduler,
		params:            deps.Params,
		maxContextItems:   cfg.MaxContextItems,
		completionTimeout: cfg.CompletionTimeout,
		log:               log.With().Str("component", "relay").Logger(),
		now:               time.Now,
	}, nil
}

// HandleEvent authenticates and classifies one inbound callback. Turns are
// handed to the scheduler; their failures never reach the caller.
func (s *RelayService) HandleEvent(ctx context.Context, in EventInput) (EventOutput, error) {
	ok, err := s.verifier.Verify(ctx, in.Timestamp, in.Body, in.Signature)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("rejected").Inc()
		s.log.Error().Err(err).Msg("signing secret unavailable")
		return EventOutput{}, newError(ErrorAuthenticationFailed, "signing_secret_unavailable", err)
	}
	if !ok {
		metrics.EventsTotal.WithLabelValues("rejected").Inc()
		s.log.Warn().Str("timestamp", in.Timestamp).Msg("invalid request signature")
		return EventOutput{}, newError(ErrorAuthenticationFailed, "invalid_signature", nil)
	}

	ev := s.classifier.Classify(in.Body)
	switch ev.Kind {
	case domain.EventHandshake:
		metrics.EventsTotal.WithLabelValues("handshake").Inc()
		return EventOutput{Handshake: true, Challenge: ev.Challenge}, nil
	case domain.EventTurn:
	default:
		metrics.EventsTotal.WithLabelValues("ignored").Inc()
		s.log.Debug().Str("reason", ev.Reason).Msg("event ignored")
		return EventOutput{}, nil
	}

	log := s.turnLogger(ev)
	taskCtx := log.WithContext(ctx)
	if err := s.scheduler.Submit(taskCtx, "relay_turn", func(ctx context.Context) error {
		return s.ProcessTurn(ctx, ev)
	}); err != nil {
		metrics.EventsTotal.WithLabelValues("dropped").Inc()
		log.Error().Err(err).Msg("could not schedule turn")
		return EventOutput{}, nil
	}
	metrics.EventsTotal.WithLabelValues("accepted").Inc()
	return EventOutput{}, nil
}

// ProcessTurn runs the conversational pipeline for one classified turn. The
// inbound turn stays persisted whatever happens after it is written.
func (s *RelayService) ProcessTurn(ctx context.Context, ev domain.InboundEvent) error {
	if ev.Kind != domain.EventTurn {
		return newError(ErrorInvalidInput, "not_a_turn", nil)
	}
	log := s.turnLogger(ev)

	inbound := domain.Turn{
		ID:         newUUID(),
		TenantID:   ev.TenantID,
		Channel:    ev.Channel,
		ThreadRoot: ev.ThreadRoot,
		TurnTS:     ev.TurnTS,
		Role:       domain.RoleUser,
		AuthorID:   ev.AuthorID,
		Text:       ev.Text,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.turns.Append(ctx, inbound); err != nil {
		if errors.Is(err, domain.ErrDuplicateTurn) {
			metrics.DuplicateTurnsTotal.Inc()
			log.Info().Str("turn_ts", ev.TurnTS).Msg("turn already recorded, skipping redelivery")
			return nil
		}
		return s.fail(log, stagePersisting, newError(ErrorInternal, "persist_inbound_error", err))
	}

	system, err := s.ensureConfig(ctx)
	if err != nil {
		return s.fail(log, stageContextBuilding, newError(ErrorInternal, "ssm_load_error", err))
	}
	window, err := s.turns.RecentWindow(ctx, ev.Thread(), s.maxContextItems+1)
	if err != nil {
		return s.fail(log, stageContextBuilding, newError(ErrorInternal, "read_window_error", err))
	}
	messages := AssembleContext(inbound, window, s.maxContextItems)

	reply, err := s.complete(ctx, system, messages)
	if err != nil {
		return s.fail(log, stageCompleting, err)
	}

	delivery, err := s.dispatcher.Post(ctx, ev.TenantID, ev.Channel, ev.ReplyThread(), reply)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(strings.ToLower(string(CodeOf(err)))).Inc()
		return s.fail(log, stageDispatching, err)
	}
	metrics.DispatchTotal.WithLabelValues("delivered").Inc()

	outbound := domain.Turn{
		ID:         newUUID(),
		TenantID:   ev.TenantID,
		Channel:    ev.Channel,
		ThreadRoot: ev.ThreadRoot,
		TurnTS:     delivery.TS,
		Role:       domain.RoleAssistant,
		AuthorID:   delivery.BotUserID,
		Text:       reply,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.turns.Append(ctx, outbound); err != nil {
		return s.fail(log, stagePersistingReply, newError(ErrorInternal, "persist_reply_error", err))
	}

	log.Info().
		Int("context_messages", len(messages)).
		Str("delivery_ts", delivery.TS).
		Msg("reply delivered")
	return nil
}

func (s *RelayService) complete(ctx context.Context, system string, messages []domain.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.completionTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.completion.Complete(ctx, system, messages)
	if err != nil {
		metrics.CompletionDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return "", newError(ErrorCompletionFailed, "provider_error", err)
	}
	metrics.CompletionDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", newError(ErrorCompletionFailed, "empty_reply", nil)
	}
	return reply, nil
}

func (s *RelayService) fail(log zerolog.Logger, stage string, err error) error {
	code := CodeOf(err)
	metrics.PipelineFailuresTotal.WithLabelValues(stage, string(code)).Inc()
	log.Error().Err(err).Str("stage", stage).Str("code", string(code)).Msg("turn pipeline failed")
	return err
}

func (s *RelayService) turnLogger(ev domain.InboundEvent) zerolog.Logger {
	return s.log.With().
		Str("tenant", ev.TenantID).
		Str("channel", ev.Channel).
		Str("thread_root", ev.ThreadRoot).
		Logger()
}

func (s *RelayService) ensureConfig(ctx context.Context) (string, error) {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		prompt := s.systemPrompt
		s.cacheMu.RUnlock()
		return prompt, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return s.systemPrompt, nil
	}

	prompt := DefaultSystemPrompt
	if s.params != nil {
		p, err := paramstore.TextOrDefault(ctx, s.params, systemPromptParameter, DefaultSystemPrompt)
		if err != nil {
			return "", err
		}
		prompt = strings.TrimSpace(p)
	}
	s.systemPrompt = prompt
	s.cacheLoaded = true
	return prompt, nil
}

var newUUID = func() string {
	return uuid.Must(uuid.NewV7()).String()
}
