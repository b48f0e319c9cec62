package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds the environment driven configuration for both entrypoints.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"slack-relay"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"dynamodb"`
	StateTable   string `env:"STATE_TABLE"`
	DatabaseURL  string `env:"DATABASE_URL"`
	BoltPath     string `env:"BOLT_PATH" envDefault:"data/relay.bolt"`
	ParamPrefix  string `env:"PARAM_PREFIX,required"`

	MaxContextItems       int           `env:"MAX_CONTEXT_ITEMS" envDefault:"5"`
	CompletionProvider    string        `env:"COMPLETION_PROVIDER" envDefault:"gemini"`
	CompletionModel       string        `env:"COMPLETION_MODEL"`
	CompletionEndpoint    string        `env:"COMPLETION_ENDPOINT"`
	CompletionTemperature float64       `env:"COMPLETION_TEMPERATURE"`
	CompletionTimeout     time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"20s"`
	DispatchTimeout       time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"10s"`

	SlackBotUserID   string `env:"SLACK_BOT_USER_ID"`
	SlackClientID    string `env:"SLACK_CLIENT_ID"`
	SlackRedirectURI string `env:"SLACK_REDIRECT_URI"`
	SlackAPIBase     string `env:"SLACK_API_BASE" envDefault:"https://slack.com/api/"`

	WorkerCount     int           `env:"WORKER_COUNT" envDefault:"4"`
	WorkerQueueSize int           `env:"WORKER_QUEUE_SIZE" envDefault:"64"`
	TaskTimeout     time.Duration `env:"TASK_TIMEOUT" envDefault:"60s"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.CompletionProvider = strings.ToLower(strings.TrimSpace(c.CompletionProvider))
	c.ParamPrefix = strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	if c.ParamPrefix == "" {
		return fmt.Errorf("PARAM_PREFIX must not be empty")
	}

	switch c.StoreBackend {
	case BackendDynamoDB:
		if strings.TrimSpace(c.StateTable) == "" {
			return fmt.Errorf("STATE_TABLE is required when STORE_BACKEND is dynamodb")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	case BackendBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return fmt.Errorf("BOLT_PATH is required when STORE_BACKEND is bolt")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}

	if c.CompletionProvider == "" {
		c.CompletionProvider = ProviderGemini
	}
	if c.CompletionTemperature < 0 {
		return fmt.Errorf("COMPLETION_TEMPERATURE must not be negative")
	}
	if c.MaxContextItems <= 0 {
		c.MaxContextItems = 5
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = 20 * time.Second
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.WorkerQueueSize < 0 {
		c.WorkerQueueSize = 0
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// OAuthEnabled reports whether the install flow can run.
func (c *Config) OAuthEnabled() bool {
	return strings.TrimSpace(c.SlackClientID) != ""
}
