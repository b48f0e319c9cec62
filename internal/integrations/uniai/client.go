// Package uniai adapts the multi-provider uniai client (Gemini, Anthropic,
// Azure, OpenAI-compatible endpoints) to the relay's completion contract.
package uniai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uniaiapi "github.com/quailyquaily/uniai"

	"slack-relay/internal/domain"
	"slack-relay/internal/integrations/paramstore"
)

const (
	defaultProvider = "gemini"
	tokenParameter  = "llm-token"
)

type Config struct {
	Provider       string
	Endpoint       string
	Model          string
	Temperature    float64
	RequestTimeout time.Duration
}

// chatFunc sends built options and returns the reply text.
type chatFunc func(ctx context.Context, opts ...uniaiapi.ChatOption) (string, error)

type Client struct {
	cfg    Config
	getter paramstore.Getter

	mu   sync.Mutex
	chat chatFunc
}

func New(cfg Config, ps paramstore.Getter) (*Client, error) {
	if ps == nil {
		return nil, errors.New("uniai: paramstore getter must not be nil")
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = defaultProvider
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &Client{cfg: cfg, getter: ps}, nil
}

func (c *Client) Provider() string {
	return c.cfg.Provider
}

// resolveChat builds the uniai client once the token has been fetched
// successfully. Failed fetches are retried on the next call.
func (c *Client) resolveChat(ctx context.Context) (chatFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat != nil {
		return c.chat, nil
	}
	key, err := paramstore.Secret(ctx, c.getter, tokenParameter)
	if err != nil {
		return nil, fmt.Errorf("uniai: fetch token: %w", err)
	}
	api := uniaiapi.New(buildConfig(c.cfg, key))
	c.chat = func(ctx context.Context, opts ...uniaiapi.ChatOption) (string, error) {
		resp, err := api.Chat(ctx, opts...)
		if err != nil {
			return "", err
		}
		if resp == nil {
			return "", errors.New("uniai: empty response")
		}
		return resp.Text, nil
	}
	return c.chat, nil
}

// Complete sends the system instruction followed by the ordered context.
func (c *Client) Complete(ctx context.Context, system string, messages []domain.ChatMessage) (string, error) {
	chat, err := c.resolveChat(ctx)
	if err != nil {
		return "", err
	}
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	text, err := chat(ctx, buildChatOptions(c.cfg, system, messages)...)
	if err != nil {
		return "", fmt.Errorf("uniai: %s chat: %w", c.cfg.Provider, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("uniai: empty reply")
	}
	return text, nil
}

func buildConfig(cfg Config, key string) uniaiapi.Config {
	return uniaiapi.Config{
		Provider:        cfg.Provider,
		OpenAIAPIKey:    key,
		OpenAIAPIBase:   normalizeOpenAIBase(cfg.Endpoint),
		OpenAIModel:     cfg.Model,
		AnthropicAPIKey: key,
		AnthropicModel:  cfg.Model,
		GeminiAPIKey:    key,
		GeminiAPIBase:   cfg.Endpoint,

		AzureOpenAIAPIKey:   key,
		AzureOpenAIEndpoint: cfg.Endpoint,
		AzureOpenAIModel:    cfg.Model,
	}
}

func buildChatOptions(cfg Config, system string, messages []domain.ChatMessage) []uniaiapi.ChatOption {
	msgs := make([]uniaiapi.Message, 0, len(messages)+1)
	if s := strings.TrimSpace(system); s != "" {
		msgs = append(msgs, uniaiapi.Message{Role: "system", Content: s})
	}
	for _, m := range messages {
		role := domain.ChatRoleUser
		if m.Role == domain.ChatRoleAssistant {
			role = domain.ChatRoleAssistant
		}
		msgs = append(msgs, uniaiapi.Message{Role: role, Content: m.Content})
	}

	opts := []uniaiapi.ChatOption{uniaiapi.WithReplaceMessages(msgs...)}
	if cfg.Provider != "" {
		opts = append(opts, uniaiapi.WithProvider(cfg.Provider))
	}
	if cfg.Model != "" {
		opts = append(opts, uniaiapi.WithModel(cfg.Model))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, uniaiapi.WithTemperature(cfg.Temperature))
	}
	return opts
}

func normalizeOpenAIBase(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	if strings.HasSuffix(endpoint, "/v1") || strings.Contains(endpoint, "/v1/") {
		return endpoint
	}
	return endpoint + "/v1"
}
