// Package slack adapts the Slack Events API, Web API and OAuth flow to the
// relay's domain types.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
)

// DefaultAPIBase is the Slack Web API root.
const DefaultAPIBase = "https://slack.com/api/"

// Messenger posts messages with a per-call bot token.
type Messenger struct {
	apiBase    string
	httpClient *http.Client
}

type MessengerOption func(*Messenger)

func WithAPIBase(base string) MessengerOption {
	return func(m *Messenger) {
		if b := strings.TrimSpace(base); b != "" {
			m.apiBase = strings.TrimRight(b, "/") + "/"
		}
	}
}

func WithHTTPClient(c *http.Client) MessengerOption {
	return func(m *Messenger) {
		if c != nil {
			m.httpClient = c
		}
	}
}

func NewMessenger(opts ...MessengerOption) *Messenger {
	m := &Messenger{
		apiBase:    DefaultAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PostMessage posts text into channel, threaded under threadTS when set, and
// returns the platform timestamp of the new message.
func (m *Messenger) PostMessage(ctx context.Context, token, channel, threadTS, text string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("slack: token is required")
	}
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("slack: channel is required")
	}

	api := slackapi.New(token, slackapi.OptionHTTPClient(m.httpClient), slackapi.OptionAPIURL(m.apiBase))
	opts := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if ts := strings.TrimSpace(threadTS); ts != "" {
		opts = append(opts, slackapi.MsgOptionTS(ts))
	}
	_, ts, err := api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}
