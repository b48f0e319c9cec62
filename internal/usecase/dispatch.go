package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"slack-relay/internal/domain"
)

const defaultDispatchTimeout = 10 * time.Second

type CredentialStore interface {
	Resolve(ctx context.Context, tenantID string) (domain.TenantCredential, error)
	Upsert(ctx context.Context, cred domain.TenantCredential) error
}

type Messenger interface {
	PostMessage(ctx context.Context, token, channel, threadTS, text string) (string, error)
}

// Delivery describes a posted reply.
type Delivery struct {
	TS        string
	BotUserID string
}

// ReplyDispatcher posts replies using the tenant credential current at send
// time.
type ReplyDispatcher struct {
	creds     CredentialStore
	messenger Messenger
	timeout   time.Duration
}

func NewReplyDispatcher(creds CredentialStore, m Messenger, timeout time.Duration) (*ReplyDispatcher, error) {
	if creds == nil {
		return nil, errors.New("usecase: credential store must not be nil")
	}
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &ReplyDispatcher{creds: creds, messenger: m, timeout: timeout}, nil
}

// Post sends text into channel, threaded under threadRoot unless it is empty.
// No retry is attempted.
func (d *ReplyDispatcher) Post(ctx context.Context, tenantID, channel, threadRoot, text string) (Delivery, error) {
	cred, err := d.creds.Resolve(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return Delivery{}, newError(ErrorUnknownTenant, "credential_not_found", err)
	}
	if err != nil {
		return Delivery{}, newError(ErrorInternal, "credential_lookup_error", err)
	}
	if strings.TrimSpace(cred.Token) == "" {
		return Delivery{}, newError(ErrorUnknownTenant, "credential_empty", nil)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ts, err := d.messenger.PostMessage(sendCtx, cred.Token, channel, threadRoot, text)
	if err != nil {
		return Delivery{}, newError(ErrorDispatchFailed, "post_message_error", err)
	}
	if strings.TrimSpace(ts) == "" {
		return Delivery{}, newError(ErrorDispatchFailed, "missing_delivery_ts", nil)
	}
	return Delivery{TS: ts, BotUserID: cred.BotUserID}, nil
}
