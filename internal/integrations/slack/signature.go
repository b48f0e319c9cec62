package slack

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	slackapi "github.com/slack-go/slack"

	"slack-relay/internal/integrations/paramstore"
)

const (
	headerTimestamp = "X-Slack-Request-Timestamp"
	headerSignature = "X-Slack-Signature"

	signingSecretParameter = "slack-signing-secret"
)

// Verifier checks request signatures against a fixed signing secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify reports whether signature is the v0 HMAC-SHA256 of timestamp and body.
// Malformed input yields false. Timestamps more than five minutes from the
// wall clock are rejected by slack-go's verifier.
func (v *Verifier) Verify(timestamp string, body []byte, signature string) bool {
	if v == nil || v.secret == "" {
		return false
	}
	timestamp = strings.TrimSpace(timestamp)
	signature = strings.TrimSpace(signature)
	if timestamp == "" || !strings.HasPrefix(signature, "v0=") {
		return false
	}
	if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
		return false
	}

	header := http.Header{}
	header.Set(headerTimestamp, timestamp)
	header.Set(headerSignature, signature)
	sv, err := slackapi.NewSecretsVerifier(header, v.secret)
	if err != nil {
		return false
	}
	if _, err := sv.Write(body); err != nil {
		return false
	}
	return sv.Ensure() == nil
}

// SecretVerifier loads the signing secret from the parameter store on first use.
type SecretVerifier struct {
	getter paramstore.Getter

	mu       sync.Mutex
	verifier *Verifier
}

func NewSecretVerifier(ps paramstore.Getter) (*SecretVerifier, error) {
	if ps == nil {
		return nil, fmt.Errorf("slack: paramstore getter must not be nil")
	}
	return &SecretVerifier{getter: ps}, nil
}

func (s *SecretVerifier) Verify(ctx context.Context, timestamp string, body []byte, signature string) (bool, error) {
	v, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return v.Verify(timestamp, body, signature), nil
}

func (s *SecretVerifier) load(ctx context.Context) (*Verifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verifier != nil {
		return s.verifier, nil
	}
	secret, err := paramstore.Secret(ctx, s.getter, signingSecretParameter)
	if err != nil {
		return nil, fmt.Errorf("slack: load signing secret: %w", err)
	}
	s.verifier = NewVerifier(secret)
	return s.verifier, nil
}
