package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"slack-relay/internal/domain"
	"slack-relay/internal/integrations/paramstore"
)

const clientSecretParameter = "slack-client-secret"

// OAuth exchanges install codes for workspace bot tokens.
type OAuth struct {
	clientID    string
	redirectURI string
	getter      paramstore.Getter
	httpClient  *http.Client
	now         func() time.Time
}

func NewOAuth(clientID, redirectURI string, ps paramstore.Getter, httpClient *http.Client) (*OAuth, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("slack: client id must not be empty")
	}
	if ps == nil {
		return nil, errors.New("slack: paramstore getter must not be nil")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &OAuth{
		clientID:    clientID,
		redirectURI: strings.TrimSpace(redirectURI),
		getter:      ps,
		httpClient:  httpClient,
		now:         time.Now,
	}, nil
}

// Exchange calls oauth.v2.access and returns the credential for the
// installing workspace.
func (o *OAuth) Exchange(ctx context.Context, code string) (domain.TenantCredential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.TenantCredential{}, errors.New("slack: code is required")
	}
	secret, err := paramstore.Secret(ctx, o.getter, clientSecretParameter)
	if err != nil {
		return domain.TenantCredential{}, fmt.Errorf("slack: load client secret: %w", err)
	}

	resp, err := slackapi.GetOAuthV2ResponseContext(ctx, o.httpClient, o.clientID, secret, code, o.redirectURI)
	if err != nil {
		return domain.TenantCredential{}, fmt.Errorf("slack: oauth exchange: %w", err)
	}
	if resp.Team.ID == "" || resp.AccessToken == "" {
		return domain.TenantCredential{}, errors.New("slack: oauth response missing team or token")
	}
	return domain.TenantCredential{
		TenantID:  resp.Team.ID,
		Token:     resp.AccessToken,
		BotUserID: resp.BotUserID,
		TeamName:  resp.Team.Name,
		UpdatedAt: o.now().UTC(),
	}, nil
}
