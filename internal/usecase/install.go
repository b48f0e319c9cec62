package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"slack-relay/internal/domain"
	"slack-relay/internal/metrics"
)

type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (domain.TenantCredential, error)
}

// InstallService completes the OAuth install flow for a workspace.
type InstallService struct {
	exchanger CodeExchanger
	creds     CredentialStore
	log       zerolog.Logger
}

func NewInstallService(ex CodeExchanger, creds CredentialStore, log zerolog.Logger) (*InstallService, error) {
	if ex == nil {
		return nil, errors.New("usecase: code exchanger must not be nil")
	}
	if creds == nil {
		return nil, errors.New("usecase: credential store must not be nil")
	}
	return &InstallService{exchanger: ex, creds: creds, log: log.With().Str("component", "install").Logger()}, nil
}

// Install exchanges code and stores the resulting credential, replacing any
// previous one for the same workspace.
func (s *InstallService) Install(ctx context.Context, code string) (domain.TenantCredential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		metrics.Installs.WithLabelValues("invalid").Inc()
		return domain.TenantCredential{}, newError(ErrorInvalidInput, "missing_code", nil)
	}
	cred, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		metrics.Installs.WithLabelValues("exchange_failed").Inc()
		s.log.Error().Err(err).Msg("oauth exchange failed")
		return domain.TenantCredential{}, newError(ErrorInternal, "oauth_exchange_error", err)
	}
	if err := s.creds.Upsert(ctx, cred); err != nil {
		metrics.Installs.WithLabelValues("store_failed").Inc()
		s.log.Error().Err(err).Str("tenant", cred.TenantID).Msg("storing credential failed")
		return domain.TenantCredential{}, newError(ErrorInternal, "credential_upsert_error", err)
	}
	metrics.Installs.WithLabelValues("installed").Inc()
	s.log.Info().Str("tenant", cred.TenantID).Str("team", cred.TeamName).Msg("workspace installed")
	return cred, nil
}
