package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slack-relay/internal/domain"
)

// Store implements the conversation and credential stores on PostgreSQL.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("postgres: db must not be nil")
	}
	return &Store{db: db}, nil
}

// Append inserts a turn. A second insert of the same platform message for the
// thread returns domain.ErrDuplicateTurn.
func (s *Store) Append(ctx context.Context, turn domain.Turn) error {
	if strings.TrimSpace(turn.ID) == "" || strings.TrimSpace(turn.TenantID) == "" ||
		strings.TrimSpace(turn.Channel) == "" || strings.TrimSpace(turn.ThreadRoot) == "" {
		return errors.New("postgres: turn id, tenant, channel and thread root are required")
	}
	if turn.CreatedAt.IsZero() {
		return errors.New("postgres: turn created-at is required")
	}

	row := newTurnRow(turn)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateTurn
		}
		return fmt.Errorf("postgres: Append: %w", err)
	}
	return nil
}

// RecentWindow returns at most limit turns of the thread, oldest first.
func (s *Store) RecentWindow(ctx context.Context, key domain.ThreadKey, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return []domain.Turn{}, nil
	}

	var rows []turnRow
	if err := s.windowQuery(ctx, key, limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: RecentWindow: %w", err)
	}

	turns := make([]domain.Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = row.toDomain()
	}
	return turns, nil
}

func (s *Store) windowQuery(ctx context.Context, key domain.ThreadKey, limit int) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND thread_root = ?", key.TenantID, key.Channel, key.ThreadRoot).
		Order("seq DESC").
		Limit(limit)
}

// Resolve returns the credential for a tenant, or domain.ErrNotFound.
func (s *Store) Resolve(ctx context.Context, tenantID string) (domain.TenantCredential, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.TenantCredential{}, errors.New("postgres: tenant id is required")
	}

	var row credentialRow
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TenantCredential{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TenantCredential{}, fmt.Errorf("postgres: Resolve: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert inserts or replaces the tenant credential.
func (s *Store) Upsert(ctx context.Context, cred domain.TenantCredential) error {
	row := newCredentialRow(cred)
	if row.TenantID == "" {
		return errors.New("postgres: tenant id is required")
	}
	if strings.TrimSpace(row.Token) == "" {
		return errors.New("postgres: credential token is required")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "bot_user_id", "team_name", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres: Upsert: %w", err)
	}
	return nil
}
