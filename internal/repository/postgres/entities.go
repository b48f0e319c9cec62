package postgres

import (
	"strings"
	"time"

	"slack-relay/internal/domain"
)

// turnRow is one conversation turn. Seq is the authoritative insertion order.
type turnRow struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement;index:ix_turn_thread,priority:4"`
	ID         string    `gorm:"type:uuid;not null;uniqueIndex"`
	TenantID   string    `gorm:"size:64;not null;uniqueIndex:ux_turn_platform,priority:1;index:ix_turn_thread,priority:1"`
	Channel    string    `gorm:"size:64;not null;uniqueIndex:ux_turn_platform,priority:2;index:ix_turn_thread,priority:2"`
	ThreadRoot string    `gorm:"size:64;not null;uniqueIndex:ux_turn_platform,priority:3;index:ix_turn_thread,priority:3"`
	Role       string    `gorm:"size:16;not null;uniqueIndex:ux_turn_platform,priority:4"`
	TurnTS     *string   `gorm:"size:32;uniqueIndex:ux_turn_platform,priority:5"`
	AuthorID   string    `gorm:"size:64"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (turnRow) TableName() string { return "turns" }

type credentialRow struct {
	TenantID  string `gorm:"primaryKey;size:64"`
	Token     string `gorm:"type:text;not null"`
	BotUserID string `gorm:"size:64"`
	TeamName  string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (credentialRow) TableName() string { return "tenant_credentials" }

func newTurnRow(t domain.Turn) turnRow {
	row := turnRow{
		ID:         t.ID,
		TenantID:   t.TenantID,
		Channel:    t.Channel,
		ThreadRoot: t.ThreadRoot,
		Role:       string(t.Role),
		AuthorID:   t.AuthorID,
		Text:       t.Text,
		CreatedAt:  t.CreatedAt.UTC(),
	}
	// NULL timestamps never collide in the unique index.
	if ts := strings.TrimSpace(t.TurnTS); ts != "" {
		row.TurnTS = &ts
	}
	return row
}

func (r turnRow) toDomain() domain.Turn {
	turn := domain.Turn{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Channel:    r.Channel,
		ThreadRoot: r.ThreadRoot,
		Role:       domain.Role(r.Role),
		AuthorID:   r.AuthorID,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt,
	}
	if r.TurnTS != nil {
		turn.TurnTS = *r.TurnTS
	}
	return turn
}

func newCredentialRow(c domain.TenantCredential) credentialRow {
	return credentialRow{
		TenantID:  strings.TrimSpace(c.TenantID),
		Token:     c.Token,
		BotUserID: c.BotUserID,
		TeamName:  c.TeamName,
		UpdatedAt: c.UpdatedAt,
	}
}

func (r credentialRow) toDomain() domain.TenantCredential {
	return domain.TenantCredential{
		TenantID:  r.TenantID,
		Token:     r.Token,
		BotUserID: r.BotUserID,
		TeamName:  r.TeamName,
		UpdatedAt: r.UpdatedAt,
	}
}
