package domain

import "time"

// TenantCredential is the outbound messaging authorization for one workspace.
type TenantCredential struct {
	TenantID  string
	Token     string
	BotUserID string
	TeamName  string
	UpdatedAt time.Time
}
