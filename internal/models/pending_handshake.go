package models

import "time"

// PendingHandshake holds the verifier and anti-CSRF state for an
// in-flight authorization request. Rows are single-use: claiming one
// deletes it, so a replayed callback finds nothing.
type PendingHandshake struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	State    string `gorm:"type:text;not null;uniqueIndex"` // Anti-CSRF nonce.
	Verifier string `gorm:"type:text;not null"`             // PKCE code verifier.

	Provider string `gorm:"type:text;not null"` // google or microsoft.
	Mode     string `gorm:"type:text;not null"` // sign_in or grant_permissions.

	UserID string `gorm:"type:uuid"` // Set for grant_permissions handshakes.

	ExpiresAt time.Time `gorm:"not null;index"`          // Hard expiry for unclaimed rows.
	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName maps PendingHandshake to its table.
func (PendingHandshake) TableName() string { return "pending_handshakes" }
