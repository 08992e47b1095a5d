package models

import "time"

// ErrorMessage records a user-visible failure for diagnostics.
// Rows are append-only; Resolved moves false to true and never back.
type ErrorMessage struct {
	ID string `gorm:"type:uuid;primaryKey"` // Primary key.

	UserID    string `gorm:"type:uuid;index"`    // Affected user, may be empty pre-auth.
	Message   string `gorm:"type:text;not null"` // Human-readable failure text.
	ErrorCode string `gorm:"type:text"`          // Taxonomy code.

	Resolved bool `gorm:"not null;default:false"` // One-way resolution flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName maps ErrorMessage to its table.
func (ErrorMessage) TableName() string { return "error_messages" }
