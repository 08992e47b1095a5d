package models

import "time"

// DocumentToken stores the token set exchanged with an identity
// provider, keyed by (user, provider). A new grant replaces the prior
// row for that pair.
type DocumentToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:uuid;not null;uniqueIndex:ux_document_tokens_user_provider,priority:1"` // Owning user.
	Provider string `gorm:"type:text;not null;uniqueIndex:ux_document_tokens_user_provider,priority:2"` // google or microsoft.

	AccessToken  string `gorm:"type:text;not null"` // Provider access token.
	RefreshToken string `gorm:"type:text"`          // Provider refresh token, may be empty.
	TokenType    string `gorm:"type:text"`          // Usually Bearer.
	Scope        string `gorm:"type:text"`          // Granted scopes, space-joined.

	ExpiresAt time.Time `gorm:"not null"` // Access token expiry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName maps DocumentToken to its table.
func (DocumentToken) TableName() string { return "user_documents_access" }
