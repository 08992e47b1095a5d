package models

import "time"

// PlanType identifies a subscription tier.
type PlanType string

// Subscription tiers.
const (
	PlanFree PlanType = "free"
	PlanBase PlanType = "base"
	PlanPro  PlanType = "pro"
)

// UserProfile represents an application-level identity record.
type UserProfile struct {
	ID string `gorm:"type:uuid;primaryKey"` // Opaque stable identifier.

	FirstName string `gorm:"type:text"` // Given name.
	LastName  string `gorm:"type:text"` // Family name.

	GooglePermissionsSet    bool `gorm:"not null;default:false"` // Google scopes granted.
	MicrosoftPermissionsSet bool `gorm:"not null;default:false"` // Microsoft scopes granted.
	PermissionsSetupDone    bool `gorm:"not null;default:false"` // Both providers granted.

	Plan PlanType `gorm:"type:text;not null;default:'free'"` // Active subscription tier.

	AllowSheetModification       bool `gorm:"not null;default:false"` // Sheet write-back opt-in.
	ShowSheetModificationWarning bool `gorm:"not null;default:true"`  // Write-back warning toggle.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName maps UserProfile to its table.
func (UserProfile) TableName() string { return "user_profile" }
