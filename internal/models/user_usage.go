package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserUsage represents rolling request accounting for a user.
// Counters only move up between resets; ResetCycle is the only
// operation allowed to zero them.
type UserUsage struct {
	ID string `gorm:"type:uuid;primaryKey"` // Matches UserProfile.ID.

	RequestsThisWeek        int `gorm:"not null;default:0"` // Requests in the current week.
	RequestsThisMonth       int `gorm:"not null;default:0"` // Requests in the current month.
	RequestsPrevious3Months int `gorm:"column:requests_previous_3_months;not null;default:0"` // Collapsed rolling 3-month bucket.

	RecentURLs    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Bounded FIFO of recent document URLs.
	RecentQueries datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Bounded FIFO of recent queries.

	LastResetPeriod string `gorm:"type:text;not null;default:''"` // Billing period of the last counter reset.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName maps UserUsage to its table.
func (UserUsage) TableName() string { return "user_usage" }
