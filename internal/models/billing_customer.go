package models

import "time"

// BillingCustomer links a user to their billing-provider customer
// record. Required before a self-service portal session can be opened.
type BillingCustomer struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     string `gorm:"type:uuid;not null;uniqueIndex"` // Owning user.
	CustomerID string `gorm:"type:text;not null"`             // Billing-provider customer reference.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName maps BillingCustomer to its table.
func (BillingCustomer) TableName() string { return "billing_customers" }
