// Package plans maps subscription tiers to their limits and billing
// linkage.
package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
	"github.com/sheetmind/sheetmind-backend/internal/models"
	"gorm.io/gorm"
)

// Limits caps per-category request volume for one billing period.
type Limits struct {
	Processing     int `json:"processing"`
	Visualizations int `json:"visualizations"`
	Images         int `json:"images"`
}

// Plan is one subscription tier. PriceID is empty for the free tier.
type Plan struct {
	ID          models.PlanType `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	PriceID     string          `json:"price_id,omitempty"`
	MonthPrice  float64         `json:"month_price"`
	Limits      Limits          `json:"limits"`
}

// PriceIDs carries the billing-provider price references for paid
// tiers, injected from configuration.
type PriceIDs struct {
	Base string
	Pro  string
}

// Table returns the static plan table. Enumerated, never computed.
func Table(prices PriceIDs) map[models.PlanType]Plan {
	return map[models.PlanType]Plan{
		models.PlanFree: {
			ID:          models.PlanFree,
			Name:        "Free",
			Description: "For personal use",
			MonthPrice:  0,
			Limits:      Limits{Processing: 10, Visualizations: 10, Images: 10},
		},
		models.PlanBase: {
			ID:          models.PlanBase,
			Name:        "Base",
			Description: "For regular use",
			PriceID:     prices.Base,
			MonthPrice:  5,
			Limits:      Limits{Processing: 200, Visualizations: 200, Images: 200},
		},
		models.PlanPro: {
			ID:          models.PlanPro,
			Name:        "Pro",
			Description: "For power users",
			PriceID:     prices.Pro,
			MonthPrice:  10,
			Limits:      Limits{Processing: 1000, Visualizations: 1000, Images: 1000},
		},
	}
}

// PortalClient opens billing-provider self-service portal sessions.
type PortalClient interface {
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Resolution is the outcome of a plan lookup.
type Resolution struct {
	Plan   Plan
	Limits Limits
}

// Resolver resolves a user's plan, limits, and billing customer.
type Resolver struct {
	db     *gorm.DB
	table  map[models.PlanType]Plan
	portal PortalClient
}

// NewResolver constructs a Resolver. portal may be nil when portal
// sessions are not needed (tests, workers).
func NewResolver(db *gorm.DB, prices PriceIDs, portal PortalClient) *Resolver {
	return &Resolver{db: db, table: Table(prices), portal: portal}
}

// Resolve returns the active plan and limits for a user. Exactly one
// plan is active per user; unknown stored values are a configuration
// error, not a silent free-tier downgrade.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Resolution, error) {
	var profile models.UserProfile
	errFind := r.db.WithContext(ctx).Select("plan").First(&profile, "id = ?", strings.TrimSpace(userID)).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Resolution{}, apperrors.NewSessionAbsent()
		}
		return Resolution{}, fmt.Errorf("plans: load profile: %w", errFind)
	}

	plan, ok := r.table[profile.Plan]
	if !ok {
		return Resolution{}, apperrors.NewConfiguration("unknown plan: " + string(profile.Plan))
	}
	return Resolution{Plan: plan, Limits: plan.Limits}, nil
}

// BillingCustomerRef returns the stored billing customer for a user.
// A paid-plan user without one is a billing-link error, never treated
// as free tier.
func (r *Resolver) BillingCustomerRef(ctx context.Context, userID string) (string, error) {
	var customer models.BillingCustomer
	errFind := r.db.WithContext(ctx).First(&customer, "user_id = ?", strings.TrimSpace(userID)).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", apperrors.NewBillingLinkMissing(userID)
		}
		return "", fmt.Errorf("plans: load billing customer: %w", errFind)
	}
	return customer.CustomerID, nil
}

// PortalSession opens a self-service billing portal session for the
// user and returns the redirect URL.
func (r *Resolver) PortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	if _, err := r.Resolve(ctx, userID); err != nil {
		return "", err
	}
	customerID, err := r.BillingCustomerRef(ctx, userID)
	if err != nil {
		return "", err
	}
	if r.portal == nil {
		return "", apperrors.NewConfiguration("billing portal not configured")
	}
	return r.portal.CreatePortalSession(ctx, customerID, returnURL)
}
