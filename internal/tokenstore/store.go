// Package tokenstore persists provider token sets keyed by
// (user, provider) with replace-on-upsert semantics.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sheetmind/sheetmind-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates no token set exists for the requested pair.
var ErrNotFound = errors.New("tokenstore: not found")

// TokenSet is the result of a successful token exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time
}

// GormTokenStore persists token sets to the database via GORM.
type GormTokenStore struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGormTokenStore constructs a GormTokenStore.
func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db, locks: make(map[string]*sync.Mutex)}
}

// pairLock returns the mutex serializing writes for one (user, provider) pair.
func (s *GormTokenStore) pairLock(userID, provider string) *sync.Mutex {
	key := userID + "\x00" + provider
	s.mu.Lock()
	defer s.mu.Unlock()
	lock := s.locks[key]
	if lock == nil {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Upsert replaces any prior token set for the (user, provider) pair.
// No merge semantics: the new grant wins whole.
func (s *GormTokenStore) Upsert(ctx context.Context, userID, provider string, set TokenSet) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("tokenstore: not initialized")
	}
	userID = strings.TrimSpace(userID)
	provider = strings.TrimSpace(provider)
	if userID == "" || provider == "" {
		return fmt.Errorf("tokenstore: missing user or provider")
	}
	if strings.TrimSpace(set.AccessToken) == "" {
		return fmt.Errorf("tokenstore: missing access token")
	}

	lock := s.pairLock(userID, provider)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	row := models.DocumentToken{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  set.AccessToken,
		RefreshToken: set.RefreshToken,
		TokenType:    set.TokenType,
		Scope:        set.Scope,
		ExpiresAt:    set.ExpiresAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "token_type", "scope", "expires_at", "updated_at",
		}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("tokenstore: upsert: %w", err)
	}
	return nil
}

// Get loads the token set for a (user, provider) pair.
func (s *GormTokenStore) Get(ctx context.Context, userID, provider string) (TokenSet, error) {
	if s == nil || s.db == nil {
		return TokenSet{}, fmt.Errorf("tokenstore: not initialized")
	}

	var row models.DocumentToken
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", strings.TrimSpace(userID), strings.TrimSpace(provider)).
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return TokenSet{}, ErrNotFound
		}
		return TokenSet{}, fmt.Errorf("tokenstore: get: %w", errFind)
	}

	return TokenSet{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		Scope:        row.Scope,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}
