package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sheetmind/sheetmind-backend/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.DocumentToken{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestUpsert_ReplacesPriorTokenSet(t *testing.T) {
	store := NewGormTokenStore(newTestDB(t))
	ctx := context.Background()

	first := TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Scope:        "drive.file",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := store.Upsert(ctx, "user-1", "google", first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	second := TokenSet{
		AccessToken: "access-2",
		TokenType:   "Bearer",
		Scope:       "drive.file spreadsheets",
		ExpiresAt:   time.Now().Add(2 * time.Hour),
	}
	if err := store.Upsert(ctx, "user-1", "google", second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := store.Get(ctx, "user-1", "google")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.AccessToken != "access-2" {
		t.Fatalf("expected access-2, got %q", got.AccessToken)
	}
	// Replace, not merge: the second grant carried no refresh token.
	if got.RefreshToken != "" {
		t.Fatalf("expected empty refresh token after replace, got %q", got.RefreshToken)
	}

	var count int64
	if errCount := store.db.Model(&models.DocumentToken{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row for the pair, got %d", count)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := NewGormTokenStore(newTestDB(t))

	_, err := store.Get(context.Background(), "user-1", "microsoft")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsert_PairsAreIndependent(t *testing.T) {
	store := NewGormTokenStore(newTestDB(t))
	ctx := context.Background()

	set := TokenSet{AccessToken: "a", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Upsert(ctx, "user-1", "google", set); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := store.Upsert(ctx, "user-1", "microsoft", set); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var count int64
	if errCount := store.db.Model(&models.DocumentToken{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 2 {
		t.Fatalf("expected two rows, got %d", count)
	}
}
