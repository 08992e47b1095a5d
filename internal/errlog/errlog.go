// Package errlog records user-visible failures for diagnostics.
package errlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sheetmind/sheetmind-backend/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Recorder appends to the error_messages table.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends an error row. Never fails the caller: recording a
// failure must not cause one.
func (r *Recorder) Record(ctx context.Context, userID, message, errorCode string) {
	if r == nil || r.db == nil {
		return
	}
	row := models.ErrorMessage{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		Message:   message,
		ErrorCode: errorCode,
	}
	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).Warn("errlog: record failed")
	}
}

// Resolve marks an error row resolved. One-way: resolved rows stay
// resolved.
func (r *Recorder) Resolve(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.ErrorMessage{}).
		Where("id = ? AND resolved = ?", strings.TrimSpace(id), false).
		Update("resolved", true)
	if res.Error != nil {
		return fmt.Errorf("errlog: resolve: %w", res.Error)
	}
	return nil
}
