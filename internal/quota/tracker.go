package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sheetmind/sheetmind-backend/internal/db"
	"github.com/sheetmind/sheetmind-backend/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// recentCapacity bounds the recent_urls/recent_queries lists.
	recentCapacity = 10
	// resetLockKey names the single-flight lock for the reset job.
	resetLockKey = "usage-reset"
	// resetLockTTL caps how long a crashed run can hold the lock.
	resetLockTTL = 5 * time.Minute
	// resetWorkers bounds the parallel per-user reset updates.
	resetWorkers = 8
)

// Tracker records per-user request counters and runs the scheduled
// reset cycle.
type Tracker struct {
	db     *gorm.DB
	flight Flight
}

// NewTracker constructs a Tracker.
func NewTracker(db *gorm.DB, flight Flight) *Tracker {
	if flight == nil {
		flight = NewMemoryFlight()
	}
	return &Tracker{db: db, flight: flight}
}

// RecordRequest increments the weekly and monthly counters and
// appends to the bounded recent lists.
func (t *Tracker) RecordRequest(ctx context.Context, userID, url, query string) error {
	if t == nil || t.db == nil {
		return fmt.Errorf("quota: not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("quota: missing user id")
	}

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := tx.Where(models.UserUsage{ID: userID}).
			Attrs(models.UserUsage{RecentURLs: []byte("[]"), RecentQueries: []byte("[]")})
		if !db.IsSQLite(tx) {
			// The recent lists are read-modify-written; hold the row so
			// concurrent writers cannot drop each other's appends.
			// SQLite has no SELECT FOR UPDATE and serializes writes anyway.
			lookup = lookup.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var usage models.UserUsage
		if errFind := lookup.FirstOrCreate(&usage).Error; errFind != nil {
			return fmt.Errorf("quota: load usage: %w", errFind)
		}

		updates := map[string]any{
			"requests_this_week":  gorm.Expr("requests_this_week + 1"),
			"requests_this_month": gorm.Expr("requests_this_month + 1"),
		}
		if strings.TrimSpace(url) != "" {
			updates["recent_urls"] = appendBounded(usage.RecentURLs, url)
		}
		if strings.TrimSpace(query) != "" {
			updates["recent_queries"] = appendBounded(usage.RecentQueries, query)
		}

		if errUpdate := tx.Model(&models.UserUsage{}).
			Where("id = ?", userID).
			Updates(updates).Error; errUpdate != nil {
			return fmt.Errorf("quota: record request: %w", errUpdate)
		}
		return nil
	})
}

// Snapshot returns the current usage record for a user.
func (t *Tracker) Snapshot(ctx context.Context, userID string) (models.UserUsage, error) {
	var usage models.UserUsage
	errFind := t.db.WithContext(ctx).First(&usage, "id = ?", strings.TrimSpace(userID)).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.UserUsage{ID: userID, RecentURLs: []byte("[]"), RecentQueries: []byte("[]")}, nil
		}
		return models.UserUsage{}, fmt.Errorf("quota: snapshot: %w", errFind)
	}
	return usage, nil
}

// ResetCycle shifts the monthly counter into the rolling 3-month
// bucket and zeroes the week/month counters for every user whose
// record has not been reset in the current billing period yet.
// Safe to re-invoke: a second run in the same period matches no rows,
// and concurrent runs are excluded by the single-flight lock.
func (t *Tracker) ResetCycle(ctx context.Context, cutover time.Time) error {
	if t == nil || t.db == nil {
		return fmt.Errorf("quota: not initialized")
	}

	acquired, release, errAcquire := t.flight.TryAcquire(ctx, resetLockKey, resetLockTTL)
	if errAcquire != nil {
		return fmt.Errorf("quota: acquire reset lock: %w", errAcquire)
	}
	if !acquired {
		log.Info("quota: reset cycle already running, skipping")
		return nil
	}
	defer release()

	period := cutover.UTC().Format("2006-01")

	var ids []string
	if errIDs := t.db.WithContext(ctx).Model(&models.UserUsage{}).
		Where("last_reset_period <> ?", period).
		Pluck("id", &ids).Error; errIDs != nil {
		return fmt.Errorf("quota: list usage records: %w", errIDs)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(resetWorkers)
	for _, id := range ids {
		userID := id
		group.Go(func() error {
			errReset := t.db.WithContext(groupCtx).Model(&models.UserUsage{}).
				Where("id = ? AND last_reset_period <> ?", userID, period).
				Updates(map[string]any{
					"requests_previous_3_months": gorm.Expr("requests_this_month"),
					"requests_this_month":        0,
					"requests_this_week":         0,
					"last_reset_period":          period,
				}).Error
			if errReset != nil {
				// One bad record must not abort the batch.
				log.WithError(errReset).WithField("user_id", userID).Warn("quota: reset failed for user")
			}
			return nil
		})
	}
	if errWait := group.Wait(); errWait != nil {
		return errWait
	}

	log.WithFields(log.Fields{"period": period, "records": len(ids)}).Info("quota: reset cycle finished")
	return nil
}

// appendBounded appends value to a JSON string list, evicting the
// oldest entries beyond capacity.
func appendBounded(raw datatypes.JSON, value string) datatypes.JSON {
	var list []string
	if len(raw) > 0 {
		if errUnmarshal := json.Unmarshal(raw, &list); errUnmarshal != nil {
			list = nil
		}
	}
	list = append(list, value)
	if len(list) > recentCapacity {
		list = list[len(list)-recentCapacity:]
	}
	out, errMarshal := json.Marshal(list)
	if errMarshal != nil {
		return raw
	}
	return out
}
