package quota

import (
	"context"
	"encoding/json"
	"fmt"
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
	if errMigrate := conn.AutoMigrate(&models.UserUsage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestRecordRequest_IncrementsCounters(t *testing.T) {
	conn := newTestDB(t)
	tracker := NewTracker(conn, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tracker.RecordRequest(ctx, "user-1", "https://docs.example.com/sheet1", "sum column B"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	usage, err := tracker.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if usage.RequestsThisWeek != 3 || usage.RequestsThisMonth != 3 {
		t.Fatalf("expected counters 3/3, got %d/%d", usage.RequestsThisWeek, usage.RequestsThisMonth)
	}

	var urls []string
	if errUnmarshal := json.Unmarshal(usage.RecentURLs, &urls); errUnmarshal != nil {
		t.Fatalf("unmarshal recent urls: %v", errUnmarshal)
	}
	if len(urls) != 3 {
		t.Fatalf("expected 3 recent urls, got %d", len(urls))
	}
}

func TestRecordRequest_RecentListsAreBoundedFIFO(t *testing.T) {
	conn := newTestDB(t)
	tracker := NewTracker(conn, nil)
	ctx := context.Background()

	for i := 0; i < recentCapacity+5; i++ {
		url := fmt.Sprintf("https://docs.example.com/sheet%d", i)
		if err := tracker.RecordRequest(ctx, "user-1", url, ""); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	usage, err := tracker.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	var urls []string
	if errUnmarshal := json.Unmarshal(usage.RecentURLs, &urls); errUnmarshal != nil {
		t.Fatalf("unmarshal recent urls: %v", errUnmarshal)
	}
	if len(urls) != recentCapacity {
		t.Fatalf("expected capacity %d, got %d", recentCapacity, len(urls))
	}
	// Oldest evicted first.
	if urls[0] != "https://docs.example.com/sheet5" {
		t.Fatalf("expected FIFO eviction, got head %q", urls[0])
	}
	if urls[len(urls)-1] != fmt.Sprintf("https://docs.example.com/sheet%d", recentCapacity+4) {
		t.Fatalf("expected newest at tail, got %q", urls[len(urls)-1])
	}
}

func TestResetCycle_ShiftsAndZeroesCounters(t *testing.T) {
	conn := newTestDB(t)
	tracker := NewTracker(conn, nil)
	ctx := context.Background()

	seed := models.UserUsage{
		ID:                      "user-1",
		RequestsThisWeek:        4,
		RequestsThisMonth:       17,
		RequestsPrevious3Months: 99,
		RecentURLs:              []byte("[]"),
		RecentQueries:           []byte("[]"),
	}
	if errCreate := conn.Create(&seed).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}

	cutover := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	if err := tracker.ResetCycle(ctx, cutover); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	usage, err := tracker.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if usage.RequestsPrevious3Months != 17 {
		t.Fatalf("expected rolling bucket 17, got %d", usage.RequestsPrevious3Months)
	}
	if usage.RequestsThisMonth != 0 || usage.RequestsThisWeek != 0 {
		t.Fatalf("expected zeroed counters, got %d/%d", usage.RequestsThisMonth, usage.RequestsThisWeek)
	}
}

func TestResetCycle_IdempotentWithinPeriod(t *testing.T) {
	conn := newTestDB(t)
	tracker := NewTracker(conn, nil)
	ctx := context.Background()

	seed := models.UserUsage{
		ID:                "user-1",
		RequestsThisWeek:  2,
		RequestsThisMonth: 8,
		RecentURLs:        []byte("[]"),
		RecentQueries:     []byte("[]"),
	}
	if errCreate := conn.Create(&seed).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}

	cutover := time.Date(2026, time.September, 1, 2, 0, 0, 0, time.UTC)
	if err := tracker.ResetCycle(ctx, cutover); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Second trigger later within the same billing period.
	if err := tracker.ResetCycle(ctx, cutover.Add(6*time.Hour)); err != nil {
		t.Fatalf("second run: %v", err)
	}

	usage, err := tracker.Snapshot(ctx, "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if usage.RequestsPrevious3Months != 8 {
		t.Fatalf("expected rolling bucket preserved at 8, got %d", usage.RequestsPrevious3Months)
	}
	if usage.RequestsThisMonth != 0 || usage.RequestsThisWeek != 0 {
		t.Fatalf("expected counters still zero, got %d/%d", usage.RequestsThisMonth, usage.RequestsThisWeek)
	}
}

func TestResetCycle_SingleFlight(t *testing.T) {
	conn := newTestDB(t)
	flight := NewMemoryFlight()
	tracker := NewTracker(conn, flight)

	acquired, release, err := flight.TryAcquire(context.Background(), resetLockKey, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected to hold lock, got acquired=%v err=%v", acquired, err)
	}
	defer release()

	seed := models.UserUsage{ID: "user-1", RequestsThisMonth: 5, RecentURLs: []byte("[]"), RecentQueries: []byte("[]")}
	if errCreate := conn.Create(&seed).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}

	// With the lock held elsewhere the run is a no-op.
	if errReset := tracker.ResetCycle(context.Background(), time.Now()); errReset != nil {
		t.Fatalf("expected no error, got %v", errReset)
	}
	usage, errSnap := tracker.Snapshot(context.Background(), "user-1")
	if errSnap != nil {
		t.Fatalf("snapshot: %v", errSnap)
	}
	if usage.RequestsThisMonth != 5 {
		t.Fatalf("expected untouched counters, got %d", usage.RequestsThisMonth)
	}
}

func TestMemoryFlight_ReleaseAllowsReacquire(t *testing.T) {
	flight := NewMemoryFlight()
	ctx := context.Background()

	acquired, release, err := flight.TryAcquire(ctx, "k", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected acquire, got acquired=%v err=%v", acquired, err)
	}

	again, _, err := flight.TryAcquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if again {
		t.Fatal("expected second acquire to fail while held")
	}

	release()
	again, releaseAgain, err := flight.TryAcquire(ctx, "k", time.Minute)
	if err != nil || !again {
		t.Fatalf("expected reacquire after release, got acquired=%v err=%v", again, err)
	}
	releaseAgain()
}
