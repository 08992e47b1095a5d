// Package quota tracks per-user request counters and runs the
// scheduled counter reset.
package quota

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Flight grants single-flight execution of the reset job: at most one
// holder per key at a time.
type Flight interface {
	// TryAcquire returns true and a release func when the caller won
	// the lock, false when another invocation holds it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

// MemoryFlight implements Flight for a single process.
type MemoryFlight struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewMemoryFlight constructs a MemoryFlight.
func NewMemoryFlight() *MemoryFlight {
	return &MemoryFlight{held: make(map[string]time.Time)}
}

// TryAcquire implements Flight.
func (f *MemoryFlight) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, func(), error) {
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()
	if until, ok := f.held[key]; ok && now.Before(until) {
		return false, nil, nil
	}
	f.held[key] = now.Add(ttl)
	release := func() {
		f.mu.Lock()
		delete(f.held, key)
		f.mu.Unlock()
	}
	return true, release, nil
}

// RedisFlight implements Flight across processes via SET NX.
type RedisFlight struct {
	client *redis.Client
	prefix string
}

// NewRedisFlight constructs a RedisFlight.
func NewRedisFlight(client *redis.Client, prefix string) *RedisFlight {
	return &RedisFlight{client: client, prefix: strings.TrimSpace(prefix)}
}

// TryAcquire implements Flight.
func (f *RedisFlight) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	if f == nil || f.client == nil {
		return false, nil, nil
	}
	redisKey := f.buildKey(key)
	ok, errSet := f.client.SetNX(ctx, redisKey, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if errSet != nil {
		return false, nil, errSet
	}
	if !ok {
		return false, nil, nil
	}
	release := func() {
		_ = f.client.Del(context.Background(), redisKey).Err()
	}
	return true, release, nil
}

func (f *RedisFlight) buildKey(key string) string {
	if f.prefix == "" {
		return "flight:" + key
	}
	return f.prefix + ":flight:" + key
}

// ResolveFlight picks the Redis backend when an address is configured
// and falls back to the in-process lock otherwise.
func ResolveFlight(redisAddr, prefix string) Flight {
	redisAddr = strings.TrimSpace(redisAddr)
	if redisAddr == "" {
		return NewMemoryFlight()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return NewRedisFlight(client, prefix)
}
