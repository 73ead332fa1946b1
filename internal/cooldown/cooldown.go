package cooldown

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the minimum gap between two processed scans of one person.
const DefaultWindow = 30 * time.Second

// Tracker remembers when each person was last processed at a gate.
type Tracker interface {
	IsInCooldown(ctx context.Context, personID string, now time.Time) (bool, error)
	Remaining(ctx context.Context, personID string, now time.Time) (time.Duration, error)
	MarkSeen(ctx context.Context, personID string, now time.Time) error
}

// Left is the wait left at now. A last-seen time after now (a terminal
// clock running behind) counts as the full window.
func Left(lastSeen, now time.Time, window time.Duration) time.Duration {
	elapsed := now.Sub(lastSeen)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= window {
		return 0
	}
	return window - elapsed
}

// Memory keeps last-seen times in process memory. Entries vanish on restart.
type Memory struct {
	window time.Duration
	cache  *cache.Cache
}

// NewMemory creates a process-local tracker.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{
		window: window,
		cache:  cache.New(window, 2*window),
	}
}

func (m *Memory) lastSeen(personID string) (time.Time, bool) {
	v, ok := m.cache.Get(personID)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// IsInCooldown reports whether now is within the window after the last MarkSeen.
func (m *Memory) IsInCooldown(ctx context.Context, personID string, now time.Time) (bool, error) {
	left, err := m.Remaining(ctx, personID, now)
	return left > 0, err
}

// Remaining returns how long the person still has to wait.
func (m *Memory) Remaining(_ context.Context, personID string, now time.Time) (time.Duration, error) {
	last, ok := m.lastSeen(personID)
	if !ok {
		return 0, nil
	}
	return Left(last, now, m.window), nil
}

// MarkSeen records now as the person's last processed scan.
func (m *Memory) MarkSeen(_ context.Context, personID string, now time.Time) error {
	m.cache.Set(personID, now, m.window)
	return nil
}

// Redis shares cooldown state between terminals and API replicas.
type Redis struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedis builds a tracker storing keys under prefix with a PX expiry of window.
func NewRedis(client *redis.Client, window time.Duration, prefix string) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	if prefix == "" {
		prefix = "gate:cooldown:"
	}
	return &Redis{client: client, window: window, prefix: prefix}
}

func (r *Redis) key(personID string) string {
	return r.prefix + personID
}

// IsInCooldown reports whether now is within the window after the last MarkSeen.
func (r *Redis) IsInCooldown(ctx context.Context, personID string, now time.Time) (bool, error) {
	left, err := r.Remaining(ctx, personID, now)
	return left > 0, err
}

// Remaining returns how long the person still has to wait.
func (r *Redis) Remaining(ctx context.Context, personID string, now time.Time) (time.Duration, error) {
	val, err := r.client.Get(ctx, r.key(personID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cooldown get: %w", err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cooldown value %q: %w", val, err)
	}
	return Left(time.UnixMilli(ms), now, r.window), nil
}

// MarkSeen stores now as the last processed scan; Redis expires the key after the window.
func (r *Redis) MarkSeen(ctx context.Context, personID string, now time.Time) error {
	val := strconv.FormatInt(now.UnixMilli(), 10)
	if err := r.client.Set(ctx, r.key(personID), val, r.window).Err(); err != nil {
		return fmt.Errorf("cooldown set: %w", err)
	}
	return nil
}
