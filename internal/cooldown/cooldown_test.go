package cooldown

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTracker(t *testing.T, window time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, window, ""), mr
}

func TestTrackers_Window(t *testing.T) {
	const window = 30 * time.Second
	redisTracker, _ := newRedisTracker(t, window)

	trackers := map[string]Tracker{
		"memory": NewMemory(window),
		"redis":  redisTracker,
	}

	seenAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name       string
		at         time.Time
		inCooldown bool
		remaining  time.Duration
	}{
		{name: "same instant", at: seenAt, inCooldown: true, remaining: window},
		{name: "clock behind last seen", at: seenAt.Add(-time.Second), inCooldown: true, remaining: window},
		{name: "clock far behind last seen", at: seenAt.Add(-time.Hour), inCooldown: true, remaining: window},
		{name: "just before window ends", at: seenAt.Add(window - time.Millisecond), inCooldown: true, remaining: time.Millisecond},
		{name: "exactly at window", at: seenAt.Add(window), inCooldown: false},
		{name: "after window", at: seenAt.Add(2 * window), inCooldown: false},
	}

	for backend, tr := range trackers {
		ctx := context.Background()
		require.NoError(t, tr.MarkSeen(ctx, "S001", seenAt))

		for _, tc := range testCases {
			t.Run(backend+"/"+tc.name, func(t *testing.T) {
				got, err := tr.IsInCooldown(ctx, "S001", tc.at)
				require.NoError(t, err)
				assert.Equal(t, tc.inCooldown, got)

				left, err := tr.Remaining(ctx, "S001", tc.at)
				require.NoError(t, err)
				assert.Equal(t, tc.remaining, left)
			})
		}

		t.Run(backend+"/unknown person", func(t *testing.T) {
			got, err := tr.IsInCooldown(ctx, "STU404", seenAt)
			require.NoError(t, err)
			assert.False(t, got)
		})
	}
}

func TestRedis_KeyExpires(t *testing.T) {
	tr, mr := newRedisTracker(t, 30*time.Second)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tr.MarkSeen(ctx, "STU001", now))
	assert.True(t, mr.Exists("gate:cooldown:STU001"))

	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists("gate:cooldown:STU001"))

	got, err := tr.IsInCooldown(ctx, "STU001", now)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestRedis_BackendDown(t *testing.T) {
	tr, mr := newRedisTracker(t, time.Second)
	mr.Close()

	_, err := tr.IsInCooldown(context.Background(), "S001", time.Now())
	assert.Error(t, err)
}

func TestMemory_ConcurrentUse(t *testing.T) {
	tr := NewMemory(30 * time.Second)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("student:STU%03d", i%4)
			_ = tr.MarkSeen(ctx, key, now)
			_, _ = tr.Remaining(ctx, key, now)
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		got, err := tr.IsInCooldown(ctx, fmt.Sprintf("student:STU%03d", i), now.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, got)
	}
}
