package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterQuotaPerKey(t *testing.T) {
	t.Parallel()

	l := NewRateLimiter(CheckQuota, CheckWindow)

	for i := range CheckQuota {
		require.True(t, l.Allow("10.0.0.1"), "request %d should be within quota", i+1)
	}
	require.False(t, l.Allow("10.0.0.1"), "21st request must be denied")
	require.False(t, l.Allow("10.0.0.1"), "denials keep denying within the window")

	// A different caller has its own window.
	require.True(t, l.Allow("10.0.0.2"))
}

func TestRateLimiterWindowElapses(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := NewRateLimiter(2, time.Minute).WithClock(func() time.Time { return now })

	require.True(t, l.Allow("k"))
	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))

	// Just before the window boundary nothing resets.
	now = now.Add(59 * time.Second)
	require.False(t, l.Allow("k"))

	// Once the window has fully elapsed the quota is fresh.
	now = now.Add(2 * time.Second)
	require.True(t, l.Allow("k"))
	require.True(t, l.Allow("k"))
	require.False(t, l.Allow("k"))
}

func TestRateLimiterSweepsStaleKeys(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := NewRateLimiter(1, time.Minute).WithClock(func() time.Time { return now })

	for _, key := range []string{"a", "b", "c"} {
		require.True(t, l.Allow(key))
	}

	now = now.Add(10 * time.Minute)
	require.True(t, l.Allow("d"))

	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotContains(t, l.windows, "a")
	require.Contains(t, l.windows, "d")
}
