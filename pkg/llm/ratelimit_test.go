package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

func testLimiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Primary:   config.ProviderRateLimit{PerMinute: 3, PerDay: 5},
		Secondary: config.ProviderRateLimit{PerMinute: 2, PerDay: 100},
	}
}

// waitUnblocks runs Wait in a goroutine and advances the fake clock in steps
// until it returns, so the test does not depend on goroutine scheduling.
func waitUnblocks(t *testing.T, l *Limiter, fc *clock.Fake, step time.Duration, agent models.AgentKind, provider models.Provider) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Wait(context.Background(), agent, provider) }()

	require.Eventually(t, func() bool {
		fc.Advance(step)
		select {
		case err := <-done:
			require.NoError(t, err)
			return true
		default:
			return false
		}
	}, 5*time.Second, 5*time.Millisecond, "Wait should unblock once a slot frees")
}

func TestWaitAllowsUpToMinuteLimit(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	l := NewLimiter(fc, testLimiterConfig())

	for range 3 {
		require.NoError(t, l.Wait(context.Background(), models.AgentImperium, models.ProviderPrimary))
	}

	// The fourth caller inside the same minute suspends until the oldest
	// stamp leaves the window.
	waitUnblocks(t, l, fc, 10*time.Second, models.AgentImperium, models.ProviderPrimary)
}

func TestWaitEnforcesDayLimit(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	l := NewLimiter(fc, testLimiterConfig())

	// Burn the whole day budget (5) in minute-sized bites.
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background(), models.AgentImperium, models.ProviderPrimary))
		if (i+1)%3 == 0 {
			fc.Advance(time.Minute)
		}
	}

	// Minute window frees after a minute but the day window stays full, so
	// the next call needs the better part of a day.
	waitUnblocks(t, l, fc, time.Hour, models.AgentImperium, models.ProviderPrimary)
}

func TestWaitIsolatesAgentsAndProviders(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	l := NewLimiter(fc, testLimiterConfig())
	ctx := context.Background()

	for range 3 {
		require.NoError(t, l.Wait(ctx, models.AgentImperium, models.ProviderPrimary))
	}

	// Imperium's primary window is full; other keys are untouched.
	require.NoError(t, l.Wait(ctx, models.AgentGuardian, models.ProviderPrimary))
	require.NoError(t, l.Wait(ctx, models.AgentImperium, models.ProviderSecondary))
}

func TestWaitObservesCancellation(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	l := NewLimiter(fc, testLimiterConfig())

	for range 3 {
		require.NoError(t, l.Wait(context.Background(), models.AgentImperium, models.ProviderPrimary))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, models.AgentImperium, models.ProviderPrimary) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestWaitZeroLimitIsUnbounded(t *testing.T) {
	fc := clock.NewFake(time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC))
	l := NewLimiter(fc, config.RateLimitConfig{})

	for range 100 {
		require.NoError(t, l.Wait(context.Background(), models.AgentSandbox, models.ProviderPrimary))
	}
}
