package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	timer := fc.NewTimer(90 * time.Minute)

	fc.Advance(89 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	fc.Advance(1 * time.Minute)
	select {
	case at := <-timer.C():
		assert.Equal(t, start.Add(90*time.Minute), at)
	default:
		t.Fatal("timer did not fire at exactly the deadline")
	}
}

func TestFakeSleepCancellation(t *testing.T) {
	fc := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fc.Sleep(ctx, time.Hour) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep did not observe cancellation")
	}
}

func TestFakeStoppedTimerDoesNotFire(t *testing.T) {
	fc := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	timer := fc.NewTimer(time.Minute)
	require.True(t, timer.Stop())

	fc.Advance(2 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFakeNowIsStableWithoutAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fc := NewFake(start)
	assert.Equal(t, start, fc.Now())
	assert.Equal(t, start, fc.Now())
	fc.Advance(time.Second)
	assert.Equal(t, start.Add(time.Second), fc.Now())
}

func TestSystemSleepZeroReturnsImmediately(t *testing.T) {
	sc := NewSystem()
	require.NoError(t, sc.Sleep(context.Background(), 0))
}
