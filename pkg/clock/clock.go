// Package clock abstracts time so schedulers and tests share one source.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock supplies wall time and timer primitives. Components never call the
// time package directly for scheduling or persistence stamps.
type Clock interface {
	// Now returns the current wall time in UTC.
	Now() time.Time
	// Since returns the elapsed time since t.
	Since(t time.Time) time.Duration
	// NewTimer returns a timer that fires after d.
	NewTimer(d time.Duration) Timer
	// Sleep blocks for d or until ctx is done, returning ctx.Err() on cancellation.
	Sleep(ctx context.Context, d time.Duration) error
}

// Timer is the subset of time.Timer the platform needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// System is the production clock backed by the OS.
type System struct{}

// NewSystem returns the OS-backed clock.
func NewSystem() *System { return &System{} }

func (*System) Now() time.Time                    { return time.Now().UTC() }
func (*System) Since(t time.Time) time.Duration   { return time.Since(t) }
func (*System) NewTimer(d time.Duration) Timer    { return &systemTimer{t: time.NewTimer(d)} }
func (*System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type systemTimer struct{ t *time.Timer }

func (s *systemTimer) C() <-chan time.Time        { return s.t.C }
func (s *systemTimer) Stop() bool                 { return s.t.Stop() }
func (s *systemTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }

// Fake is a deterministic clock for tests. It starts at a fixed instant and
// moves only when Advance is called; timers and sleepers due at or before the
// new time fire synchronously.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
	stopped  bool
}

// NewFake returns a fake clock pinned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// Advance moves the clock forward by d and fires everything due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []*fakeWaiter
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.stopped && !w.deadline.After(now) {
			due = append(due, w)
		} else if !w.stopped {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()

	for _, w := range due {
		select {
		case w.ch <- now:
		default:
		}
	}
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		w.ch <- f.now
	} else {
		f.waiters = append(f.waiters, w)
	}
	return &fakeTimer{f: f, w: w}
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := f.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

type fakeTimer struct {
	f *Fake
	w *fakeWaiter
}

func (t *fakeTimer) C() <-chan time.Time { return t.w.ch }

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	was := !t.w.stopped
	t.w.stopped = true
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	was := !t.w.stopped
	t.w.stopped = false
	t.w.deadline = t.f.now.Add(d)
	if d <= 0 {
		select {
		case t.w.ch <- t.f.now:
		default:
		}
	} else {
		t.f.waiters = append(t.f.waiters, t.w)
	}
	return was
}
