package llm

import (
	"context"
	"sync"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// slidingWindow counts request timestamps inside a trailing span. A limit of
// zero or less disables the window.
type slidingWindow struct {
	span   time.Duration
	limit  int
	stamps []time.Time
}

// prune drops stamps at or before now-span, so a slot frees exactly when the
// oldest request leaves the window.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func (w *slidingWindow) hasSlot() bool {
	return w.limit <= 0 || len(w.stamps) < w.limit
}

// nextSlot returns how long until the oldest stamp expires. Zero when a slot
// is already free.
func (w *slidingWindow) nextSlot(now time.Time) time.Duration {
	if w.hasSlot() {
		return 0
	}
	return w.stamps[0].Add(w.span).Sub(now)
}

type limiterKey struct {
	agent    models.AgentKind
	provider models.Provider
}

type limiterWindows struct {
	minute *slidingWindow
	day    *slidingWindow
}

// Limiter enforces per-(agent, provider) request rates over minute and day
// sliding windows. Agents suspend on Wait until a slot frees; cancellation
// is observable through ctx.
type Limiter struct {
	clk clock.Clock
	cfg config.RateLimitConfig

	mu      sync.Mutex
	windows map[limiterKey]*limiterWindows
}

// NewLimiter creates a rate limiter with the configured per-provider bounds.
func NewLimiter(clk clock.Clock, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		clk:     clk,
		cfg:     cfg,
		windows: make(map[limiterKey]*limiterWindows),
	}
}

func (l *Limiter) bounds(provider models.Provider) config.ProviderRateLimit {
	if provider == models.ProviderSecondary {
		return l.cfg.Secondary
	}
	return l.cfg.Primary
}

func (l *Limiter) get(agent models.AgentKind, provider models.Provider) *limiterWindows {
	key := limiterKey{agent: agent, provider: provider}
	w, ok := l.windows[key]
	if !ok {
		b := l.bounds(provider)
		w = &limiterWindows{
			minute: &slidingWindow{span: time.Minute, limit: b.PerMinute},
			day:    &slidingWindow{span: 24 * time.Hour, limit: b.PerDay},
		}
		l.windows[key] = w
	}
	return w
}

// Wait blocks until both windows have a free slot, records the request, and
// returns. Returns ctx.Err() when the caller gives up first. Concurrent
// waiters race for freed slots; losers recompute their wait and go back to
// sleep.
func (l *Limiter) Wait(ctx context.Context, agent models.AgentKind, provider models.Provider) error {
	for {
		l.mu.Lock()
		w := l.get(agent, provider)
		now := l.clk.Now()
		w.minute.prune(now)
		w.day.prune(now)
		if w.minute.hasSlot() && w.day.hasSlot() {
			w.minute.stamps = append(w.minute.stamps, now)
			w.day.stamps = append(w.day.stamps, now)
			l.mu.Unlock()
			return nil
		}
		delay := w.minute.nextSlot(now)
		if d := w.day.nextSlot(now); d > delay {
			delay = d
		}
		l.mu.Unlock()

		if delay <= 0 {
			delay = time.Millisecond
		}
		if err := l.clk.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
