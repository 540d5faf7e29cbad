// Package ledger enforces token budgets over the append-only spend ledger.
// Aggregates are derived sums keyed on the UTC month, so rollover needs no
// timer: a new month simply sums to zero.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// DenyReason says why a precheck refused a request.
type DenyReason string

const (
	// DenyRequestTooLarge means the estimate exceeds the per-request cap.
	DenyRequestTooLarge DenyReason = "request_too_large"
	// DenyMonthlyExhausted means the estimate would overrun the monthly cap.
	DenyMonthlyExhausted DenyReason = "monthly_exhausted"
)

// Decision is a precheck verdict. Usage is the month's consumption as a
// fraction of the monthly cap at decision time, before the estimate.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Usage   float64
}

// pressureThreshold is the usage fraction at which pressure events begin.
const pressureThreshold = 0.8

// pressureStep is the dedupe granularity for pressure events: one event
// per 5% step per (agent, provider, month).
const pressureStep = 0.05

// PressurePublisher is the slice of the event bus the ledger needs. A nil
// publisher disables pressure events.
type PressurePublisher interface {
	PublishTokenPressure(ctx context.Context, payload events.TokenPressurePayload) error
}

type pressureKey struct {
	agent    models.AgentKind
	provider models.Provider
	month    string
}

// Ledger answers budget prechecks and records spend. Caps come from
// configuration; the ledger knows numbers, not provider wire formats.
type Ledger struct {
	tokens store.TokenStore
	pub    PressurePublisher
	clk    clock.Clock
	cfg    config.TokenConfig
	logger *slog.Logger

	mu        sync.Mutex
	announced map[pressureKey]int
}

// New creates a ledger over the token store. pub may be nil.
func New(tokens store.TokenStore, pub PressurePublisher, clk clock.Clock, cfg config.TokenConfig) *Ledger {
	return &Ledger{
		tokens:    tokens,
		pub:       pub,
		clk:       clk,
		cfg:       cfg,
		logger:    slog.Default().With("component", "ledger"),
		announced: make(map[pressureKey]int),
	}
}

func (l *Ledger) budget(provider models.Provider) config.ProviderBudget {
	if provider == models.ProviderSecondary {
		return l.cfg.Secondary
	}
	return l.cfg.Primary
}

// Precheck decides whether a request estimated at est tokens may proceed.
// The monthly check is strict: a request that lands exactly on the cap is
// still allowed; the next one is not.
func (l *Ledger) Precheck(ctx context.Context, agent models.AgentKind, provider models.Provider, est int64) (Decision, error) {
	b := l.budget(provider)
	if b.PerRequestCap > 0 && est > b.PerRequestCap {
		return Decision{Reason: DenyRequestTooLarge}, nil
	}
	month := models.MonthOf(l.clk.Now())
	agg, err := l.tokens.Aggregate(ctx, agent, provider, month)
	if err != nil {
		return Decision{}, err
	}
	usage := agg.UsagePct(b.MonthlyCap)
	if b.MonthlyCap > 0 && agg.TokensTotal+est > b.MonthlyCap {
		return Decision{Reason: DenyMonthlyExhausted, Usage: usage}, nil
	}
	return Decision{Allowed: true, Usage: usage}, nil
}

// Spend is one gateway call's token accounting.
type Spend struct {
	Agent     models.AgentKind
	Provider  models.Provider
	RequestID string
	TokensIn  int64
	TokensOut int64
	Model     string
	Kind      models.TokenKind
	OK        bool
	Err       string
}

// Record appends a ledger row for the current month and raises a
// token.pressure event when the append moves usage past an unannounced 5%
// step at or above 80%. Pressure publishing is best-effort.
func (l *Ledger) Record(ctx context.Context, spend Spend) error {
	now := l.clk.Now().UTC()
	month := models.MonthOf(now)
	entry := &models.TokenLedgerEntry{
		AgentKind: spend.Agent,
		Provider:  spend.Provider,
		Month:     month,
		TokensIn:  spend.TokensIn,
		TokensOut: spend.TokensOut,
		RequestID: spend.RequestID,
		ModelID:   spend.Model,
		Kind:      spend.Kind,
		OK:        spend.OK,
		Err:       spend.Err,
		At:        now,
	}
	if entry.Kind == "" {
		entry.Kind = models.TokenKindChat
	}
	if err := l.tokens.Append(ctx, entry); err != nil {
		return err
	}
	l.checkPressure(ctx, spend.Agent, spend.Provider, month)
	return nil
}

func (l *Ledger) checkPressure(ctx context.Context, agent models.AgentKind, provider models.Provider, month string) {
	if l.pub == nil {
		return
	}
	b := l.budget(provider)
	if b.MonthlyCap <= 0 {
		return
	}
	agg, err := l.tokens.Aggregate(ctx, agent, provider, month)
	if err != nil {
		l.logger.Warn("Pressure check aggregate failed", "agent", agent, "provider", provider, "error", err)
		return
	}
	usage := agg.UsagePct(b.MonthlyCap)
	if usage < pressureThreshold {
		return
	}
	step := int(usage / pressureStep)

	key := pressureKey{agent: agent, provider: provider, month: month}
	l.mu.Lock()
	last, seen := l.announced[key]
	if seen && step <= last {
		l.mu.Unlock()
		return
	}
	l.announced[key] = step
	l.mu.Unlock()

	err = l.pub.PublishTokenPressure(ctx, events.TokenPressurePayload{
		AgentKind: agent,
		Provider:  provider,
		Month:     month,
		Usage:     usage,
		At:        l.clk.Now().UTC(),
	})
	if err != nil {
		l.logger.Warn("Token pressure event failed", "agent", agent, "provider", provider, "error", err)
	}
}

// Usage reports derived aggregates for the API.
func (l *Ledger) Usage(ctx context.Context, filter store.UsageFilter) ([]*models.TokenAggregate, error) {
	return l.tokens.Usage(ctx, filter)
}

// Reset archives the current month's ledger rows, leaving fresh aggregates.
// Admin-only; callers are expected to audit the call.
func (l *Ledger) Reset(ctx context.Context) (int64, error) {
	month := models.MonthOf(l.clk.Now())
	moved, err := l.tokens.ArchiveMonth(ctx, month)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	for key := range l.announced {
		if key.month == month {
			delete(l.announced, key)
		}
	}
	l.mu.Unlock()
	l.logger.Info("Token ledger reset", "month", month, "rows_archived", moved)
	return moved, nil
}
