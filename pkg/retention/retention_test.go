package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
	"github.com/lvlup-dev/ascent/pkg/store/memory"
)

type retentionFixture struct {
	service *Service
	store   *memory.Store
	clock   *clock.Fake
}

// newFixture pins the fake clock near the real one: the memory event store
// stamps rows with wall time, so TTL math needs the two aligned.
func newFixture(t *testing.T, cfg config.RetentionConfig) *retentionFixture {
	t.Helper()
	st := memory.New()
	fc := clock.NewFake(time.Now().UTC())
	return &retentionFixture{
		service: New(st, cfg, fc),
		store:   st,
		clock:   fc,
	}
}

func defaultCfg() config.RetentionConfig {
	return config.RetentionConfig{EventTTL: 24 * time.Hour, Interval: time.Hour}
}

func seedLedgerMonth(t *testing.T, fx *retentionFixture, month string, tokens int64) {
	t.Helper()
	err := fx.store.Tokens().Append(context.Background(), &models.TokenLedgerEntry{
		AgentKind: models.AgentImperium,
		Provider:  models.ProviderPrimary,
		Month:     month,
		TokensIn:  tokens,
		ModelID:   "test-model",
		Kind:      models.TokenKindChat,
		OK:        true,
		At:        fx.clock.Now(),
	})
	require.NoError(t, err)
}

func liveMonths(t *testing.T, fx *retentionFixture) []string {
	t.Helper()
	aggs, err := fx.store.Tokens().Usage(context.Background(), store.UsageFilter{})
	require.NoError(t, err)
	months := make([]string, 0, len(aggs))
	for _, a := range aggs {
		months = append(months, a.Month)
	}
	return months
}

func TestRunOnceArchivesPastMonths(t *testing.T) {
	fx := newFixture(t, defaultCfg())
	current := models.MonthOf(fx.clock.Now())
	seedLedgerMonth(t, fx, "2020-01", 500)
	seedLedgerMonth(t, fx, "2020-02", 300)
	seedLedgerMonth(t, fx, current, 100)

	fx.service.RunOnce(context.Background())

	assert.Equal(t, []string{current}, liveMonths(t, fx))
}

func TestRunOnceKeepsCurrentMonth(t *testing.T) {
	fx := newFixture(t, defaultCfg())
	current := models.MonthOf(fx.clock.Now())
	seedLedgerMonth(t, fx, current, 100)

	fx.service.RunOnce(context.Background())

	assert.Equal(t, []string{current}, liveMonths(t, fx))
}

func TestRunOnceDeletesExpiredEvents(t *testing.T) {
	fx := newFixture(t, defaultCfg())
	ctx := context.Background()

	_, err := fx.store.Events().Insert(ctx, events.ChannelCycle, []byte(`{"type":"cycle.end"}`))
	require.NoError(t, err)

	// Older than the 24h TTL once the clock moves a day and a bit.
	fx.clock.Advance(25 * time.Hour)
	fx.service.RunOnce(ctx)

	rows, err := fx.store.Events().ListAfter(ctx, events.ChannelCycle, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRunOnceKeepsFreshEvents(t *testing.T) {
	fx := newFixture(t, defaultCfg())
	ctx := context.Background()

	_, err := fx.store.Events().Insert(ctx, events.ChannelCycle, []byte(`{"type":"cycle.end"}`))
	require.NoError(t, err)

	fx.clock.Advance(time.Hour)
	fx.service.RunOnce(ctx)

	rows, err := fx.store.Events().ListAfter(ctx, events.ChannelCycle, 0, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestZeroTTLSkipsEventCleanup(t *testing.T) {
	fx := newFixture(t, config.RetentionConfig{EventTTL: 0, Interval: time.Hour})
	ctx := context.Background()

	_, err := fx.store.Events().Insert(ctx, events.ChannelCycle, []byte(`{"type":"cycle.end"}`))
	require.NoError(t, err)

	fx.clock.Advance(100 * 24 * time.Hour)
	fx.service.RunOnce(ctx)

	rows, err := fx.store.Events().ListAfter(ctx, events.ChannelCycle, 0, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunOnceOnEmptyStoreIsIdempotent(t *testing.T) {
	fx := newFixture(t, defaultCfg())

	assert.NotPanics(t, func() {
		fx.service.RunOnce(context.Background())
		fx.service.RunOnce(context.Background())
	})
}

func TestTimerDrivesSweep(t *testing.T) {
	fx := newFixture(t, defaultCfg())
	seedLedgerMonth(t, fx, "2020-01", 500)

	fx.service.Start()
	defer fx.service.Stop()

	// Advancing inside the poll tolerates the loop registering its timer
	// after the first advance.
	assert.Eventually(t, func() bool {
		fx.clock.Advance(time.Hour)
		aggs, err := fx.store.Tokens().Usage(context.Background(), store.UsageFilter{})
		return err == nil && len(aggs) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartWithoutIntervalIsDisabled(t *testing.T) {
	fx := newFixture(t, config.RetentionConfig{EventTTL: 24 * time.Hour})

	assert.NotPanics(t, func() {
		fx.service.Start()
		fx.service.Stop()
	})
}

func TestStopIsIdempotent(t *testing.T) {
	fx := newFixture(t, defaultCfg())
	fx.service.Start()

	fx.service.Stop()
	assert.NotPanics(t, fx.service.Stop)
}

func TestNewPanicsOnNilDependencies(t *testing.T) {
	st := memory.New()
	fc := clock.NewFake(time.Now().UTC())

	assert.Panics(t, func() { New(nil, defaultCfg(), fc) })
	assert.Panics(t, func() { New(st, defaultCfg(), nil) })
}
