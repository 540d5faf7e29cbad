package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/knowledge"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
	"github.com/lvlup-dev/ascent/pkg/store/memory"
)

type transferFixture struct {
	svc   *knowledge.Service
	clock *clock.Fake
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(time.Date(2025, 6, 6, 8, 0, 0, 0, time.UTC))
	return &transferFixture{
		svc:   knowledge.NewService(st.Knowledge(), clk),
		clock: clk,
	}
}

func (f *transferFixture) newTransfer(cfg config.TransferConfig, opts ...TransferOption) *Transfer {
	return NewTransfer(f.svc, cfg, f.clock, opts...)
}

func (f *transferFixture) seedPattern(t *testing.T, kind models.AgentKind, eff float64, features models.PatternFeatures) *models.KnowledgePattern {
	t.Helper()
	if features == nil {
		features = models.PatternFeatures{"category": "knowledge"}
	}
	stored, err := f.svc.Record(context.Background(), &models.KnowledgePattern{
		OwnerKind:     kind,
		Label:         models.PatternSuccess,
		Features:      features,
		Effectiveness: eff,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return stored
}

func (f *transferFixture) patternsOf(t *testing.T, kind models.AgentKind) []*models.KnowledgePattern {
	t.Helper()
	rows, err := f.svc.Query(context.Background(), store.KnowledgeFilter{Owner: &kind})
	require.NoError(t, err)
	return rows
}

// pairCfg forces a deterministic (source, target) choice.
func pairCfg(source, target models.AgentKind, topK int) config.TransferConfig {
	return config.TransferConfig{
		Interval: time.Hour,
		TopK:     topK,
		AffinityMatrix: map[string]map[string]float64{
			string(source): {string(target): 1},
		},
	}
}

func TestRunOnceCopiesTopKWithDecay(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	best := f.seedPattern(t, models.AgentImperium, 0.9, nil)
	second := f.seedPattern(t, models.AgentImperium, 0.8, nil)
	f.seedPattern(t, models.AgentImperium, 0.5, nil)
	f.seedPattern(t, models.AgentGuardian, 0.95, nil)

	job := f.newTransfer(pairCfg(models.AgentImperium, models.AgentSandbox, 2))
	copied, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	rows := f.patternsOf(t, models.AgentSandbox)
	require.Len(t, rows, 2)

	// Query orders by effectiveness desc, so the decayed best comes first.
	assert.InDelta(t, 0.72, rows[0].Effectiveness, 1e-9)
	assert.InDelta(t, 0.64, rows[1].Effectiveness, 1e-9)
	assert.Equal(t, best.ID, rows[0].Features["origin_pattern_id"])
	assert.Equal(t, second.ID, rows[1].Features["origin_pattern_id"])
	for _, row := range rows {
		assert.Equal(t, models.AgentSandbox, row.OwnerKind)
		assert.Equal(t, models.PatternSuccess, row.Label)
		assert.Equal(t, "imperium", row.Features["origin_owner"])
		assert.Equal(t, "knowledge", row.Features["category"])
	}

	// The source keeps its originals untouched.
	sources := f.patternsOf(t, models.AgentImperium)
	require.Len(t, sources, 3)
	assert.InDelta(t, 0.9, sources[0].Effectiveness, 1e-9)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	f.seedPattern(t, models.AgentImperium, 0.9, nil)

	job := f.newTransfer(pairCfg(models.AgentImperium, models.AgentConquest, 3))

	copied, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	copied, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, copied)

	assert.Len(t, f.patternsOf(t, models.AgentConquest), 1)
}

func TestRunOnceNeverBouncesPatternsBack(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	// Sandbox's only pattern is a copy that originated with Imperium.
	f.seedPattern(t, models.AgentSandbox, 0.72, models.PatternFeatures{
		"origin_pattern_id": "pat-src",
		"origin_owner":      "imperium",
	})

	job := f.newTransfer(pairCfg(models.AgentSandbox, models.AgentImperium, 3))
	copied, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, copied)
	assert.Empty(t, f.patternsOf(t, models.AgentImperium))
}

func TestRunOnceWithEmptySourceIsNoOp(t *testing.T) {
	f := newTransferFixture(t)

	job := f.newTransfer(pairCfg(models.AgentGuardian, models.AgentSandbox, 3))
	copied, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, copied)
}

func TestChoosePairFollowsWeights(t *testing.T) {
	f := newTransferFixture(t)
	cfg := config.TransferConfig{
		Interval: time.Hour,
		TopK:     1,
		AffinityMatrix: map[string]map[string]float64{
			"imperium": {"guardian": 3, "sandbox": 1},
		},
	}

	job := f.newTransfer(cfg, WithPick(func(total float64) float64 {
		assert.InDelta(t, 4.0, total, 1e-9)
		return 2.9
	}))
	source, target, ok := job.choosePair()
	require.True(t, ok)
	assert.Equal(t, models.AgentImperium, source)
	assert.Equal(t, models.AgentGuardian, target)

	job = f.newTransfer(cfg, WithPick(func(total float64) float64 { return 3.5 }))
	_, target, ok = job.choosePair()
	require.True(t, ok)
	assert.Equal(t, models.AgentSandbox, target)
}

func TestAffinityPairsDefaultToUniform(t *testing.T) {
	for _, matrix := range []map[string]map[string]float64{
		nil,
		{},
		{"imperium": {"imperium": 5}}, // self pairs are stripped
	} {
		pairs := affinityPairs(matrix)
		assert.Len(t, pairs, 12)
		for _, p := range pairs {
			assert.NotEqual(t, p.source, p.target)
			assert.Equal(t, 1.0, p.weight)
		}
	}
}

func TestTransferLifecycle(t *testing.T) {
	f := newTransferFixture(t)
	f.seedPattern(t, models.AgentImperium, 0.9, nil)

	cfg := pairCfg(models.AgentImperium, models.AgentGuardian, 1)
	cfg.Interval = time.Minute
	job := f.newTransfer(cfg)
	job.Start()

	require.Eventually(t, func() bool {
		f.clock.Advance(time.Minute)
		return len(f.patternsOf(t, models.AgentGuardian)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	job.Stop()
	job.Stop() // idempotent
}

func TestTransferDisabledWithoutInterval(t *testing.T) {
	f := newTransferFixture(t)
	job := f.newTransfer(config.TransferConfig{TopK: 1})
	job.Start()
	job.Stop()
}
