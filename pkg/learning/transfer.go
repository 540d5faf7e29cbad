package learning

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/knowledge"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// transferDecay discounts copied patterns: borrowed experience is worth
// less than lived experience.
const transferDecay = 0.8

// runTimeout bounds one transfer round.
const runTimeout = 30 * time.Second

// Transfer periodically copies the strongest patterns from one agent to
// another, picked by the configured affinity matrix.
type Transfer struct {
	patterns *knowledge.Service
	cfg      config.TransferConfig
	clk      clock.Clock
	logger   *slog.Logger
	pick     func(total float64) float64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// TransferOption customizes a Transfer.
type TransferOption func(*Transfer)

// WithPick overrides the random draw used for pair selection. The
// function receives the summed affinity weight and must return a value
// in [0, total).
func WithPick(pick func(total float64) float64) TransferOption {
	return func(t *Transfer) { t.pick = pick }
}

// NewTransfer builds the cross-agent transfer job.
func NewTransfer(patterns *knowledge.Service, cfg config.TransferConfig, clk clock.Clock, opts ...TransferOption) *Transfer {
	t := &Transfer{
		patterns: patterns,
		cfg:      cfg,
		clk:      clk,
		logger:   slog.Default().With("component", "transfer"),
		pick:     func(total float64) float64 { return rand.Float64() * total },
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the periodic job. A non-positive interval disables it.
func (t *Transfer) Start() {
	if t.cfg.Interval <= 0 {
		t.logger.Info("transfer disabled", "interval", t.cfg.Interval)
		return
	}
	t.wg.Add(1)
	go t.loop()
	t.logger.Info("transfer started", "interval", t.cfg.Interval, "top_k", t.cfg.TopK)
}

// Stop halts the job and waits for an in-flight round to finish.
func (t *Transfer) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

func (t *Transfer) loop() {
	defer t.wg.Done()
	timer := t.clk.NewTimer(t.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-timer.C():
			ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
			copied, err := t.RunOnce(ctx)
			cancel()
			if err != nil {
				t.logger.Error("transfer round failed", "error", err)
			} else if copied > 0 {
				t.logger.Info("transfer round done", "copied", copied)
			}
			timer.Reset(t.cfg.Interval)
		}
	}
}

// RunOnce performs a single transfer round and returns how many patterns
// were copied. A round with nothing worth copying is not an error.
func (t *Transfer) RunOnce(ctx context.Context) (int, error) {
	source, target, ok := t.choosePair()
	if !ok {
		return 0, nil
	}

	topK := t.cfg.TopK
	if topK <= 0 {
		topK = 1
	}
	candidates, err := t.patterns.Query(ctx, store.KnowledgeFilter{Owner: &source, Limit: topK})
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	existing, err := t.targetOrigins(ctx, target)
	if err != nil {
		return 0, err
	}

	copied := 0
	for _, pattern := range candidates {
		// Never bounce a pattern back to the agent it came from.
		if featureString(pattern.Features, "origin_owner") == string(target) {
			continue
		}
		if _, dup := existing[pattern.ID]; dup {
			continue
		}
		if err := t.copyPattern(ctx, pattern, target); err != nil {
			return copied, err
		}
		copied++
	}
	if copied > 0 {
		t.logger.Info("patterns transferred",
			"source", source, "target", target, "copied", copied)
	}
	return copied, nil
}

// copyPattern inserts a decayed copy of pattern owned by target, keeping
// a pointer back to the original for dedup and audit.
func (t *Transfer) copyPattern(ctx context.Context, pattern *models.KnowledgePattern, target models.AgentKind) error {
	features := make(models.PatternFeatures, len(pattern.Features)+2)
	for k, v := range pattern.Features {
		features[k] = v
	}
	features["origin_pattern_id"] = pattern.ID
	features["origin_owner"] = string(pattern.OwnerKind)

	_, err := t.patterns.Record(ctx, &models.KnowledgePattern{
		OwnerKind:     target,
		Label:         pattern.Label,
		Features:      features,
		Effectiveness: clamp01(pattern.Effectiveness * transferDecay),
	})
	return err
}

// targetOrigins returns the set of origin pattern ids already present on
// the target, so repeated rounds stay idempotent.
func (t *Transfer) targetOrigins(ctx context.Context, target models.AgentKind) (map[string]struct{}, error) {
	rows, err := t.patterns.Query(ctx, store.KnowledgeFilter{Owner: &target, Limit: patternScanLimit})
	if err != nil {
		return nil, err
	}
	origins := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if id := featureString(row.Features, "origin_pattern_id"); id != "" {
			origins[id] = struct{}{}
		}
	}
	return origins, nil
}

type affinityPair struct {
	source models.AgentKind
	target models.AgentKind
	weight float64
}

// choosePair draws one (source, target) pair weighted by the affinity
// matrix. An empty matrix falls back to uniform weights over every
// ordered pair of distinct kinds.
func (t *Transfer) choosePair() (models.AgentKind, models.AgentKind, bool) {
	pairs := affinityPairs(t.cfg.AffinityMatrix)
	if len(pairs) == 0 {
		return "", "", false
	}
	total := 0.0
	for _, p := range pairs {
		total += p.weight
	}
	draw := t.pick(total)
	for _, p := range pairs {
		draw -= p.weight
		if draw < 0 {
			return p.source, p.target, true
		}
	}
	last := pairs[len(pairs)-1]
	return last.source, last.target, true
}

func affinityPairs(matrix map[string]map[string]float64) []affinityPair {
	if len(matrix) == 0 {
		return uniformPairs()
	}
	var pairs []affinityPair
	for _, source := range models.AllAgentKinds() {
		row, ok := matrix[string(source)]
		if !ok {
			continue
		}
		for _, target := range models.AllAgentKinds() {
			if target == source {
				continue
			}
			weight := row[string(target)]
			if weight > 0 {
				pairs = append(pairs, affinityPair{source: source, target: target, weight: weight})
			}
		}
	}
	if len(pairs) == 0 {
		return uniformPairs()
	}
	return pairs
}

func uniformPairs() []affinityPair {
	kinds := models.AllAgentKinds()
	pairs := make([]affinityPair, 0, len(kinds)*(len(kinds)-1))
	for _, source := range kinds {
		for _, target := range kinds {
			if target == source {
				continue
			}
			pairs = append(pairs, affinityPair{source: source, target: target, weight: 1})
		}
	}
	return pairs
}
