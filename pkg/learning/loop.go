// Package learning turns scored cycle outcomes and human proposal
// decisions into knowledge patterns. The loop consumes broker deliveries
// and writes patterns through the knowledge service; it never touches
// agent metrics, which stay single-writer inside the cycle engine.
package learning

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/events"
	"github.com/lvlup-dev/ascent/pkg/knowledge"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

const (
	// promoteThreshold is the overall score at and above which a cycle
	// becomes a success pattern, regardless of category threshold.
	promoteThreshold = 85.0
	// failureMargin is how far below the category pass threshold a score
	// must land before the cycle becomes a failure pattern. Near-misses
	// teach nothing reliable either way.
	failureMargin = 10.0
	// scoreLookback bounds the recent-score scan used to recover the full
	// breakdown for a response id carried in a cycle event.
	scoreLookback = 10
	// handleTimeout bounds the store work done for one delivery.
	handleTimeout = 10 * time.Second
)

// Loop subscribes to cycle and proposal events and distills them into
// knowledge patterns.
type Loop struct {
	broker   *events.Broker
	patterns *knowledge.Service
	st       store.Store
	cfg      *config.Config
	clk      clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	sub    *events.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoop builds a learning loop. Start must be called before it
// consumes anything.
func NewLoop(broker *events.Broker, patterns *knowledge.Service, st store.Store, cfg *config.Config, clk clock.Clock) *Loop {
	return &Loop{
		broker:   broker,
		patterns: patterns,
		st:       st,
		cfg:      cfg,
		clk:      clk,
		logger:   slog.Default().With("component", "learning"),
	}
}

// Start subscribes to the cycle and proposal channels and begins
// consuming. Calling Start on a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.sub = l.broker.Subscribe(events.ChannelCycle, events.ChannelProposal)

	l.wg.Add(1)
	go l.run(ctx, l.sub)
	l.logger.Info("learning loop started")
}

// Stop detaches from the broker and waits for in-flight handling to
// finish. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	sub, cancel := l.sub, l.cancel
	l.sub, l.cancel = nil, nil
	l.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	cancel()
	l.wg.Wait()
	l.logger.Info("learning loop stopped")
}

func (l *Loop) run(ctx context.Context, sub *events.Subscription) {
	defer l.wg.Done()
	for delivery := range sub.C() {
		hctx, hcancel := context.WithTimeout(ctx, handleTimeout)
		l.handle(hctx, delivery)
		hcancel()
	}
}

func (l *Loop) handle(ctx context.Context, delivery events.Delivery) {
	switch delivery.Channel {
	case events.ChannelCycle:
		var payload events.CycleEndPayload
		if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
			l.logger.Warn("undecodable cycle event dropped", "error", err)
			return
		}
		if payload.Type != events.TypeCycleEnd {
			return
		}
		if err := l.learnFromCycle(ctx, payload); err != nil {
			l.logger.Error("cycle learning failed",
				"cycle_id", payload.CycleID, "error", err)
		}
	case events.ChannelProposal:
		var payload events.ProposalDecidedPayload
		if err := json.Unmarshal(delivery.Payload, &payload); err != nil {
			l.logger.Warn("undecodable proposal event dropped", "error", err)
			return
		}
		if payload.Type != events.TypeProposalDecided {
			return
		}
		verdict, ok := verdictForStatus(payload.Status)
		if !ok {
			return
		}
		if _, err := l.ApplyFeedback(ctx, FeedbackRef{ProposalID: payload.ProposalID}, verdict); err != nil {
			l.logger.Error("proposal feedback failed",
				"proposal_id", payload.ProposalID, "error", err)
		}
	}
}

// learnFromCycle promotes one scored cycle into a pattern when its
// overall score is decisive enough. Skipped and errored cycles carry no
// response and are ignored.
func (l *Loop) learnFromCycle(ctx context.Context, payload events.CycleEndPayload) error {
	if payload.Outcome != models.CycleOK || payload.ResponseID == "" {
		return nil
	}

	threshold := l.cfg.PassThreshold(string(payload.Category))
	label, effectiveness, decisive := classify(payload.Overall, threshold)
	if !decisive {
		return nil
	}

	features := map[string]any{
		"category":    string(payload.Category),
		"complexity":  string(payload.Complexity),
		"overall":     payload.Overall,
		"scenario_id": payload.ScenarioID,
		"response_id": payload.ResponseID,
	}
	l.enrichFeatures(ctx, payload, features)

	pattern := &models.KnowledgePattern{
		OwnerKind:     payload.AgentKind,
		Label:         label,
		Features:      features,
		Effectiveness: effectiveness,
	}
	stored, err := l.patterns.Record(ctx, pattern)
	if err != nil {
		return err
	}
	l.logger.Info("pattern recorded",
		"pattern_id", stored.ID,
		"agent_kind", payload.AgentKind,
		"label", label,
		"effectiveness", effectiveness)
	return nil
}

// classify maps an overall score to a pattern label and effectiveness.
// The middle band between threshold-failureMargin and promoteThreshold
// is indecisive and produces nothing.
func classify(overall, threshold float64) (models.PatternLabel, float64, bool) {
	switch {
	case overall >= promoteThreshold:
		return models.PatternSuccess, clamp01(overall / 100), true
	case overall < threshold-failureMargin:
		return models.PatternFailure, clamp01((threshold - overall) / 100), true
	default:
		return "", 0, false
	}
}

// enrichFeatures adds response timing and score breakdown details when
// the rows are still reachable. Enrichment is best-effort: a pattern
// without timing is still a pattern.
func (l *Loop) enrichFeatures(ctx context.Context, payload events.CycleEndPayload, features map[string]any) {
	if response, err := l.st.Responses().Get(ctx, payload.ResponseID); err == nil {
		features["duration_ms"] = response.DurationMS
	} else {
		l.logger.Debug("response lookup failed", "response_id", payload.ResponseID, "error", err)
	}

	recent, err := l.st.Scores().Recent(ctx, payload.AgentKind, scoreLookback)
	if err != nil {
		l.logger.Debug("score lookup failed", "agent_kind", payload.AgentKind, "error", err)
		return
	}
	for _, score := range recent {
		if score.ResponseID != payload.ResponseID {
			continue
		}
		if len(score.Strengths) > 0 {
			features["strengths"] = append([]string(nil), score.Strengths...)
		}
		if len(score.Weaknesses) > 0 {
			features["weaknesses"] = append([]string(nil), score.Weaknesses...)
		}
		return
	}
}

func verdictForStatus(status models.ProposalStatus) (Verdict, bool) {
	switch status {
	case models.ProposalApproved:
		return VerdictApproved, true
	case models.ProposalRejected:
		return VerdictRejected, true
	default:
		return "", false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
