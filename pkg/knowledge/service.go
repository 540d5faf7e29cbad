// Package knowledge validates and serves the labeled behavior patterns the
// learning loop accumulates. The store keeps rows dumb; every invariant
// (valid owner and label, effectiveness inside [0,1]) is enforced here.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// ErrInvalidPattern rejects records that fail validation.
var ErrInvalidPattern = errors.New("invalid knowledge pattern")

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Service is the single gateway for reading and writing knowledge patterns.
type Service struct {
	patterns store.KnowledgeStore
	clk      clock.Clock
	logger   *slog.Logger
}

// NewService creates the knowledge service.
func NewService(patterns store.KnowledgeStore, clk clock.Clock) *Service {
	return &Service{
		patterns: patterns,
		clk:      clk,
		logger:   slog.Default().With("component", "knowledge"),
	}
}

// Record validates and persists a pattern. Missing ID and CreatedAt are
// assigned; effectiveness is clamped into [0,1]. The stored pattern is
// returned.
func (s *Service) Record(ctx context.Context, pattern *models.KnowledgePattern) (*models.KnowledgePattern, error) {
	if pattern == nil {
		return nil, fmt.Errorf("%w: nil pattern", ErrInvalidPattern)
	}
	if !pattern.OwnerKind.IsValid() {
		return nil, fmt.Errorf("%w: unknown owner %q", ErrInvalidPattern, pattern.OwnerKind)
	}
	if !pattern.Label.IsValid() {
		return nil, fmt.Errorf("%w: unknown label %q", ErrInvalidPattern, pattern.Label)
	}
	if len(pattern.Features) == 0 {
		return nil, fmt.Errorf("%w: empty features", ErrInvalidPattern)
	}

	stored := *pattern
	stored.Features = pattern.Features
	stored.Effectiveness = clamp01(stored.Effectiveness)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clk.Now().UTC()
	}

	if err := s.patterns.Insert(ctx, &stored); err != nil {
		return nil, fmt.Errorf("persisting pattern: %w", err)
	}
	s.logger.Debug("Pattern recorded",
		"pattern_id", stored.ID, "owner", stored.OwnerKind,
		"label", stored.Label, "effectiveness", stored.Effectiveness)
	return &stored, nil
}

// Get loads one pattern by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.KnowledgePattern, error) {
	return s.patterns.Get(ctx, id)
}

// Query returns patterns ordered by effectiveness. The limit defaults to 50
// and is capped at 500.
func (s *Service) Query(ctx context.Context, filter store.KnowledgeFilter) ([]*models.KnowledgePattern, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	if filter.Owner != nil && !filter.Owner.IsValid() {
		return nil, fmt.Errorf("%w: unknown owner %q", ErrInvalidPattern, *filter.Owner)
	}
	if filter.Label != nil && !filter.Label.IsValid() {
		return nil, fmt.Errorf("%w: unknown label %q", ErrInvalidPattern, *filter.Label)
	}
	return s.patterns.Query(ctx, filter)
}

// AdjustEffectiveness shifts a pattern's effectiveness by delta, clamped to
// [0,1], and returns the stored value.
func (s *Service) AdjustEffectiveness(ctx context.Context, id string, delta float64) (float64, error) {
	pattern, err := s.patterns.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	next := clamp01(pattern.Effectiveness + delta)
	if err := s.patterns.UpdateEffectiveness(ctx, id, next); err != nil {
		return 0, fmt.Errorf("updating effectiveness of %s: %w", id, err)
	}
	return next, nil
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
