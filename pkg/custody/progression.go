package custody

import (
	"math"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// xpBase is the full-marks XP award per complexity, in Basic..Legendary
// order.
var xpBase = [...]int64{50, 100, 200, 400, 800, 1600}

// xpGain converts a scored cycle into an XP award. Failed tests award
// nothing; passed tests award the complexity base scaled by the overall
// score, never less than 1.
func xpGain(complexity models.Complexity, overall float64, passed bool) int64 {
	if !passed {
		return 0
	}
	rank := complexity.Rank()
	if rank < 0 {
		rank = 0
	}
	gain := int64(math.Round(float64(xpBase[rank]) * overall / 100))
	if gain < 1 {
		gain = 1
	}
	return gain
}

// levelThresholds holds the cumulative XP required to hold levels 1..10.
// Levels past 10 cost a flat 20000 XP each.
var levelThresholds = [...]int64{0, 500, 1500, 3500, 7000, 12000, 19000, 28000, 40000, 55000}

const xpPerLevelAfter10 = 20000

// levelForXP maps cumulative XP to a level. Monotonic in xp.
func levelForXP(xp int64) int {
	if xp >= levelThresholds[len(levelThresholds)-1] {
		extra := (xp - levelThresholds[len(levelThresholds)-1]) / xpPerLevelAfter10
		return len(levelThresholds) + int(extra)
	}
	level := 1
	for i, threshold := range levelThresholds {
		if xp < threshold {
			break
		}
		level = i + 1
	}
	return level
}

// prestigeForLevel derives the prestige tier: one tier per ten levels held.
func prestigeForLevel(level int) int {
	if level < 1 {
		return 0
	}
	return (level - 1) / 10
}

// baseComplexity maps an agent's level to its default test complexity.
// Basic is never assigned by level; it is only reached by the recent-score
// adjustment.
func baseComplexity(level int) models.Complexity {
	switch {
	case level >= 35:
		return models.ComplexityLegendary
	case level >= 20:
		return models.ComplexityMaster
	case level >= 10:
		return models.ComplexityExpert
	case level >= 5:
		return models.ComplexityAdvanced
	default:
		return models.ComplexityIntermediate
	}
}

// adjustComplexity nudges the level-derived base by recent performance
// against the category's pass threshold: a last-5 average at or above 0.8x
// the threshold earns a harder test, at or below 0.4x an easier one.
func adjustComplexity(base models.Complexity, recent []*models.Score, threshold float64) models.Complexity {
	if len(recent) == 0 || threshold <= 0 {
		return base
	}
	var sum float64
	for _, s := range recent {
		sum += s.Overall
	}
	ratio := sum / float64(len(recent)) / threshold
	switch {
	case ratio >= 0.8:
		return base.Raise()
	case ratio <= 0.4:
		return base.Lower()
	default:
		return base
	}
}

const (
	learningStepCap    = 1.0
	successObservation = 100.0
)

// nextSuccessRate folds one pass/fail observation into the success-rate
// EWMA. The very first cycle seeds the average with the observation itself.
func nextSuccessRate(prev float64, passed bool, priorCycles int64, alpha float64) float64 {
	obs := 0.0
	if passed {
		obs = successObservation
	}
	if priorCycles == 0 {
		return obs
	}
	return prev*(1-alpha) + obs*alpha
}

// nextLearningScore folds one overall score into the learning-score EWMA.
// The stored value is a ratchet: it never decreases and climbs at most
// learningStepCap per update.
func nextLearningScore(prev, overall, alpha float64) float64 {
	ewma := prev*(1-alpha) + overall*alpha
	return math.Max(prev, math.Min(prev+learningStepCap, ewma))
}

// consecutiveFailures counts the failed scores at the head of a
// newest-first history.
func consecutiveFailures(recent []*models.Score) int {
	n := 0
	for _, s := range recent {
		if s.Passed {
			break
		}
		n++
	}
	return n
}

// passShare returns the fraction of the given scores that passed.
func passShare(recent []*models.Score) float64 {
	if len(recent) == 0 {
		return 0
	}
	passed := 0
	for _, s := range recent {
		if s.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(recent))
}

// levelUpAllowed gates level advancement on recent form: at least 80% of
// the last (up to) five scores passed and no streak of three failures.
func levelUpAllowed(recent []*models.Score) bool {
	if len(recent) == 0 {
		return false
	}
	window := recent
	if len(window) > eligibilityWindow {
		window = window[:eligibilityWindow]
	}
	return passShare(window) >= 0.8 && consecutiveFailures(window) <= 2
}
