package custody

import "errors"

var (
	// ErrCycleInFlight is returned when a cycle for the same agent kind is
	// already running. Cycles per kind are strictly serialized.
	ErrCycleInFlight = errors.New("cycle already in flight for this agent")

	// ErrScorerIndeterminate is returned when no detector applies to any of
	// a scenario's criteria, so no honest score can be produced.
	ErrScorerIndeterminate = errors.New("scorer cannot grade this scenario")

	// ErrCategoryNotAllowed is returned when a requested category is outside
	// the agent's allowed set.
	ErrCategoryNotAllowed = errors.New("category not allowed for this agent")

	// ErrScenarioSpaceExhausted is returned when the generator walks the
	// entire slot space of a template family without finding a prompt
	// outside the non-repetition window.
	ErrScenarioSpaceExhausted = errors.New("scenario space exhausted for this category")
)
