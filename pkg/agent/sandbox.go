package agent

import (
	"context"
	"fmt"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// Experiment is one designed trial: what is being tested, how, and what
// would count as success.
type Experiment struct {
	Name          string
	Hypothesis    string
	Method        string
	SuccessMetric string
}

// ExperimentDesigner produces the next experiment to run.
type ExperimentDesigner interface {
	Design(ctx context.Context) (*Experiment, error)
}

// Sandbox is the experimentation agent: its domain task designs one
// experiment per cycle. The scenario answer itself carries the plan that
// gets scored under the innovation criteria.
type Sandbox struct {
	base
	designer ExperimentDesigner
}

// NewSandbox builds the experimentation runner. A nil designer falls back
// to the built-in rotating catalog.
func NewSandbox(gateway Gateway, clk clock.Clock, designer ExperimentDesigner) *Sandbox {
	if designer == nil {
		designer = NewCatalogDesigner()
	}
	return &Sandbox{
		base:     newBase(models.AgentSandbox, gateway, clk),
		designer: designer,
	}
}

// RunDomainTask designs the cycle's experiment.
func (s *Sandbox) RunDomainTask(ctx context.Context) (*models.DomainResult, error) {
	experiment, err := s.designer.Design(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox design: %w", err)
	}
	return &models.DomainResult{
		Summary: fmt.Sprintf("experiment designed: %s (metric: %s)", experiment.Name, experiment.SuccessMetric),
		Details: map[string]any{
			"name":       experiment.Name,
			"hypothesis": experiment.Hypothesis,
			"method":     experiment.Method,
		},
	}, nil
}
