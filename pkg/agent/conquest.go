package agent

import (
	"context"
	"fmt"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// OptimizationPlan is one proposed performance change, described as a
// patch-set summary rather than applied code.
type OptimizationPlan struct {
	Target       string
	Change       string
	ExpectedGain string
}

// Optimizer produces the next optimization to plan.
type Optimizer interface {
	Plan(ctx context.Context) (*OptimizationPlan, error)
}

// Conquest is the performance agent: its domain task plans one
// optimization per cycle, scored under the performance criteria.
type Conquest struct {
	base
	optimizer Optimizer
}

// NewConquest builds the optimization runner. A nil optimizer falls back
// to the built-in rotating catalog.
func NewConquest(gateway Gateway, clk clock.Clock, optimizer Optimizer) *Conquest {
	if optimizer == nil {
		optimizer = NewCatalogOptimizer()
	}
	return &Conquest{
		base:      newBase(models.AgentConquest, gateway, clk),
		optimizer: optimizer,
	}
}

// RunDomainTask plans the cycle's optimization.
func (c *Conquest) RunDomainTask(ctx context.Context) (*models.DomainResult, error) {
	plan, err := c.optimizer.Plan(ctx)
	if err != nil {
		return nil, fmt.Errorf("conquest plan: %w", err)
	}
	return &models.DomainResult{
		Summary: fmt.Sprintf("optimization planned: %s (%s)", plan.Target, plan.ExpectedGain),
		Details: map[string]any{
			"target": plan.Target,
			"change": plan.Change,
		},
	}, nil
}
