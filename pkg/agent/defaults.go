package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/lvlup-dev/ascent/pkg/models"
)

// Built-in stand-ins used when no external provider is wired. They are
// deterministic (catalog rotation, no LLM) so cycles stay reproducible.

func defaultSnapshotProvider() SnapshotProvider {
	return &staticSnapshot{
		snapshot: CodebaseSnapshot{
			Packages: 18,
			Files:    142,
			Lines:    21500,
			Hotspots: []string{"pkg/store/postgres", "pkg/api"},
		},
	}
}

type staticSnapshot struct {
	snapshot CodebaseSnapshot
}

func (s *staticSnapshot) Snapshot(context.Context) (*CodebaseSnapshot, error) {
	out := s.snapshot
	out.Hotspots = append([]string(nil), s.snapshot.Hotspots...)
	return &out, nil
}

// System probe thresholds. Crossing one produces an issue; the suggested
// actions are allow-listed executor capabilities.
const (
	diskHighWaterPct = 90.0
	memHighWaterPct  = 90.0
)

// SystemProbe checks host disk and memory pressure via gopsutil.
type SystemProbe struct {
	path string
}

// NewSystemProbe builds the default Guardian probe watching the root
// filesystem.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{path: "/"}
}

func (p *SystemProbe) Check(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{}

	usage, err := disk.UsageWithContext(ctx, p.path)
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	if usage.UsedPercent >= diskHighWaterPct {
		report.Issues = append(report.Issues, Issue{
			Summary: fmt.Sprintf("disk usage at %.1f%% on %s", usage.UsedPercent, p.path),
			Detail:  fmt.Sprintf("%d of %d bytes used; rotate logs and clear temp space", usage.Used, usage.Total),
			Risk:    models.RiskHigh,
			Actions: []models.Action{
				{Name: "rotate_logs"},
				{Name: "clear_tmp"},
			},
		})
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	if vm.UsedPercent >= memHighWaterPct {
		report.Issues = append(report.Issues, Issue{
			Summary: fmt.Sprintf("memory usage at %.1f%%", vm.UsedPercent),
			Detail:  "resident memory is near the limit; a service restart reclaims it",
			Risk:    models.RiskMedium,
			Actions: []models.Action{
				{Name: "restart_service", Params: map[string]string{"service": "ascent"}},
			},
		})
	}

	return report, nil
}

// experimentCatalog rotates so consecutive cycles design different trials.
var experimentCatalog = []Experiment{
	{
		Name:          "prompt compression",
		Hypothesis:    "trimming scenario boilerplate cuts input tokens without hurting scores",
		Method:        "run ten cycles with compressed prompts against a control group",
		SuccessMetric: "tokens_in down 20% with overall score within 2 points",
	},
	{
		Name:          "category interleaving",
		Hypothesis:    "alternating categories every cycle raises learning score faster than blocks",
		Method:        "compare learning score slope across two twenty-cycle arms",
		SuccessMetric: "learning score slope up 10%",
	},
	{
		Name:          "secondary-first routing",
		Hypothesis:    "routing low-complexity scenarios to the secondary provider saves budget",
		Method:        "route basic and intermediate scenarios to secondary for one day",
		SuccessMetric: "primary spend down 15% with pass rate unchanged",
	},
	{
		Name:          "feedback loop tightening",
		Hypothesis:    "halving the transfer interval spreads strong patterns sooner",
		Method:        "shadow-run transfer at half interval and diff pattern coverage",
		SuccessMetric: "cross-agent pattern coverage up 25% in a week",
	},
}

// CatalogDesigner deals experiments from a fixed catalog in order.
type CatalogDesigner struct {
	next atomic.Int64
}

// NewCatalogDesigner builds the default Sandbox designer.
func NewCatalogDesigner() *CatalogDesigner { return &CatalogDesigner{} }

func (d *CatalogDesigner) Design(context.Context) (*Experiment, error) {
	idx := int(d.next.Add(1)-1) % len(experimentCatalog)
	out := experimentCatalog[idx]
	return &out, nil
}

// optimizationCatalog rotates the same way.
var optimizationCatalog = []OptimizationPlan{
	{
		Target:       "scenario fingerprint window scan",
		Change:       "keep the recent-fingerprint set in memory instead of re-reading per generation",
		ExpectedGain: "one store round-trip saved per cycle",
	},
	{
		Target:       "score recent-window query",
		Change:       "add a covering index on (agent_kind, created_at desc)",
		ExpectedGain: "recent-score reads off the hot path",
	},
	{
		Target:       "event payload encoding",
		Change:       "reuse a pooled buffer for NOTIFY envelope marshaling",
		ExpectedGain: "fewer allocations per published event",
	},
	{
		Target:       "ledger monthly rollover",
		Change:       "batch archive inserts instead of row-at-a-time",
		ExpectedGain: "retention pass time down on large ledgers",
	},
}

// CatalogOptimizer deals optimization plans from a fixed catalog in order.
type CatalogOptimizer struct {
	next atomic.Int64
}

// NewCatalogOptimizer builds the default Conquest optimizer.
func NewCatalogOptimizer() *CatalogOptimizer { return &CatalogOptimizer{} }

func (o *CatalogOptimizer) Plan(context.Context) (*OptimizationPlan, error) {
	idx := int(o.next.Add(1)-1) % len(optimizationCatalog)
	out := optimizationCatalog[idx]
	return &out, nil
}
