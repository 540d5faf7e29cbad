package custody

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

// maxReseeds bounds how often a colliding draw is re-rolled before the
// generator falls back to deterministic slot mutation.
const maxReseeds = 8

// SeedFunc supplies the PRNG seed for one generation attempt.
type SeedFunc func() int64

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithSeedFunc replaces the seed source. Tests pin it to a constant to make
// draws reproducible.
func WithSeedFunc(fn SeedFunc) GeneratorOption {
	return func(g *Generator) { g.seedFn = fn }
}

// Generator draws scenarios from the closed catalog. Prompts are assembled
// from a template family plus slot values; the fingerprint guards a
// non-repetition window against the agent's recent scenarios. The generator
// never persists anything; the engine commits the scenario inside the cycle
// transaction.
type Generator struct {
	scenarios store.ScenarioStore
	window    int
	clk       clock.Clock
	seedFn    SeedFunc
	logger    *slog.Logger

	mutations atomic.Int64
}

// NewGenerator creates a generator over the scenario history.
func NewGenerator(scenarios store.ScenarioStore, cfg config.CustodyConfig, clk clock.Clock, opts ...GeneratorOption) *Generator {
	g := &Generator{
		scenarios: scenarios,
		window:    cfg.RecentFingerprintsN,
		clk:       clk,
		logger:    slog.Default().With("component", "custody"),
	}
	g.seedFn = func() int64 { return g.clk.Now().UnixNano() }
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mutations reports how many slot mutations the generator has performed.
func (g *Generator) Mutations() int64 {
	return g.mutations.Load()
}

// draw is one fully-specified candidate before rendering.
type draw struct {
	famIdx   int
	slotIdx  []int
	projIdx  int
	prompt   string
	weights  map[string]float64
	fingerpr string
}

// Generate produces a scenario for (kind, category, complexity) whose
// fingerprint does not appear in the agent's recent window. Collisions are
// re-rolled up to maxReseeds times, then resolved by walking the slot space
// deterministically.
func (g *Generator) Generate(ctx context.Context, kind models.AgentKind, category models.Category, complexity models.Complexity) (*models.Scenario, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	if !complexity.IsValid() {
		return nil, fmt.Errorf("invalid complexity %q", complexity)
	}
	content, ok := catalog[category]
	if !ok {
		return nil, fmt.Errorf("no catalog content for category %q", category)
	}
	fams := familiesFor(content, complexity)
	if len(fams) == 0 {
		return nil, fmt.Errorf("no template families for category %q at %s", category, complexity)
	}

	recent, err := g.scenarios.RecentFingerprints(ctx, kind, g.window)
	if err != nil {
		return nil, fmt.Errorf("loading recent fingerprints: %w", err)
	}
	seen := make(map[string]struct{}, len(recent))
	for _, fp := range recent {
		seen[fp] = struct{}{}
	}

	var candidate draw
	for attempt := 0; attempt <= maxReseeds; attempt++ {
		candidate = g.roll(kind, category, complexity, content, fams)
		if _, collides := seen[candidate.fingerpr]; !collides {
			return g.finish(kind, category, complexity, candidate), nil
		}
	}

	mutated, err := g.mutate(kind, category, complexity, content, fams, candidate, seen)
	if err != nil {
		return nil, err
	}
	return g.finish(kind, category, complexity, mutated), nil
}

// roll draws one candidate with a fresh seed.
func (g *Generator) roll(kind models.AgentKind, category models.Category, complexity models.Complexity, content categoryContent, fams []family) draw {
	seed := g.seedFn()
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))

	d := draw{
		famIdx:  rng.IntN(len(fams)),
		projIdx: rng.IntN(len(projects)),
	}
	fam := fams[d.famIdx]
	d.slotIdx = make([]int, len(fam.slots))
	for i, poolIdx := range fam.slots {
		d.slotIdx[i] = rng.IntN(len(content.pools[poolIdx]))
	}
	g.render(kind, category, complexity, content, fams, &d)
	return d
}

// mutate walks the slot space like an odometer starting from the colliding
// draw: advance the first slot, carry into the next on wrap, with the
// project as the final digit. The family stays fixed, so every step is a
// small, deterministic variation of the colliding prompt.
func (g *Generator) mutate(kind models.AgentKind, category models.Category, complexity models.Complexity, content categoryContent, fams []family, d draw, seen map[string]struct{}) (draw, error) {
	fam := fams[d.famIdx]
	bases := make([]int, 0, len(fam.slots)+1)
	for _, poolIdx := range fam.slots {
		bases = append(bases, len(content.pools[poolIdx]))
	}
	bases = append(bases, len(projects))

	space := 1
	for _, b := range bases {
		space *= b
	}

	for step := 1; step < space; step++ {
		for i := range bases {
			if i < len(d.slotIdx) {
				d.slotIdx[i] = (d.slotIdx[i] + 1) % bases[i]
				if d.slotIdx[i] != 0 {
					break
				}
			} else {
				d.projIdx = (d.projIdx + 1) % bases[i]
				break
			}
		}
		g.render(kind, category, complexity, content, fams, &d)
		n := g.mutations.Add(1)
		if _, collides := seen[d.fingerpr]; !collides {
			g.logger.Info("Resolved fingerprint collision by slot mutation",
				"agent", kind, "category", category, "family", fam.name,
				"steps", step, "total_mutations", n)
			return d, nil
		}
	}
	return draw{}, fmt.Errorf("%w: family %s", ErrScenarioSpaceExhausted, fam.name)
}

// render fills in the prompt, weights, and fingerprint for a draw.
func (g *Generator) render(kind models.AgentKind, category models.Category, complexity models.Complexity, content categoryContent, fams []family, d *draw) {
	fam := fams[d.famIdx]
	args := make([]any, len(fam.slots))
	for i, poolIdx := range fam.slots {
		args[i] = content.pools[poolIdx][d.slotIdx[i]]
	}
	body := fmt.Sprintf(fam.format, args...)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] You are %s working on %s.\n\n",
		strings.ToUpper(string(complexity)), agentRoles[kind], projects[d.projIdx])
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(complexityTones[complexity])

	d.prompt = b.String()
	d.weights = criteriaWeights(category, complexity)
	d.fingerpr = Fingerprint(d.prompt, d.weights)
}

// finish materializes the scenario row for a unique draw.
func (g *Generator) finish(kind models.AgentKind, category models.Category, complexity models.Complexity, d draw) *models.Scenario {
	return &models.Scenario{
		ID:              uuid.New().String(),
		AgentKind:       kind,
		Category:        category,
		Complexity:      complexity,
		Prompt:          d.prompt,
		CriteriaWeights: d.weights,
		TimeLimit:       complexity.TimeLimit(),
		Fingerprint:     d.fingerpr,
		CreatedAt:       g.clk.Now().UTC(),
	}
}

// Fingerprint hashes a prompt and its criteria weights into the scenario's
// identity for the non-repetition window. Weights are serialized in sorted
// order so map iteration cannot perturb the hash.
func Fingerprint(prompt string, weights map[string]float64) string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{'\n'})
	for _, name := range names {
		fmt.Fprintf(h, "%s=%.4f;", name, weights[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}
