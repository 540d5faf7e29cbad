package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type stubSnapshot struct {
	snapshot *CodebaseSnapshot
	err      error
}

func (s *stubSnapshot) Snapshot(context.Context) (*CodebaseSnapshot, error) {
	return s.snapshot, s.err
}

type stubFetcher struct {
	docs    []models.Document
	err     error
	queries []string
}

func (f *stubFetcher) Fetch(_ context.Context, query string) ([]models.Document, error) {
	f.queries = append(f.queries, query)
	return f.docs, f.err
}

func TestImperiumReviewSummarizesSnapshot(t *testing.T) {
	provider := &stubSnapshot{snapshot: &CodebaseSnapshot{
		Packages: 12,
		Files:    98,
		Lines:    14000,
		Hotspots: []string{"pkg/events", "pkg/ledger"},
	}}
	fetcher := &stubFetcher{docs: make([]models.Document, 2)}
	imperium := NewImperium(quietGateway(), testClock(), provider, WithDocFetcher(fetcher))

	result, err := imperium.RunDomainTask(context.Background())
	require.NoError(t, err)

	assert.Contains(t, result.Summary, "code review: 12 packages, 98 files")
	assert.Contains(t, result.Summary, "2 hotspots (pkg/events, pkg/ledger)")
	assert.Contains(t, result.Summary, "2 reference docs consulted")
	assert.Equal(t, []string{"pkg/events"}, fetcher.queries, "only the worst hotspot is researched")
	assert.Equal(t, 14000, result.Details["lines"])
}

func TestImperiumReviewToleratesFetchFailure(t *testing.T) {
	provider := &stubSnapshot{snapshot: &CodebaseSnapshot{Packages: 3, Files: 9, Hotspots: []string{"pkg/api"}}}
	fetcher := &stubFetcher{err: errors.New("host not allow-listed")}
	imperium := NewImperium(quietGateway(), testClock(), provider, WithDocFetcher(fetcher))

	result, err := imperium.RunDomainTask(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, result.Summary, "reference docs")
	assert.Contains(t, result.Summary, "1 hotspots (pkg/api)")
}

func TestImperiumDefaultSnapshotProvider(t *testing.T) {
	imperium := NewImperium(quietGateway(), testClock(), nil)

	result, err := imperium.RunDomainTask(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "code review:")
}

func TestImperiumSnapshotFailureSurfaces(t *testing.T) {
	imperium := NewImperium(quietGateway(), testClock(), &stubSnapshot{err: errors.New("repo unreachable")})

	_, err := imperium.RunDomainTask(context.Background())
	assert.ErrorContains(t, err, "repo unreachable")
}

func TestSandboxDesignsRotatingExperiments(t *testing.T) {
	sandbox := NewSandbox(quietGateway(), testClock(), nil)
	ctx := context.Background()

	first, err := sandbox.RunDomainTask(ctx)
	require.NoError(t, err)
	second, err := sandbox.RunDomainTask(ctx)
	require.NoError(t, err)

	assert.Contains(t, first.Summary, "experiment designed:")
	assert.NotEqual(t, first.Summary, second.Summary, "consecutive cycles design different experiments")
	assert.NotEmpty(t, first.Details["hypothesis"])
}

func TestConquestPlansRotatingOptimizations(t *testing.T) {
	conquest := NewConquest(quietGateway(), testClock(), nil)
	ctx := context.Background()

	first, err := conquest.RunDomainTask(ctx)
	require.NoError(t, err)
	second, err := conquest.RunDomainTask(ctx)
	require.NoError(t, err)

	assert.Contains(t, first.Summary, "optimization planned:")
	assert.NotEqual(t, first.Summary, second.Summary)
	assert.NotEmpty(t, first.Details["change"])
}

func TestCatalogsWrapAround(t *testing.T) {
	designer := NewCatalogDesigner()
	ctx := context.Background()

	var names []string
	for range len(experimentCatalog) + 1 {
		experiment, err := designer.Design(ctx)
		require.NoError(t, err)
		names = append(names, experiment.Name)
	}
	assert.Equal(t, names[0], names[len(experimentCatalog)], "rotation wraps to the start")

	optimizer := NewCatalogOptimizer()
	seen := map[string]bool{}
	for range len(optimizationCatalog) {
		plan, err := optimizer.Plan(ctx)
		require.NoError(t, err)
		assert.False(t, seen[plan.Target], "no repeats inside one rotation")
		seen[plan.Target] = true
	}
}
