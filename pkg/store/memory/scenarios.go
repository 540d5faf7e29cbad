package memory

import (
	"context"
	"maps"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type scenarioStore struct {
	s *Store
}

func copyScenario(sc *models.Scenario) *models.Scenario {
	out := *sc
	out.CriteriaWeights = maps.Clone(sc.CriteriaWeights)
	return &out
}

func (ss *scenarioStore) Insert(ctx context.Context, scenario *models.Scenario) error {
	return ss.s.locked(func(st *state) error {
		stored := copyScenario(scenario)
		stored.CreatedAt = stored.CreatedAt.UTC()
		st.scenarios[stored.ID] = stored
		st.scenarioOrder = append(st.scenarioOrder, stored.ID)
		return nil
	})
}

func (ss *scenarioStore) Get(ctx context.Context, id string) (*models.Scenario, error) {
	var out *models.Scenario
	err := ss.s.locked(func(st *state) error {
		sc, ok := st.scenarios[id]
		if !ok {
			return store.NewNotFoundError("scenario", id)
		}
		out = copyScenario(sc)
		return nil
	})
	return out, err
}

func (ss *scenarioStore) Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.Scenario, error) {
	var out []*models.Scenario
	err := ss.s.locked(func(st *state) error {
		for i := len(st.scenarioOrder) - 1; i >= 0 && len(out) < limit; i-- {
			sc := st.scenarios[st.scenarioOrder[i]]
			if sc != nil && sc.AgentKind == kind {
				out = append(out, copyScenario(sc))
			}
		}
		return nil
	})
	return out, err
}

func (ss *scenarioStore) RecentFingerprints(ctx context.Context, kind models.AgentKind, n int) ([]string, error) {
	var out []string
	err := ss.s.locked(func(st *state) error {
		for i := len(st.scenarioOrder) - 1; i >= 0 && len(out) < n; i-- {
			sc := st.scenarios[st.scenarioOrder[i]]
			if sc != nil && sc.AgentKind == kind {
				out = append(out, sc.Fingerprint)
			}
		}
		return nil
	})
	return out, err
}
