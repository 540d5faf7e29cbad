package memory

import (
	"context"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type metricsStore struct {
	s *Store
}

func copyMetrics(m *models.AgentMetrics) *models.AgentMetrics {
	out := *m
	if m.LastCycleAt != nil {
		t := *m.LastCycleAt
		out.LastCycleAt = &t
	}
	return &out
}

func (ms *metricsStore) Get(ctx context.Context, kind models.AgentKind) (*models.AgentMetrics, error) {
	var out *models.AgentMetrics
	err := ms.s.locked(func(st *state) error {
		m, ok := st.metrics[kind]
		if !ok {
			return store.NewNotFoundError("agent_metrics", string(kind))
		}
		out = copyMetrics(m)
		return nil
	})
	return out, err
}

func (ms *metricsStore) All(ctx context.Context) ([]*models.AgentMetrics, error) {
	var out []*models.AgentMetrics
	err := ms.s.locked(func(st *state) error {
		for _, kind := range models.AllAgentKinds() {
			if m, ok := st.metrics[kind]; ok {
				out = append(out, copyMetrics(m))
			}
		}
		return nil
	})
	return out, err
}

func (ms *metricsStore) Ensure(ctx context.Context, kind models.AgentKind, now time.Time) (*models.AgentMetrics, error) {
	var out *models.AgentMetrics
	err := ms.s.locked(func(st *state) error {
		m, ok := st.metrics[kind]
		if !ok {
			m = models.NewAgentMetrics(kind, now.UTC())
			st.metrics[kind] = m
		}
		out = copyMetrics(m)
		return nil
	})
	return out, err
}

func (ms *metricsStore) Update(ctx context.Context, kind models.AgentKind, now time.Time, fn func(*models.AgentMetrics) error) (*models.AgentMetrics, error) {
	var out *models.AgentMetrics
	err := ms.s.locked(func(st *state) error {
		m, ok := st.metrics[kind]
		if !ok {
			m = models.NewAgentMetrics(kind, now.UTC())
		}
		next := copyMetrics(m)
		if err := fn(next); err != nil {
			return err
		}
		next.UpdatedAt = now.UTC()
		st.metrics[kind] = next
		out = copyMetrics(next)
		return nil
	})
	return out, err
}

func (ms *metricsStore) SetStatus(ctx context.Context, kind models.AgentKind, status models.AgentStatus, now time.Time) error {
	return ms.s.locked(func(st *state) error {
		m, ok := st.metrics[kind]
		if !ok {
			return store.NewNotFoundError("agent_metrics", string(kind))
		}
		next := copyMetrics(m)
		next.Status = status
		next.UpdatedAt = now.UTC()
		st.metrics[kind] = next
		return nil
	})
}

func (ms *metricsStore) Reset(ctx context.Context, kind models.AgentKind, now time.Time) error {
	return ms.s.locked(func(st *state) error {
		if _, ok := st.metrics[kind]; !ok {
			return store.NewNotFoundError("agent_metrics", string(kind))
		}
		st.metrics[kind] = models.NewAgentMetrics(kind, now.UTC())
		return nil
	})
}
