package memory

import (
	"context"
	"maps"
	"sort"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type knowledgeStore struct {
	s *Store
}

func copyPattern(p *models.KnowledgePattern) *models.KnowledgePattern {
	out := *p
	out.Features = maps.Clone(p.Features)
	return &out
}

func (ks *knowledgeStore) Insert(ctx context.Context, pattern *models.KnowledgePattern) error {
	return ks.s.locked(func(st *state) error {
		stored := copyPattern(pattern)
		stored.CreatedAt = stored.CreatedAt.UTC()
		st.knowledge[stored.ID] = stored
		return nil
	})
}

func (ks *knowledgeStore) Get(ctx context.Context, id string) (*models.KnowledgePattern, error) {
	var out *models.KnowledgePattern
	err := ks.s.locked(func(st *state) error {
		p, ok := st.knowledge[id]
		if !ok {
			return store.NewNotFoundError("knowledge_pattern", id)
		}
		out = copyPattern(p)
		return nil
	})
	return out, err
}

func (ks *knowledgeStore) Query(ctx context.Context, filter store.KnowledgeFilter) ([]*models.KnowledgePattern, error) {
	var out []*models.KnowledgePattern
	err := ks.s.locked(func(st *state) error {
		for _, p := range st.knowledge {
			if filter.Owner != nil && p.OwnerKind != *filter.Owner {
				continue
			}
			if filter.Label != nil && p.Label != *filter.Label {
				continue
			}
			out = append(out, copyPattern(p))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Effectiveness != out[j].Effectiveness {
			return out[i].Effectiveness > out[j].Effectiveness
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (ks *knowledgeStore) UpdateEffectiveness(ctx context.Context, id string, effectiveness float64) error {
	return ks.s.locked(func(st *state) error {
		p, ok := st.knowledge[id]
		if !ok {
			return store.NewNotFoundError("knowledge_pattern", id)
		}
		next := copyPattern(p)
		next.Effectiveness = effectiveness
		st.knowledge[id] = next
		return nil
	})
}
