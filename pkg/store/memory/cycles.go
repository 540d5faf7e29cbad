package memory

import (
	"context"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type cycleStore struct {
	s *Store
}

func copyCycle(r *models.CycleRecord) *models.CycleRecord {
	out := *r
	if r.EndedAt != nil {
		t := *r.EndedAt
		out.EndedAt = &t
	}
	return &out
}

func (cs *cycleStore) Insert(ctx context.Context, record *models.CycleRecord) error {
	return cs.s.locked(func(st *state) error {
		stored := copyCycle(record)
		stored.StartedAt = stored.StartedAt.UTC()
		st.cycles = append(st.cycles, stored)
		return nil
	})
}

func (cs *cycleStore) Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.CycleRecord, error) {
	var out []*models.CycleRecord
	err := cs.s.locked(func(st *state) error {
		for i := len(st.cycles) - 1; i >= 0 && len(out) < limit; i-- {
			if st.cycles[i].AgentKind == kind {
				out = append(out, copyCycle(st.cycles[i]))
			}
		}
		return nil
	})
	return out, err
}
