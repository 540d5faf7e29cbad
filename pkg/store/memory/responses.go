package memory

import (
	"context"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type responseStore struct {
	s *Store
}

func (rs *responseStore) Insert(ctx context.Context, response *models.Response) error {
	return rs.s.locked(func(st *state) error {
		stored := *response
		stored.CreatedAt = stored.CreatedAt.UTC()
		st.responses[stored.ID] = &stored
		return nil
	})
}

func (rs *responseStore) Get(ctx context.Context, id string) (*models.Response, error) {
	var out *models.Response
	err := rs.s.locked(func(st *state) error {
		r, ok := st.responses[id]
		if !ok {
			return store.NewNotFoundError("response", id)
		}
		copied := *r
		out = &copied
		return nil
	})
	return out, err
}
