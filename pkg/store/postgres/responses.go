package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type responseStore struct {
	s *Store
}

func (rs *responseStore) Insert(ctx context.Context, response *models.Response) error {
	return rs.s.run(ctx, func() error {
		_, err := rs.s.q.ExecContext(ctx,
			`INSERT INTO responses (id, scenario_id, agent_kind, text, duration_ms, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			response.ID, response.ScenarioID, response.AgentKind,
			response.Text, response.DurationMS, response.CreatedAt.UTC())
		return err
	})
}

func (rs *responseStore) Get(ctx context.Context, id string) (*models.Response, error) {
	var out *models.Response
	err := rs.s.run(ctx, func() error {
		var r models.Response
		err := rs.s.q.QueryRowContext(ctx,
			`SELECT id, scenario_id, agent_kind, text, duration_ms, created_at
			 FROM responses WHERE id = $1`, id).
			Scan(&r.ID, &r.ScenarioID, &r.AgentKind, &r.Text, &r.DurationMS, &r.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewNotFoundError("response", id)
		}
		if err != nil {
			return err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = &r
		return nil
	})
	return out, err
}
