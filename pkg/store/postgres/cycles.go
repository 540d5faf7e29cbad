package postgres

import (
	"context"
	"database/sql"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type cycleStore struct {
	s *Store
}

func scanCycle(row scanner) (*models.CycleRecord, error) {
	var r models.CycleRecord
	var endedAt sql.NullTime
	err := row.Scan(&r.ID, &r.AgentKind, &r.StartedAt, &endedAt, &r.Outcome, &r.XPDelta, &r.Notes)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		r.EndedAt = &t
	}
	r.StartedAt = r.StartedAt.UTC()
	return &r, nil
}

func (cs *cycleStore) Insert(ctx context.Context, record *models.CycleRecord) error {
	return cs.s.run(ctx, func() error {
		var endedAt any
		if record.EndedAt != nil {
			endedAt = record.EndedAt.UTC()
		}
		_, err := cs.s.q.ExecContext(ctx,
			`INSERT INTO cycle_records (id, agent_kind, started_at, ended_at, outcome, xp_delta, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			record.ID, record.AgentKind, record.StartedAt.UTC(), endedAt,
			record.Outcome, record.XPDelta, record.Notes)
		return err
	})
}

func (cs *cycleStore) Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.CycleRecord, error) {
	var out []*models.CycleRecord
	err := cs.s.run(ctx, func() error {
		rows, err := cs.s.q.QueryContext(ctx,
			`SELECT id, agent_kind, started_at, ended_at, outcome, xp_delta, notes
			 FROM cycle_records
			 WHERE agent_kind = $1 ORDER BY seq DESC LIMIT $2`, kind, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			r, err := scanCycle(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
