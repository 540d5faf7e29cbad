package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type metricsStore struct {
	s *Store
}

const metricsColumns = `agent_kind, level, xp, prestige, learning_score, success_rate, total_cycles, last_cycle_at, status, updated_at`

func scanMetrics(row scanner) (*models.AgentMetrics, error) {
	var m models.AgentMetrics
	var lastCycle sql.NullTime
	err := row.Scan(&m.Kind, &m.Level, &m.XP, &m.Prestige, &m.LearningScore,
		&m.SuccessRate, &m.TotalCycles, &lastCycle, &m.Status, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastCycle.Valid {
		t := lastCycle.Time.UTC()
		m.LastCycleAt = &t
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func (ms *metricsStore) Get(ctx context.Context, kind models.AgentKind) (*models.AgentMetrics, error) {
	var out *models.AgentMetrics
	err := ms.s.run(ctx, func() error {
		row := ms.s.q.QueryRowContext(ctx,
			`SELECT `+metricsColumns+` FROM agent_metrics WHERE agent_kind = $1`, kind)
		m, err := scanMetrics(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewNotFoundError("agent_metrics", string(kind))
		}
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

func (ms *metricsStore) All(ctx context.Context) ([]*models.AgentMetrics, error) {
	var out []*models.AgentMetrics
	err := ms.s.run(ctx, func() error {
		rows, err := ms.s.q.QueryContext(ctx,
			`SELECT `+metricsColumns+` FROM agent_metrics ORDER BY agent_kind`)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			m, err := scanMetrics(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

func (ms *metricsStore) Ensure(ctx context.Context, kind models.AgentKind, now time.Time) (*models.AgentMetrics, error) {
	var out *models.AgentMetrics
	err := ms.s.run(ctx, func() error {
		_, err := ms.s.q.ExecContext(ctx,
			`INSERT INTO agent_metrics (agent_kind, level, status, updated_at)
			 VALUES ($1, 1, $2, $3)
			 ON CONFLICT (agent_kind) DO NOTHING`,
			kind, models.AgentStatusIdle, now.UTC())
		if err != nil {
			return err
		}
		row := ms.s.q.QueryRowContext(ctx,
			`SELECT `+metricsColumns+` FROM agent_metrics WHERE agent_kind = $1`, kind)
		m, err := scanMetrics(row)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

// Update locks the row, applies fn, and writes the result back. The lock
// makes concurrent updates per kind linearizable.
func (ms *metricsStore) Update(ctx context.Context, kind models.AgentKind, now time.Time, fn func(*models.AgentMetrics) error) (*models.AgentMetrics, error) {
	var out *models.AgentMetrics
	err := ms.s.inTx(ctx, func(q dbtx) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO agent_metrics (agent_kind, level, status, updated_at)
			 VALUES ($1, 1, $2, $3)
			 ON CONFLICT (agent_kind) DO NOTHING`,
			kind, models.AgentStatusIdle, now.UTC())
		if err != nil {
			return err
		}
		row := q.QueryRowContext(ctx,
			`SELECT `+metricsColumns+` FROM agent_metrics WHERE agent_kind = $1 FOR UPDATE`, kind)
		m, err := scanMetrics(row)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		m.UpdatedAt = now.UTC()
		var lastCycle any
		if m.LastCycleAt != nil {
			lastCycle = m.LastCycleAt.UTC()
		}
		res, err := q.ExecContext(ctx,
			`UPDATE agent_metrics
			 SET level = $2, xp = $3, prestige = $4, learning_score = $5,
			     success_rate = $6, total_cycles = $7, last_cycle_at = $8,
			     status = $9, updated_at = $10
			 WHERE agent_kind = $1`,
			m.Kind, m.Level, m.XP, m.Prestige, m.LearningScore,
			m.SuccessRate, m.TotalCycles, lastCycle, m.Status, m.UpdatedAt)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("agent_metrics row for %s vanished mid-update", kind)
		}
		out = m
		return nil
	})
	return out, err
}

func (ms *metricsStore) SetStatus(ctx context.Context, kind models.AgentKind, status models.AgentStatus, now time.Time) error {
	return ms.s.run(ctx, func() error {
		res, err := ms.s.q.ExecContext(ctx,
			`UPDATE agent_metrics SET status = $2, updated_at = $3 WHERE agent_kind = $1`,
			kind, status, now.UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.NewNotFoundError("agent_metrics", string(kind))
		}
		return nil
	})
}

func (ms *metricsStore) Reset(ctx context.Context, kind models.AgentKind, now time.Time) error {
	return ms.s.run(ctx, func() error {
		res, err := ms.s.q.ExecContext(ctx,
			`UPDATE agent_metrics
			 SET level = 1, xp = 0, prestige = 0, learning_score = 0,
			     success_rate = 0, total_cycles = 0, last_cycle_at = NULL,
			     status = $2, updated_at = $3
			 WHERE agent_kind = $1`,
			kind, models.AgentStatusIdle, now.UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.NewNotFoundError("agent_metrics", string(kind))
		}
		return nil
	})
}
