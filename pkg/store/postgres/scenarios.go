package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type scenarioStore struct {
	s *Store
}

const scenarioColumns = `id, agent_kind, category, complexity, prompt, criteria_weights, time_limit_s, fingerprint, created_at`

func scanScenario(row scanner) (*models.Scenario, error) {
	var sc models.Scenario
	var weights []byte
	var timeLimitS int64
	err := row.Scan(&sc.ID, &sc.AgentKind, &sc.Category, &sc.Complexity,
		&sc.Prompt, &weights, &timeLimitS, &sc.Fingerprint, &sc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weights, &sc.CriteriaWeights); err != nil {
		return nil, fmt.Errorf("decoding criteria weights for scenario %s: %w", sc.ID, err)
	}
	sc.TimeLimit = time.Duration(timeLimitS) * time.Second
	sc.CreatedAt = sc.CreatedAt.UTC()
	return &sc, nil
}

func (ss *scenarioStore) Insert(ctx context.Context, scenario *models.Scenario) error {
	weights, err := json.Marshal(scenario.CriteriaWeights)
	if err != nil {
		return fmt.Errorf("encoding criteria weights: %w", err)
	}
	return ss.s.run(ctx, func() error {
		_, err := ss.s.q.ExecContext(ctx,
			`INSERT INTO scenarios (id, agent_kind, category, complexity, prompt, criteria_weights, time_limit_s, fingerprint, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			scenario.ID, scenario.AgentKind, scenario.Category, scenario.Complexity,
			scenario.Prompt, weights, int64(scenario.TimeLimit/time.Second),
			scenario.Fingerprint, scenario.CreatedAt.UTC())
		return err
	})
}

func (ss *scenarioStore) Get(ctx context.Context, id string) (*models.Scenario, error) {
	var out *models.Scenario
	err := ss.s.run(ctx, func() error {
		row := ss.s.q.QueryRowContext(ctx,
			`SELECT `+scenarioColumns+` FROM scenarios WHERE id = $1`, id)
		sc, err := scanScenario(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewNotFoundError("scenario", id)
		}
		if err != nil {
			return err
		}
		out = sc
		return nil
	})
	return out, err
}

func (ss *scenarioStore) Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.Scenario, error) {
	var out []*models.Scenario
	err := ss.s.run(ctx, func() error {
		rows, err := ss.s.q.QueryContext(ctx,
			`SELECT `+scenarioColumns+` FROM scenarios
			 WHERE agent_kind = $1 ORDER BY seq DESC LIMIT $2`, kind, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			sc, err := scanScenario(rows)
			if err != nil {
				return err
			}
			out = append(out, sc)
		}
		return rows.Err()
	})
	return out, err
}

// RecentFingerprints orders by insertion sequence rather than created_at:
// generation timestamps can collide under test clocks, and the repetition
// window cares about generation order, not wall time.
func (ss *scenarioStore) RecentFingerprints(ctx context.Context, kind models.AgentKind, n int) ([]string, error) {
	var out []string
	err := ss.s.run(ctx, func() error {
		rows, err := ss.s.q.QueryContext(ctx,
			`SELECT fingerprint FROM scenarios
			 WHERE agent_kind = $1 ORDER BY seq DESC LIMIT $2`, kind, n)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				return err
			}
			out = append(out, fp)
		}
		return rows.Err()
	})
	return out, err
}
