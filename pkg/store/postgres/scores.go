package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type scoreStore struct {
	s *Store
}

// recentScoresWindow caps the trailing score list in analytics.
const recentScoresWindow = 20

func scanScore(row scanner) (*models.Score, error) {
	var sc models.Score
	var breakdown, strengths, weaknesses []byte
	err := row.Scan(&sc.ResponseID, &sc.Overall, &sc.Passed, &breakdown,
		&sc.Feedback, &strengths, &weaknesses, &sc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &sc.CriterionBreakdown); err != nil {
		return nil, fmt.Errorf("decoding criterion breakdown for score %s: %w", sc.ResponseID, err)
	}
	if err := json.Unmarshal(strengths, &sc.Strengths); err != nil {
		return nil, fmt.Errorf("decoding strengths for score %s: %w", sc.ResponseID, err)
	}
	if err := json.Unmarshal(weaknesses, &sc.Weaknesses); err != nil {
		return nil, fmt.Errorf("decoding weaknesses for score %s: %w", sc.ResponseID, err)
	}
	sc.CreatedAt = sc.CreatedAt.UTC()
	return &sc, nil
}

func (ss *scoreStore) Insert(ctx context.Context, score *models.Score) error {
	breakdown, err := json.Marshal(score.CriterionBreakdown)
	if err != nil {
		return fmt.Errorf("encoding criterion breakdown: %w", err)
	}
	strengths, err := json.Marshal(score.Strengths)
	if err != nil {
		return fmt.Errorf("encoding strengths: %w", err)
	}
	weaknesses, err := json.Marshal(score.Weaknesses)
	if err != nil {
		return fmt.Errorf("encoding weaknesses: %w", err)
	}
	return ss.s.run(ctx, func() error {
		_, err := ss.s.q.ExecContext(ctx,
			`INSERT INTO scores (response_id, overall, passed, criterion_breakdown, feedback, strengths, weaknesses, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			score.ResponseID, score.Overall, score.Passed, breakdown,
			score.Feedback, strengths, weaknesses, score.CreatedAt.UTC())
		return err
	})
}

func (ss *scoreStore) Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.Score, error) {
	var out []*models.Score
	err := ss.s.run(ctx, func() error {
		rows, err := ss.s.q.QueryContext(ctx,
			`SELECT s.response_id, s.overall, s.passed, s.criterion_breakdown, s.feedback, s.strengths, s.weaknesses, s.created_at
			 FROM scores s
			 JOIN responses r ON r.id = s.response_id
			 WHERE r.agent_kind = $1
			 ORDER BY s.seq DESC LIMIT $2`, kind, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			sc, err := scanScore(rows)
			if err != nil {
				return err
			}
			out = append(out, sc)
		}
		return rows.Err()
	})
	return out, err
}

func (ss *scoreStore) Analytics(ctx context.Context) (*models.CustodyAnalytics, error) {
	out := &models.CustodyAnalytics{
		ByAgent:              make(map[models.AgentKind]float64),
		CategoryDistribution: make(map[models.Category]int64),
	}
	err := ss.s.run(ctx, func() error {
		var passRate, avgScore sql.NullFloat64
		err := ss.s.q.QueryRowContext(ctx,
			`SELECT COUNT(*),
			        AVG(CASE WHEN passed THEN 1.0 ELSE 0.0 END),
			        AVG(overall)
			 FROM scores`).Scan(&out.TotalTests, &passRate, &avgScore)
		if err != nil {
			return err
		}
		out.PassRate = passRate.Float64
		out.AverageScore = avgScore.Float64

		rows, err := ss.s.q.QueryContext(ctx,
			`SELECT r.agent_kind, AVG(s.overall)
			 FROM scores s
			 JOIN responses r ON r.id = s.response_id
			 GROUP BY r.agent_kind`)
		if err != nil {
			return err
		}
		defer rows.Close()
		clear(out.ByAgent)
		for rows.Next() {
			var kind models.AgentKind
			var avg float64
			if err := rows.Scan(&kind, &avg); err != nil {
				return err
			}
			out.ByAgent[kind] = avg
		}
		if err := rows.Err(); err != nil {
			return err
		}

		catRows, err := ss.s.q.QueryContext(ctx,
			`SELECT sc.category, COUNT(*)
			 FROM scores s
			 JOIN responses r ON r.id = s.response_id
			 JOIN scenarios sc ON sc.id = r.scenario_id
			 GROUP BY sc.category`)
		if err != nil {
			return err
		}
		defer catRows.Close()
		clear(out.CategoryDistribution)
		for catRows.Next() {
			var cat models.Category
			var n int64
			if err := catRows.Scan(&cat, &n); err != nil {
				return err
			}
			out.CategoryDistribution[cat] = n
		}
		if err := catRows.Err(); err != nil {
			return err
		}

		recentRows, err := ss.s.q.QueryContext(ctx,
			`SELECT overall FROM scores ORDER BY seq DESC LIMIT $1`, recentScoresWindow)
		if err != nil {
			return err
		}
		defer recentRows.Close()
		out.RecentScores = out.RecentScores[:0]
		for recentRows.Next() {
			var v float64
			if err := recentRows.Scan(&v); err != nil {
				return err
			}
			out.RecentScores = append(out.RecentScores, v)
		}
		return recentRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
