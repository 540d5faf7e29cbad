package memory

import (
	"context"
	"maps"
	"slices"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type scoreStore struct {
	s *Store
}

// recentScoresWindow matches the postgres backend's analytics window.
const recentScoresWindow = 20

func copyScore(sc *models.Score) *models.Score {
	out := *sc
	out.CriterionBreakdown = maps.Clone(sc.CriterionBreakdown)
	out.Strengths = slices.Clone(sc.Strengths)
	out.Weaknesses = slices.Clone(sc.Weaknesses)
	return &out
}

func (ss *scoreStore) Insert(ctx context.Context, score *models.Score) error {
	return ss.s.locked(func(st *state) error {
		stored := copyScore(score)
		stored.CreatedAt = stored.CreatedAt.UTC()
		st.scores[stored.ResponseID] = stored
		st.scoreOrder = append(st.scoreOrder, stored.ResponseID)
		return nil
	})
}

func (ss *scoreStore) Recent(ctx context.Context, kind models.AgentKind, limit int) ([]*models.Score, error) {
	var out []*models.Score
	err := ss.s.locked(func(st *state) error {
		for i := len(st.scoreOrder) - 1; i >= 0 && len(out) < limit; i-- {
			sc := st.scores[st.scoreOrder[i]]
			if sc == nil {
				continue
			}
			r := st.responses[sc.ResponseID]
			if r != nil && r.AgentKind == kind {
				out = append(out, copyScore(sc))
			}
		}
		return nil
	})
	return out, err
}

func (ss *scoreStore) Analytics(ctx context.Context) (*models.CustodyAnalytics, error) {
	out := &models.CustodyAnalytics{
		ByAgent:              make(map[models.AgentKind]float64),
		CategoryDistribution: make(map[models.Category]int64),
	}
	err := ss.s.locked(func(st *state) error {
		var passed int64
		var sum float64
		agentSum := make(map[models.AgentKind]float64)
		agentCount := make(map[models.AgentKind]int64)
		for _, id := range st.scoreOrder {
			sc := st.scores[id]
			if sc == nil {
				continue
			}
			out.TotalTests++
			sum += sc.Overall
			if sc.Passed {
				passed++
			}
			if r := st.responses[sc.ResponseID]; r != nil {
				agentSum[r.AgentKind] += sc.Overall
				agentCount[r.AgentKind]++
				if scen := st.scenarios[r.ScenarioID]; scen != nil {
					out.CategoryDistribution[scen.Category]++
				}
			}
		}
		if out.TotalTests > 0 {
			out.PassRate = float64(passed) / float64(out.TotalTests)
			out.AverageScore = sum / float64(out.TotalTests)
		}
		for kind, total := range agentSum {
			out.ByAgent[kind] = total / float64(agentCount[kind])
		}
		for i := len(st.scoreOrder) - 1; i >= 0 && len(out.RecentScores) < recentScoresWindow; i-- {
			if sc := st.scores[st.scoreOrder[i]]; sc != nil {
				out.RecentScores = append(out.RecentScores, sc.Overall)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
