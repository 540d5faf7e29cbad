package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type knowledgeStore struct {
	s *Store
}

const knowledgeColumns = `id, owner_kind, label, features, effectiveness, created_at`

func scanKnowledge(row scanner) (*models.KnowledgePattern, error) {
	var p models.KnowledgePattern
	var features []byte
	err := row.Scan(&p.ID, &p.OwnerKind, &p.Label, &features, &p.Effectiveness, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, fmt.Errorf("decoding features for pattern %s: %w", p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (ks *knowledgeStore) Insert(ctx context.Context, pattern *models.KnowledgePattern) error {
	features, err := json.Marshal(pattern.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}
	return ks.s.run(ctx, func() error {
		_, err := ks.s.q.ExecContext(ctx,
			`INSERT INTO knowledge_patterns (id, owner_kind, label, features, effectiveness, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			pattern.ID, pattern.OwnerKind, pattern.Label, features,
			pattern.Effectiveness, pattern.CreatedAt.UTC())
		return err
	})
}

func (ks *knowledgeStore) Get(ctx context.Context, id string) (*models.KnowledgePattern, error) {
	var out *models.KnowledgePattern
	err := ks.s.run(ctx, func() error {
		row := ks.s.q.QueryRowContext(ctx,
			`SELECT `+knowledgeColumns+` FROM knowledge_patterns WHERE id = $1`, id)
		p, err := scanKnowledge(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewNotFoundError("knowledge_pattern", id)
		}
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (ks *knowledgeStore) Query(ctx context.Context, filter store.KnowledgeFilter) ([]*models.KnowledgePattern, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_patterns`
	var conds []string
	var args []any
	if filter.Owner != nil {
		args = append(args, *filter.Owner)
		conds = append(conds, "owner_kind = $"+strconv.Itoa(len(args)))
	}
	if filter.Label != nil {
		args = append(args, *filter.Label)
		conds = append(conds, "label = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY effectiveness DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	var out []*models.KnowledgePattern
	err := ks.s.run(ctx, func() error {
		rows, err := ks.s.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			p, err := scanKnowledge(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

func (ks *knowledgeStore) UpdateEffectiveness(ctx context.Context, id string, effectiveness float64) error {
	return ks.s.run(ctx, func() error {
		res, err := ks.s.q.ExecContext(ctx,
			`UPDATE knowledge_patterns SET effectiveness = $2 WHERE id = $1`,
			id, effectiveness)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.NewNotFoundError("knowledge_pattern", id)
		}
		return nil
	})
}
