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

type proposalStore struct {
	s *Store
}

const proposalColumns = `id, kind, title, description, actions, risk, status, created_at, decided_at, decided_by, execution_result`

func scanProposal(row scanner) (*models.Proposal, error) {
	var p models.Proposal
	var actions, result []byte
	var decidedAt sql.NullTime
	var decidedBy sql.NullString
	err := row.Scan(&p.ID, &p.Kind, &p.Title, &p.Description, &actions,
		&p.Risk, &p.Status, &p.CreatedAt, &decidedAt, &decidedBy, &result)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actions, &p.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions for proposal %s: %w", p.ID, err)
	}
	if result != nil {
		if err := json.Unmarshal(result, &p.ExecutionResult); err != nil {
			return nil, fmt.Errorf("decoding execution result for proposal %s: %w", p.ID, err)
		}
	}
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		p.DecidedAt = &t
	}
	p.DecidedBy = decidedBy.String
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (ps *proposalStore) Insert(ctx context.Context, proposal *models.Proposal) error {
	actions, err := json.Marshal(proposal.Actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}
	return ps.s.run(ctx, func() error {
		_, err := ps.s.q.ExecContext(ctx,
			`INSERT INTO proposals (id, kind, title, description, actions, risk, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			proposal.ID, proposal.Kind, proposal.Title, proposal.Description,
			actions, proposal.Risk, proposal.Status, proposal.CreatedAt.UTC())
		return err
	})
}

func (ps *proposalStore) Get(ctx context.Context, id string) (*models.Proposal, error) {
	var out *models.Proposal
	err := ps.s.run(ctx, func() error {
		row := ps.s.q.QueryRowContext(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
		p, err := scanProposal(row)
		if errors.Is(err, sql.ErrNoRows) {
			return store.NewNotFoundError("proposal", id)
		}
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Transition performs a guarded status update: the row moves only when it is
// still in the from state, which makes concurrent approve/reject/execute
// races resolve to exactly one winner.
func (ps *proposalStore) Transition(ctx context.Context, id string, from, to models.ProposalStatus, decidedBy string, result []models.ActionResult, now time.Time) (*models.Proposal, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, from, to)
	}
	var out *models.Proposal
	err := ps.s.inTx(ctx, func(q dbtx) error {
		var res sql.Result
		var err error
		if from == models.ProposalPending {
			res, err = q.ExecContext(ctx,
				`UPDATE proposals SET status = $3, decided_at = $4, decided_by = $5
				 WHERE id = $1 AND status = $2`,
				id, from, to, now.UTC(), decidedBy)
		} else {
			var resultJSON []byte
			if result != nil {
				resultJSON, err = json.Marshal(result)
				if err != nil {
					return fmt.Errorf("encoding execution result: %w", err)
				}
			}
			res, err = q.ExecContext(ctx,
				`UPDATE proposals SET status = $3, execution_result = $4
				 WHERE id = $1 AND status = $2`,
				id, from, to, resultJSON)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var current models.ProposalStatus
			err := q.QueryRowContext(ctx,
				`SELECT status FROM proposals WHERE id = $1`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return store.NewNotFoundError("proposal", id)
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: proposal %s is %s, expected %s", store.ErrInvalidTransition, id, current, from)
		}
		row := q.QueryRowContext(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
		p, err := scanProposal(row)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (ps *proposalStore) List(ctx context.Context, status *models.ProposalStatus) ([]*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var out []*models.Proposal
	err := ps.s.run(ctx, func() error {
		rows, err := ps.s.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			p, err := scanProposal(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}
