package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store"
)

type tokenStore struct {
	s *Store
}

func (ts *tokenStore) Append(ctx context.Context, entry *models.TokenLedgerEntry) error {
	return ts.s.run(ctx, func() error {
		var requestID, errText sql.NullString
		if entry.RequestID != "" {
			requestID = sql.NullString{String: entry.RequestID, Valid: true}
		}
		if entry.Err != "" {
			errText = sql.NullString{String: entry.Err, Valid: true}
		}
		return ts.s.q.QueryRowContext(ctx,
			`INSERT INTO token_ledger (agent_kind, provider, month, tokens_in, tokens_out, request_id, model_id, kind, ok, err, at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id`,
			entry.AgentKind, entry.Provider, entry.Month, entry.TokensIn, entry.TokensOut,
			requestID, entry.ModelID, entry.Kind, entry.OK, errText, entry.At.UTC(),
		).Scan(&entry.ID)
	})
}

func (ts *tokenStore) Aggregate(ctx context.Context, kind models.AgentKind, provider models.Provider, month string) (*models.TokenAggregate, error) {
	agg := &models.TokenAggregate{AgentKind: kind, Provider: provider, Month: month}
	err := ts.s.run(ctx, func() error {
		return ts.s.q.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(tokens_in + tokens_out), 0), COUNT(*)
			 FROM token_ledger
			 WHERE agent_kind = $1 AND provider = $2 AND month = $3`,
			kind, provider, month,
		).Scan(&agg.TokensTotal, &agg.RequestCount)
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func (ts *tokenStore) Usage(ctx context.Context, filter store.UsageFilter) ([]*models.TokenAggregate, error) {
	query := `SELECT agent_kind, provider, month, COALESCE(SUM(tokens_in + tokens_out), 0), COUNT(*)
	          FROM token_ledger`
	var conds []string
	var args []any
	if filter.AgentKind != "" {
		args = append(args, filter.AgentKind)
		conds = append(conds, "agent_kind = $"+strconv.Itoa(len(args)))
	}
	if filter.Provider != "" {
		args = append(args, filter.Provider)
		conds = append(conds, "provider = $"+strconv.Itoa(len(args)))
	}
	if filter.Month != "" {
		args = append(args, filter.Month)
		conds = append(conds, "month = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` GROUP BY agent_kind, provider, month
	           ORDER BY month DESC, agent_kind, provider`

	var out []*models.TokenAggregate
	err := ts.s.run(ctx, func() error {
		rows, err := ts.s.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var agg models.TokenAggregate
			if err := rows.Scan(&agg.AgentKind, &agg.Provider, &agg.Month, &agg.TokensTotal, &agg.RequestCount); err != nil {
				return err
			}
			out = append(out, &agg)
		}
		return rows.Err()
	})
	return out, err
}

const archiveInsert = `INSERT INTO token_ledger_archive (id, agent_kind, provider, month, tokens_in, tokens_out, request_id, model_id, kind, ok, err, at)
	SELECT id, agent_kind, provider, month, tokens_in, tokens_out, request_id, model_id, kind, ok, err, at FROM token_ledger `

func (ts *tokenStore) ArchiveMonth(ctx context.Context, month string) (int64, error) {
	return ts.archive(ctx, archiveInsert+`WHERE month = $1`,
		`DELETE FROM token_ledger WHERE month = $1`, month)
}

func (ts *tokenStore) ArchiveOlderThan(ctx context.Context, month string) (int64, error) {
	return ts.archive(ctx, archiveInsert+`WHERE month < $1`,
		`DELETE FROM token_ledger WHERE month < $1`, month)
}

func (ts *tokenStore) archive(ctx context.Context, insertSQL, deleteSQL, month string) (int64, error) {
	var moved int64
	err := ts.s.inTx(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, insertSQL, month); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, deleteSQL, month)
		if err != nil {
			return err
		}
		moved, err = res.RowsAffected()
		return err
	})
	return moved, err
}
