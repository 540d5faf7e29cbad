package postgres

import (
	"context"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type eventStore struct {
	s *Store
}

func (es *eventStore) Insert(ctx context.Context, channel string, payload []byte) (int64, error) {
	var id int64
	err := es.s.run(ctx, func() error {
		return es.s.q.QueryRowContext(ctx,
			`INSERT INTO events (channel, payload) VALUES ($1, $2) RETURNING id`,
			channel, payload).Scan(&id)
	})
	return id, err
}

// Notify fires pg_notify. Inside a transaction the notification is held
// until commit, so insert-then-notify in one WithTx never leaks events for
// rolled-back writes.
func (es *eventStore) Notify(ctx context.Context, channel string, payload []byte) error {
	return es.s.run(ctx, func() error {
		_, err := es.s.q.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, string(payload))
		return err
	})
}

func (es *eventStore) ListAfter(ctx context.Context, channel string, afterID int64, limit int) ([]*models.Event, error) {
	var out []*models.Event
	err := es.s.run(ctx, func() error {
		rows, err := es.s.q.QueryContext(ctx,
			`SELECT id, channel, payload, created_at FROM events
			 WHERE channel = $1 AND id > $2
			 ORDER BY id ASC LIMIT $3`, channel, afterID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var e models.Event
			var payload []byte
			if err := rows.Scan(&e.ID, &e.Channel, &payload, &e.CreatedAt); err != nil {
				return err
			}
			e.Payload = payload
			e.CreatedAt = e.CreatedAt.UTC()
			out = append(out, &e)
		}
		return rows.Err()
	})
	return out, err
}

func (es *eventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := es.s.run(ctx, func() error {
		res, err := es.s.q.ExecContext(ctx,
			`DELETE FROM events WHERE created_at < $1`, cutoff.UTC())
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
