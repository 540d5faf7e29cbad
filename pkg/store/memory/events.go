package memory

import (
	"context"
	"slices"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
)

type eventStore struct {
	s *Store
}

func (es *eventStore) Insert(ctx context.Context, channel string, payload []byte) (int64, error) {
	var id int64
	err := es.s.locked(func(st *state) error {
		st.nextEventID++
		id = st.nextEventID
		st.events = append(st.events, &models.Event{
			ID:        id,
			Channel:   channel,
			Payload:   slices.Clone(payload),
			CreatedAt: time.Now().UTC(),
		})
		return nil
	})
	return id, err
}

// Notify queues the notification when transaction-bound, mirroring
// pg_notify's held-until-commit behavior, and fires immediately otherwise.
func (es *eventStore) Notify(ctx context.Context, channel string, payload []byte) error {
	s := es.s
	if s.tx {
		s.pending = append(s.pending, notification{channel: channel, payload: slices.Clone(payload)})
		return nil
	}
	s.mu.Lock()
	handler := s.onNotify
	s.mu.Unlock()
	if handler != nil {
		handler(channel, slices.Clone(payload))
	}
	return nil
}

func (es *eventStore) ListAfter(ctx context.Context, channel string, afterID int64, limit int) ([]*models.Event, error) {
	var out []*models.Event
	err := es.s.locked(func(st *state) error {
		for _, e := range st.events {
			if e.Channel != channel || e.ID <= afterID {
				continue
			}
			copied := *e
			copied.Payload = slices.Clone(e.Payload)
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (es *eventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := es.s.locked(func(st *state) error {
		kept := st.events[:0:0]
		for _, e := range st.events {
			if e.CreatedAt.Before(cutoff) {
				deleted++
			} else {
				kept = append(kept, e)
			}
		}
		st.events = kept
		return nil
	})
	return deleted, err
}
