package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lvlup-dev/ascent/pkg/store"
)

// maxNotifyPayload keeps pg_notify payloads under the server's 8000-byte
// limit, with headroom for the envelope fields.
const maxNotifyPayload = 7900

// Publisher persists events and raises the NOTIFY fan-out. Each publish is
// one transaction: the events row and pg_notify commit or vanish together,
// so listeners never see events for rolled-back writes.
type Publisher struct {
	st     store.Store
	logger *slog.Logger
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(st store.Store) *Publisher {
	return &Publisher{
		st:     st,
		logger: slog.Default().With("component", "events"),
	}
}

// PublishCycleStart persists and broadcasts a cycle.start event.
func (p *Publisher) PublishCycleStart(ctx context.Context, payload CycleStartPayload) error {
	payload.Type = TypeCycleStart
	return p.publish(ctx, ChannelCycle, payload)
}

// PublishCycleEnd persists and broadcasts a cycle.end event.
func (p *Publisher) PublishCycleEnd(ctx context.Context, payload CycleEndPayload) error {
	payload.Type = TypeCycleEnd
	return p.publish(ctx, ChannelCycle, payload)
}

// PublishProposalCreated persists and broadcasts a proposal.created event.
func (p *Publisher) PublishProposalCreated(ctx context.Context, payload ProposalCreatedPayload) error {
	payload.Type = TypeProposalCreated
	return p.publish(ctx, ChannelProposal, payload)
}

// PublishProposalDecided persists and broadcasts a proposal.decided event.
func (p *Publisher) PublishProposalDecided(ctx context.Context, payload ProposalDecidedPayload) error {
	payload.Type = TypeProposalDecided
	return p.publish(ctx, ChannelProposal, payload)
}

// PublishProposalExecuted persists and broadcasts a proposal.executed event.
func (p *Publisher) PublishProposalExecuted(ctx context.Context, payload ProposalExecutedPayload) error {
	payload.Type = TypeProposalExecuted
	return p.publish(ctx, ChannelProposal, payload)
}

// PublishTokenPressure persists and broadcasts a token.pressure event.
func (p *Publisher) PublishTokenPressure(ctx context.Context, payload TokenPressurePayload) error {
	payload.Type = TypeTokenPressure
	return p.publish(ctx, ChannelToken, payload)
}

func (p *Publisher) publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", channel, err)
	}
	return p.st.WithTx(ctx, func(tx store.Store) error {
		id, err := tx.Events().Insert(ctx, channel, raw)
		if err != nil {
			return fmt.Errorf("persisting %s event: %w", channel, err)
		}
		notifyPayload, err := notifyEnvelope(raw, id)
		if err != nil {
			return err
		}
		if err := tx.Events().Notify(ctx, channel, notifyPayload); err != nil {
			return fmt.Errorf("notifying %s: %w", channel, err)
		}
		return nil
	})
}

// notifyEnvelope injects the assigned event ID into the NOTIFY copy so
// WebSocket clients can track their catch-up position, and swaps oversize
// payloads for a stub that points back at the persisted row.
func notifyEnvelope(raw []byte, eventID int64) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding payload for notify envelope: %w", err)
	}
	m["event_id"] = eventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding notify envelope: %w", err)
	}
	if len(enriched) <= maxNotifyPayload {
		return enriched, nil
	}
	stub := map[string]any{
		"type":      m["type"],
		"event_id":  eventID,
		"truncated": true,
	}
	return json.Marshal(stub)
}
