// Package events carries broadcast events from writers to WebSocket clients
// and in-process subscribers. Persistent events ride a transactional outbox
// (events table + pg_notify, multi-pod safe); the in-process Broker fans
// deliveries out to the learning loop and the WS manager.
package events

// Notification channels. Every persisted event belongs to exactly one.
const (
	// ChannelCycle carries cycle.start / cycle.end events.
	ChannelCycle = "events.cycle"
	// ChannelProposal carries proposal lifecycle events.
	ChannelProposal = "events.proposal"
	// ChannelToken carries token budget pressure events.
	ChannelToken = "events.token"
)

// AllChannels lists every notification channel in a stable order.
func AllChannels() []string {
	return []string{ChannelCycle, ChannelProposal, ChannelToken}
}

// Event type discriminators, carried in every payload's "type" field.
const (
	TypeCycleStart       = "cycle.start"
	TypeCycleEnd         = "cycle.end"
	TypeProposalCreated  = "proposal.created"
	TypeProposalDecided  = "proposal.decided"
	TypeProposalExecuted = "proposal.executed"
	TypeTokenPressure    = "token.pressure"
)
