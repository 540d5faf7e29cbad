package events

import (
	"log/slog"
	"sync"
)

// subscriptionBuffer is each subscriber's queue depth. A full queue drops
// the delivery rather than stalling the feed.
const subscriptionBuffer = 64

// Delivery is one event handed to a subscriber. The payload is shared
// between subscribers and must be treated as read-only.
type Delivery struct {
	Channel string
	Payload []byte
}

// Subscription receives deliveries for its channels until Close.
type Subscription struct {
	id       int64
	channels []string
	ch       chan Delivery
	broker   *Broker
	once     sync.Once
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Delivery {
	return s.ch
}

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.drop(s)
		close(s.ch)
	})
}

// Broker fans deliveries out to in-process subscribers. In production the
// postgres NOTIFY listener feeds it; in tests the memory store's notify
// hook does. Dispatch never blocks: slow subscribers lose deliveries,
// which the WS catch-up path recovers from the events table.
type Broker struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]map[int64]*Subscription
	nextID int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		logger: slog.Default().With("component", "events"),
		subs:   make(map[string]map[int64]*Subscription),
	}
}

// Subscribe registers a subscriber for the given channels. Subscribing to
// no channels yields a subscription that never delivers.
func (b *Broker) Subscribe(channels ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		channels: channels,
		ch:       make(chan Delivery, subscriptionBuffer),
		broker:   b,
	}
	for _, c := range channels {
		if b.subs[c] == nil {
			b.subs[c] = make(map[int64]*Subscription)
		}
		b.subs[c][sub.id] = sub
	}
	return sub
}

// Dispatch delivers the payload to every subscriber of channel.
func (b *Broker) Dispatch(channel string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[channel] {
		select {
		case sub.ch <- Delivery{Channel: channel, Payload: payload}:
		default:
			b.logger.Warn("Dropping event for slow subscriber", "channel", channel)
		}
	}
}

func (b *Broker) drop(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range sub.channels {
		delete(b.subs[c], sub.id)
		if len(b.subs[c]) == 0 {
			delete(b.subs, c)
		}
	}
}
