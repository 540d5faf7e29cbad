package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// catchupLimit caps how many persisted events a reconnecting client is
// replayed. Beyond it a catchup.overflow message tells the client to reload
// its state over REST instead of paginating.
const catchupLimit = 200

// defaultWriteTimeout bounds each WebSocket send. A client that cannot drain
// within it is dropped rather than allowed to stall the feed.
const defaultWriteTimeout = 10 * time.Second

// History replays persisted events for catch-up. The store's event access
// satisfies it.
type History interface {
	ListAfter(ctx context.Context, channel string, afterID int64, limit int) ([]*models.Event, error)
}

// clientMessage is the envelope for messages sent by WebSocket clients.
// Only ping is recognised; everything else is logged and ignored.
type clientMessage struct {
	Type string `json:"type"`
}

// ConnectionManager owns the WebSocket client set. Every connection receives
// every broadcast event; there is no per-channel subscribe protocol. The
// manager feeds from the in-process Broker, so it carries events regardless
// of whether they arrived via pg_notify or a same-process publish.
type ConnectionManager struct {
	history      History
	broker       *Broker
	clk          clock.Clock
	writeTimeout time.Duration
	logger       *slog.Logger

	mu    sync.RWMutex
	conns map[string]*connection

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	sub      *Subscription
}

// connection is a single WebSocket client.
//
// The ctx is cancelled on unregister, on manager shutdown, and when a write
// times out; the read loop in HandleConnection observes the cancellation and
// exits.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a manager reading live events from broker and
// replaying missed ones from history. writeTimeout <= 0 selects the default.
func NewConnectionManager(history History, broker *Broker, clk clock.Clock, writeTimeout time.Duration) *ConnectionManager {
	if broker == nil {
		panic("events: broker must not be nil")
	}
	if clk == nil {
		panic("events: clock must not be nil")
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &ConnectionManager{
		history:      history,
		broker:       broker,
		clk:          clk,
		writeTimeout: writeTimeout,
		logger:       slog.Default().With("component", "events"),
		conns:        make(map[string]*connection),
		stopCh:       make(chan struct{}),
	}
}

// Start subscribes to the broker and begins pumping deliveries to clients.
func (m *ConnectionManager) Start() {
	m.sub = m.broker.Subscribe(AllChannels()...)
	m.wg.Add(1)
	go m.pump()
	m.logger.Info("WebSocket manager started")
}

// Stop detaches from the broker and closes every client connection.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.sub != nil {
			m.sub.Close()
		}
		m.wg.Wait()

		m.mu.RLock()
		conns := make([]*connection, 0, len(m.conns))
		for _, c := range m.conns {
			conns = append(conns, c)
		}
		m.mu.RUnlock()

		for _, c := range conns {
			c.cancel()
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		m.logger.Info("WebSocket manager stopped")
	})
}

func (m *ConnectionManager) pump() {
	defer m.wg.Done()
	for {
		select {
		case d, ok := <-m.sub.C():
			if !ok {
				return
			}
			m.broadcast(d.Payload)
		case <-m.stopCh:
			return
		}
	}
}

// HandleConnection runs the lifecycle of one accepted WebSocket connection.
// Called by the HTTP handler after the upgrade; blocks until the connection
// closes. afterID >= 0 requests a replay of persisted events with a greater
// ID before live traffic; a negative afterID skips the replay.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, afterID int64) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{
		id:     uuid.New().String(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.id,
	})

	// Replay after registering so no live event is missed. A live delivery
	// may interleave with or duplicate the replay; clients dedupe by
	// event_id.
	if afterID >= 0 {
		m.catchup(ctx, c, afterID)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("Invalid WebSocket message", "connection_id", c.id, "error", err)
			continue
		}
		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the number of connected clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *ConnectionManager) handleClientMessage(c *connection, msg *clientMessage) {
	switch msg.Type {
	case "ping":
		m.sendJSON(c, map[string]any{
			"type": "pong",
			"at":   m.clk.Now().UTC(),
		})
	default:
		m.logger.Warn("Unknown WebSocket message type", "connection_id", c.id, "message_type", msg.Type)
	}
}

// broadcast sends one event payload to every connected client. Connection
// pointers are snapshotted before sending so slow writes never hold the lock
// against register/unregister.
func (m *ConnectionManager) broadcast(payload []byte) {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := m.sendRaw(c, payload); err != nil {
			m.logger.Warn("Dropping slow WebSocket client", "connection_id", c.id, "error", err)
			c.cancel()
		}
	}
}

// catchup replays persisted events with ID > afterID, merged across all
// channels in ID order. Stored payloads lack the event_id field (the
// publisher adds it only to the NOTIFY copy), so it is injected here from
// the row ID.
func (m *ConnectionManager) catchup(ctx context.Context, c *connection, afterID int64) {
	if m.history == nil {
		return
	}

	merged := make([]*models.Event, 0, catchupLimit+1)
	for _, channel := range AllChannels() {
		events, err := m.history.ListAfter(ctx, channel, afterID, catchupLimit+1)
		if err != nil {
			m.logger.Error("Catch-up query failed", "channel", channel, "error", err)
			return
		}
		merged = append(merged, events...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })

	hasMore := len(merged) > catchupLimit
	if hasMore {
		merged = merged[:catchupLimit]
	}

	for _, evt := range merged {
		payload, err := injectEventID(evt)
		if err != nil {
			m.logger.Warn("Skipping malformed stored event", "event_id", evt.ID, "error", err)
			continue
		}
		if err := m.sendRaw(c, payload); err != nil {
			m.logger.Warn("Failed to send catch-up event", "connection_id", c.id, "error", err)
			return
		}
	}

	if hasMore {
		m.sendJSON(c, map[string]any{
			"type":     "catchup.overflow",
			"has_more": true,
		})
	}
}

func injectEventID(evt *models.Event) ([]byte, error) {
	var body map[string]any
	if err := json.Unmarshal(evt.Payload, &body); err != nil {
		return nil, err
	}
	body["event_id"] = evt.ID
	return json.Marshal(body)
}

func (m *ConnectionManager) register(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.id] = c
}

func (m *ConnectionManager) unregister(c *connection) {
	m.mu.Lock()
	delete(m.conns, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("Failed to marshal WebSocket message", "connection_id", c.id, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		m.logger.Warn("Failed to send WebSocket message", "connection_id", c.id, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
