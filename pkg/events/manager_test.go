package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
	"github.com/lvlup-dev/ascent/pkg/store/memory"
)

// failingHistory simulates a store outage during catch-up.
type failingHistory struct{ err error }

func (f *failingHistory) ListAfter(context.Context, string, int64, int) ([]*models.Event, error) {
	return nil, f.err
}

type managerFixture struct {
	manager *ConnectionManager
	broker  *Broker
	store   *memory.Store
	server  *httptest.Server
}

// newManagerFixture starts a manager over a live broker and an httptest
// server whose handler upgrades and delegates, reading after_id from the
// query the way the API handler does.
func newManagerFixture(t *testing.T, history History) *managerFixture {
	t.Helper()

	st := memory.New()
	if history == nil {
		history = st.Events()
	}
	broker := NewBroker()
	fc := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	manager := NewConnectionManager(history, broker, fc, 5*time.Second)
	manager.Start()
	t.Cleanup(manager.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		afterID := int64(-1)
		if raw := r.URL.Query().Get("after_id"); raw != "" {
			afterID, err = strconv.ParseInt(raw, 10, 64)
			require.NoError(t, err)
		}
		manager.HandleConnection(r.Context(), conn, afterID)
	}))
	t.Cleanup(server.Close)

	return &managerFixture{manager: manager, broker: broker, store: st, server: server}
}

func (fx *managerFixture) connect(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + fx.server.URL[len("http"):] + query
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// expectNoMessage asserts nothing arrives within a short window.
func expectNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err, "unexpected message arrived")
}

func TestHandleConnectionAnnouncesItself(t *testing.T) {
	fx := newManagerFixture(t, nil)
	conn := fx.connect(t, "")

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	fx := newManagerFixture(t, nil)
	conn1 := fx.connect(t, "")
	conn2 := fx.connect(t, "")
	readJSON(t, conn1) // connection.established
	readJSON(t, conn2)

	require.Eventually(t, func() bool {
		return fx.manager.ActiveConnections() == 2
	}, 2*time.Second, 10*time.Millisecond)

	fx.broker.Dispatch(ChannelCycle, []byte(`{"type":"cycle.start","kind":"imperium"}`))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readJSON(t, conn)
		assert.Equal(t, "cycle.start", msg["type"])
		assert.Equal(t, "imperium", msg["kind"])
	}
}

func TestEveryChannelReachesClients(t *testing.T) {
	fx := newManagerFixture(t, nil)
	conn := fx.connect(t, "")
	readJSON(t, conn)

	require.Eventually(t, func() bool {
		return fx.manager.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	fx.broker.Dispatch(ChannelCycle, []byte(`{"type":"cycle.end"}`))
	fx.broker.Dispatch(ChannelProposal, []byte(`{"type":"proposal.created"}`))
	fx.broker.Dispatch(ChannelToken, []byte(`{"type":"token.pressure"}`))

	assert.Equal(t, "cycle.end", readJSON(t, conn)["type"])
	assert.Equal(t, "proposal.created", readJSON(t, conn)["type"])
	assert.Equal(t, "token.pressure", readJSON(t, conn)["type"])
}

func TestPingPongCarriesTimestamp(t *testing.T) {
	fx := newManagerFixture(t, nil)
	conn := fx.connect(t, "")
	readJSON(t, conn)

	writeJSON(t, conn, map[string]string{"type": "ping"})

	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
	at, err := time.Parse(time.RFC3339, msg["at"].(string))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), at.UTC())
}

func TestUnknownMessageKeepsConnectionAlive(t *testing.T) {
	fx := newManagerFixture(t, nil)
	conn := fx.connect(t, "")
	readJSON(t, conn)

	writeJSON(t, conn, map[string]string{"type": "subscribe"})
	writeJSON(t, conn, map[string]string{"type": "ping"})

	assert.Equal(t, "pong", readJSON(t, conn)["type"])
}

func TestCatchupReplaysInRowOrderWithEventID(t *testing.T) {
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	// Stored payloads carry no event_id; the replay must inject it. Spread
	// the rows over channels to prove the merge is by row ID, not channel.
	id1, err := fx.store.Events().Insert(ctx, ChannelCycle, []byte(`{"type":"cycle.start","kind":"guardian"}`))
	require.NoError(t, err)
	id2, err := fx.store.Events().Insert(ctx, ChannelProposal, []byte(`{"type":"proposal.created","risk":"high"}`))
	require.NoError(t, err)
	id3, err := fx.store.Events().Insert(ctx, ChannelCycle, []byte(`{"type":"cycle.end","kind":"guardian"}`))
	require.NoError(t, err)

	conn := fx.connect(t, "?after_id=0")
	readJSON(t, conn) // connection.established

	first := readJSON(t, conn)
	assert.Equal(t, "cycle.start", first["type"])
	assert.Equal(t, float64(id1), first["event_id"])

	second := readJSON(t, conn)
	assert.Equal(t, "proposal.created", second["type"])
	assert.Equal(t, float64(id2), second["event_id"])

	third := readJSON(t, conn)
	assert.Equal(t, "cycle.end", third["type"])
	assert.Equal(t, float64(id3), third["event_id"])

	expectNoMessage(t, conn)
}

func TestCatchupStartsAfterRequestedID(t *testing.T) {
	fx := newManagerFixture(t, nil)
	ctx := context.Background()

	_, err := fx.store.Events().Insert(ctx, ChannelCycle, []byte(`{"type":"cycle.start"}`))
	require.NoError(t, err)
	id2, err := fx.store.Events().Insert(ctx, ChannelCycle, []byte(`{"type":"cycle.end"}`))
	require.NoError(t, err)
	id3, err := fx.store.Events().Insert(ctx, ChannelToken, []byte(`{"type":"token.pressure"}`))
	require.NoError(t, err)

	conn := fx.connect(t, fmt.Sprintf("?after_id=%d", id2-1))
	readJSON(t, conn) // connection.established

	assert.Equal(t, float64(id2), readJSON(t, conn)["event_id"])
	assert.Equal(t, float64(id3), readJSON(t, conn)["event_id"])
	expectNoMessage(t, conn)
}

func TestNoCatchupWithoutAfterID(t *testing.T) {
	fx := newManagerFixture(t, nil)
	_, err := fx.store.Events().Insert(context.Background(), ChannelCycle, []byte(`{"type":"cycle.start"}`))
	require.NoError(t, err)

	conn := fx.connect(t, "")
	readJSON(t, conn) // connection.established

	expectNoMessage(t, conn)
}

func TestCatchupOverflowTellsClientToReload(t *testing.T) {
	fx := newManagerFixture(t, nil)
	ctx := context.Background()
	for i := 0; i < catchupLimit+5; i++ {
		_, err := fx.store.Events().Insert(ctx, ChannelCycle, []byte(`{"type":"cycle.start"}`))
		require.NoError(t, err)
	}

	conn := fx.connect(t, "?after_id=0")
	readJSON(t, conn) // connection.established

	for i := 0; i < catchupLimit; i++ {
		msg := readJSON(t, conn)
		require.Equal(t, "cycle.start", msg["type"], "replay event %d", i)
	}

	overflow := readJSON(t, conn)
	assert.Equal(t, "catchup.overflow", overflow["type"])
	assert.Equal(t, true, overflow["has_more"])
}

func TestCatchupFailureKeepsConnectionAlive(t *testing.T) {
	fx := newManagerFixture(t, &failingHistory{err: errors.New("database unreachable")})

	conn := fx.connect(t, "?after_id=0")
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", readJSON(t, conn)["type"])
}

func TestDisconnectUnregistersConnection(t *testing.T) {
	fx := newManagerFixture(t, nil)

	url := "ws" + fx.server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	readJSON(t, conn)
	require.Eventually(t, func() bool {
		return fx.manager.ActiveConnections() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return fx.manager.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcasting into an empty client set must not panic.
	assert.NotPanics(t, func() {
		fx.broker.Dispatch(ChannelCycle, []byte(`{"type":"cycle.start"}`))
	})
}

func TestStopClosesClients(t *testing.T) {
	fx := newManagerFixture(t, nil)
	conn := fx.connect(t, "")
	readJSON(t, conn)

	fx.manager.Stop()
	fx.manager.Stop() // idempotent

	readCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(readCtx)
	assert.Error(t, err, "connection should be closed after Stop")
}
