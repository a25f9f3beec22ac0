package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func detached() *Connection {
	return NewConnection(nil, nil, zerolog.Nop())
}

func sessionSize(h *Hub, sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func TestHub_RegisterRespectsConnectionCeiling(t *testing.T) {
	hub := NewHub(Limits{MaxConnections: 2}, zerolog.Nop())

	a, b, c := detached(), detached(), detached()
	require.NoError(t, hub.Register(a))
	require.NoError(t, hub.Register(b))
	assert.ErrorIs(t, hub.Register(c), ErrCapacityExceeded)

	hub.Unregister(a)
	assert.NoError(t, hub.Register(c))
	assert.Equal(t, 2, hub.Stats().Connections)
}

func TestHub_JoinRespectsParticipantCeiling(t *testing.T) {
	hub := NewHub(Limits{MaxParticipantsPerSession: 2}, zerolog.Nop())
	session := uuid.New()

	conns := make([]*Connection, 5)
	for i := range conns {
		conns[i] = detached()
		require.NoError(t, hub.Register(conns[i]))
	}
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, hub.Join(conns[0], Member{SessionID: session, ParticipantID: p1, Role: RoleParticipant}))
	require.NoError(t, hub.Join(conns[1], Member{SessionID: session, ParticipantID: p2, Role: RoleParticipant}))
	assert.ErrorIs(t, hub.Join(conns[2], Member{SessionID: session, ParticipantID: p3, Role: RoleParticipant}), ErrSessionFull)

	// A second device for an existing participant and non-participant roles are admitted.
	assert.NoError(t, hub.Join(conns[3], Member{SessionID: session, ParticipantID: p1, Role: RoleParticipant}))
	assert.NoError(t, hub.Join(conns[4], Member{SessionID: session, Role: "display"}))

	st := hub.Stats()
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 2, st.Participants)
	assert.Equal(t, 4, sessionSize(hub, session))
}

func TestHub_UnregisterReturnsMembership(t *testing.T) {
	hub := NewHub(Limits{}, zerolog.Nop())
	session := uuid.New()
	conn := detached()
	require.NoError(t, hub.Register(conn))
	member := Member{SessionID: session, ParticipantID: uuid.New(), Role: RoleParticipant}
	require.NoError(t, hub.Join(conn, member))

	got, joined := hub.Unregister(conn)
	assert.True(t, joined)
	assert.Equal(t, member, got)
	assert.Equal(t, 0, sessionSize(hub, session))
	assert.ErrorIs(t, conn.Send(Message{Type: TypePong}), ErrConnectionClosed)

	_, joined = hub.Unregister(conn)
	assert.False(t, joined)
}

func TestHub_JoinMovesBetweenSessions(t *testing.T) {
	hub := NewHub(Limits{}, zerolog.Nop())
	first, second := uuid.New(), uuid.New()
	conn := detached()
	require.NoError(t, hub.Register(conn))

	require.NoError(t, hub.Join(conn, Member{SessionID: first, Role: "display"}))
	require.NoError(t, hub.Join(conn, Member{SessionID: second, Role: "display"}))
	assert.Equal(t, 0, sessionSize(hub, first))
	assert.Equal(t, 1, sessionSize(hub, second))
}

func TestConnection_SendQueueFull(t *testing.T) {
	c := detached()
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send(Message{Type: TypePong}))
	}
	assert.ErrorIs(t, c.Send(Message{Type: TypePong}), ErrSendQueueFull)
}

func TestConnection_RateLimitDisconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(raw, rate.NewLimiter(rate.Every(time.Hour), 2), zerolog.Nop())
		go conn.WritePump()
		conn.ReadPump(func(msg Message) error {
			return conn.Send(NewMessage(TypePong, PongPayload{}, msg.RequestID))
		})
		conn.Close()
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, client.WriteJSON(Message{Type: TypePing, RequestID: "r"}))
	}

	var types []string
	var errPayload ErrorPayload
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg Message
		err := client.ReadJSON(&msg)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
			break
		}
		types = append(types, msg.Type)
		if msg.Type == TypeError {
			require.NoError(t, json.Unmarshal(msg.Payload, &errPayload))
		}
	}

	assert.Equal(t, []string{TypePong, TypePong, TypeError}, types)
	assert.Equal(t, ErrCodeRateLimited, errPayload.Code)
}
