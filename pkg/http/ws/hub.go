package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 15 * time.Second
	sendBuffer = 256
)

// RoleParticipant is the only role counted against the per-session ceiling.
const RoleParticipant = "participant"

// Limits caps how much a single instance accepts. Zero means unlimited.
type Limits struct {
	MaxConnections            int
	MaxParticipantsPerSession int
}

// Member binds a connection to one session.
type Member struct {
	SessionID     uuid.UUID
	ParticipantID uuid.UUID
	Role          string
}

// Stats is a point-in-time count of what the hub holds.
type Stats struct {
	Connections  int `json:"connections"`
	Sessions     int `json:"sessions"`
	Participants int `json:"participants"`
}

// Hub tracks live connections and their session membership.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*Connection               // conn id -> connection
	sessions    map[uuid.UUID]map[uuid.UUID]*Connection // session id -> conn id -> connection
	limits      Limits
	logger      zerolog.Logger
}

// NewHub creates a hub enforcing limits.
func NewHub(limits Limits, logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*Connection),
		sessions:    make(map[uuid.UUID]map[uuid.UUID]*Connection),
		limits:      limits,
		logger:      logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register admits a connection, or returns ErrCapacityExceeded.
func (h *Hub) Register(conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.limits.MaxConnections > 0 && len(h.connections) >= h.limits.MaxConnections {
		return ErrCapacityExceeded
	}
	h.connections[conn.ID] = conn
	h.logger.Debug().Str("conn_id", conn.ID.String()).Int("connections", len(h.connections)).Msg("connection registered")
	return nil
}

// Unregister drops the connection and its membership, closes it, and
// returns the membership it held, if any.
func (h *Hub) Unregister(conn *Connection) (Member, bool) {
	h.mu.Lock()
	delete(h.connections, conn.ID)
	member, joined := h.leaveLocked(conn)
	h.mu.Unlock()

	conn.Close()
	return member, joined
}

// Join binds conn to member.SessionID. A connection belongs to at most one
// session; joining another moves it. Participants beyond the session ceiling
// are refused with ErrSessionFull. Rejoining as the same participant does not
// count twice.
func (h *Hub) Join(conn *Connection, member Member) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return ErrConnectionNotFound
	}
	if member.Role == RoleParticipant && h.limits.MaxParticipantsPerSession > 0 {
		if h.participantsLocked(member.SessionID, member.ParticipantID) >= h.limits.MaxParticipantsPerSession {
			return ErrSessionFull
		}
	}

	h.leaveLocked(conn)
	members := h.sessions[member.SessionID]
	if members == nil {
		members = make(map[uuid.UUID]*Connection)
		h.sessions[member.SessionID] = members
	}
	members[conn.ID] = conn
	conn.setMember(&member)
	return nil
}

// Leave removes conn from its session, keeping the connection open.
func (h *Hub) Leave(conn *Connection) (Member, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(conn)
}

func (h *Hub) leaveLocked(conn *Connection) (Member, bool) {
	m := conn.Member()
	if m == nil {
		return Member{}, false
	}
	if members := h.sessions[m.SessionID]; members != nil {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(h.sessions, m.SessionID)
		}
	}
	conn.setMember(nil)
	return *m, true
}

// participantsLocked counts distinct participants in a session other than exclude.
func (h *Hub) participantsLocked(sessionID, exclude uuid.UUID) int {
	seen := make(map[uuid.UUID]struct{})
	for _, c := range h.sessions[sessionID] {
		m := c.Member()
		if m == nil || m.Role != RoleParticipant || m.ParticipantID == exclude {
			continue
		}
		seen[m.ParticipantID] = struct{}{}
	}
	return len(seen)
}

// Connected reports whether any connection in the session acts as participantID.
func (h *Hub) Connected(sessionID, participantID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		if m := c.Member(); m != nil && m.ParticipantID == participantID {
			return true
		}
	}
	return false
}

// Stats counts connections, sessions and distinct joined participants.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{Connections: len(h.connections), Sessions: len(h.sessions)}
	for sessionID := range h.sessions {
		st.Participants += h.participantsLocked(sessionID, uuid.Nil)
	}
	return st
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	ID      uuid.UUID
	conn    *websocket.Conn
	sendCh  chan Message
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu        sync.Mutex
	closed    bool
	member    *Member
	closeCode int
	closeText string
}

// NewConnection wraps a WebSocket connection. A nil limiter disables
// inbound rate limiting.
func NewConnection(conn *websocket.Conn, limiter *rate.Limiter, logger zerolog.Logger) *Connection {
	id := uuid.New()
	return &Connection{
		ID:        id,
		conn:      conn,
		sendCh:    make(chan Message, sendBuffer),
		limiter:   limiter,
		logger:    logger.With().Str("conn_id", id.String()).Logger(),
		closeCode: websocket.CloseNormalClosure,
	}
}

// Member returns the connection's session binding, or nil.
func (c *Connection) Member() *Member {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.member == nil {
		return nil
	}
	m := *c.member
	return &m
}

func (c *Connection) setMember(m *Member) {
	c.mu.Lock()
	c.member = m
	c.mu.Unlock()
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops accepting messages. The write pump flushes what is queued,
// then sends a close frame and releases the socket.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
}

// CloseWith closes using a specific WebSocket close code.
func (c *Connection) CloseWith(code int, text string) {
	c.mu.Lock()
	if !c.closed {
		c.closeCode, c.closeText = code, text
	}
	c.mu.Unlock()
	c.Close()
}

// WritePump sends queued messages and keeps the socket alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.mu.Lock()
				code, text := c.closeCode, c.closeText
				c.mu.Unlock()
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump receives messages and calls handler until the peer goes away or
// exceeds the inbound rate. A rate-limited connection gets an error message
// and a policy-violation close.
func (c *Connection) ReadPump(handler func(Message) error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.logger.Warn().Msg("inbound rate exceeded, disconnecting")
			_ = c.Send(NewErrorMessage(ErrCodeRateLimited, "Too many messages", msg.RequestID))
			c.CloseWith(websocket.ClosePolicyViolation, ErrCodeRateLimited)
			return
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Str("type", msg.Type).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
	ErrCapacityExceeded   = &Error{Code: ErrCodeCapacityExceeded, Message: "Server is at connection capacity"}
	ErrSessionFull        = &Error{Code: ErrCodeCapacityExceeded, Message: "Session is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
