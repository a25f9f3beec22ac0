package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/metrics"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
	ws "github.com/gokatarajesh/quiz-live/pkg/http/ws"
)

// RateLimit bounds inbound events per connection. Zero disables the limit.
type RateLimit struct {
	EventsPerSecond float64
	Burst           int
}

// Subscriber registers a listener for a session's updates.
type Subscriber interface {
	Subscribe(sessionID uuid.UUID, l fanout.Listener) (unsubscribe func())
}

// Handler manages WebSocket connections and routes session messages.
type Handler struct {
	service *Service
	answers *AnswerService
	reader  *Reader
	hub     *ws.Hub
	sync    Subscriber
	limit   RateLimit
	logger  zerolog.Logger
}

// NewHandler creates a session WebSocket handler.
func NewHandler(service *Service, answers *AnswerService, reader *Reader, hub *ws.Hub, sync Subscriber, limit RateLimit, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		answers: answers,
		reader:  reader,
		hub:     hub,
		sync:    sync,
		limit:   limit,
		logger:  logger.With().Str("component", "session_ws").Logger(),
	}
}

// client is per-connection state. It is only touched from the read loop.
type client struct {
	conn        *ws.Connection
	membership  *Membership
	unsubscribe func()
}

// HandleConnection serves one upgraded socket until it closes.
func (h *Handler) HandleConnection(conn *websocket.Conn) {
	var limiter *rate.Limiter
	if h.limit.EventsPerSecond > 0 {
		burst := h.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.limit.EventsPerSecond), burst)
	}
	wsConn := ws.NewConnection(conn, limiter, h.logger)
	go wsConn.WritePump()

	if err := h.hub.Register(wsConn); err != nil {
		metrics.ConnectionsRejected.WithLabelValues("connections").Inc()
		_ = wsConn.Send(ws.NewErrorMessage(ws.ErrCodeCapacityExceeded, err.Error(), ""))
		wsConn.CloseWith(websocket.CloseTryAgainLater, ws.ErrCodeCapacityExceeded)
		return
	}
	metrics.ConnectionsActive.Inc()

	c := &client{conn: wsConn}
	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), c, msg)
	})

	h.disconnect(c)
	metrics.ConnectionsActive.Dec()
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(ctx context.Context, c *client, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinSession:
		return h.handleJoin(ctx, c, msg)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(ctx, c, msg)
	case ws.TypeQuizControl:
		return h.handleQuizControl(ctx, c, msg)
	case ws.TypeAddQuestion:
		return h.handleAddQuestion(ctx, c, msg)
	case ws.TypeSyncState:
		return h.handleSyncState(ctx, c, msg)
	case ws.TypePing:
		return h.handlePing(ctx, c, msg)
	default:
		return c.conn.Send(ws.NewErrorMessage(ws.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", msg.Type), msg.RequestID))
	}
}

func (h *Handler) handleJoin(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.JoinSessionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return sendInvalid(c, msg, "Invalid join-session payload")
	}
	jr := JoinRequest{
		AccessCode:  req.AccessCode,
		Role:        quiz.Role(req.Role),
		DisplayName: req.DisplayName,
		Identity:    req.Identity,
	}
	if jr.Role == "" {
		jr.Role = quiz.RoleParticipant
	}
	var err error
	if req.SessionID != "" {
		if jr.SessionID, err = uuid.Parse(req.SessionID); err != nil {
			return sendInvalid(c, msg, "Invalid session id")
		}
	}
	if req.ParticipantID != "" {
		if jr.ParticipantID, err = uuid.Parse(req.ParticipantID); err != nil {
			return sendInvalid(c, msg, "Invalid participant id")
		}
	}

	m, err := h.service.Join(ctx, jr)
	if err != nil {
		return h.sendDomainError(c, ws.TypeError, err, msg.RequestID)
	}

	// A connection belongs to one session at a time. Repeating the same join
	// only replaces the subscription.
	if prev := c.membership; prev != nil {
		if prev.Session.ID == m.Session.ID && prev.MemberID() == m.MemberID() {
			c.unsubscribe()
			c.unsubscribe = nil
			c.membership = nil
			metrics.SessionMembers.WithLabelValues(string(prev.Role)).Dec()
		} else {
			h.leave(c)
		}
	}

	member := ws.Member{SessionID: m.Session.ID, ParticipantID: m.MemberID(), Role: string(m.Role)}
	if err := h.hub.Join(c.conn, member); err != nil {
		if errors.Is(err, ws.ErrSessionFull) {
			metrics.ConnectionsRejected.WithLabelValues("session_full").Inc()
			return c.conn.Send(ws.NewErrorMessage(ws.ErrCodeCapacityExceeded, err.Error(), msg.RequestID))
		}
		return err
	}
	metrics.SessionMembers.WithLabelValues(string(m.Role)).Inc()

	c.membership = &m
	conn := c.conn
	c.unsubscribe = h.sync.Subscribe(m.Session.ID, func(u fanout.Update) {
		for _, out := range messagesFor(u) {
			if err := conn.Send(out); err != nil {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID.String()).Msg("drop update")
			}
		}
	})
	h.service.Joined(ctx, m)

	snap, err := h.reader.Snapshot(ctx, m.Session.ID)
	if err != nil {
		return h.sendDomainError(c, ws.TypeError, err, msg.RequestID)
	}
	reply := ws.SessionJoinedPayload{
		SessionID: m.Session.ID.String(),
		Role:      string(m.Role),
		State:     snap,
	}
	if id := m.MemberID(); id != uuid.Nil {
		reply.ParticipantID = id.String()
	}
	h.logger.Info().
		Str("session_id", m.Session.ID.String()).
		Str("role", string(m.Role)).
		Str("participant_id", reply.ParticipantID).
		Msg("joined session")
	return c.conn.Send(ws.NewMessage(ws.TypeSessionJoined, reply, msg.RequestID))
}

func (h *Handler) handleSubmitAnswer(ctx context.Context, c *client, msg ws.Message) error {
	m, ok := h.joined(c, msg)
	if !ok {
		return nil
	}
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return c.conn.Send(ws.NewMessage(ws.TypeAnswerError, ws.ErrorPayload{Code: ws.ErrCodeInvalidPayload, Message: "Invalid submit-answer payload"}, msg.RequestID))
	}
	if m.Participant == nil || (req.ParticipantID != "" && req.ParticipantID != m.Participant.ID.String()) {
		return h.sendDomainError(c, ws.TypeAnswerError, quiz.Validation(quiz.CodeNotMember, "only joined participants can answer"), msg.RequestID)
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		return h.sendDomainError(c, ws.TypeAnswerError, quiz.Validation(quiz.CodeInvalidRequest, "invalid question id"), msg.RequestID)
	}

	receipt, err := h.answers.Submit(ctx, Submission{
		SessionID:      m.Session.ID,
		ParticipantID:  m.Participant.ID,
		QuestionID:     questionID,
		SelectedOption: req.AnswerIndex,
		ElapsedSeconds: req.TimeToAnswer,
	})
	if err != nil {
		return h.sendDomainError(c, ws.TypeAnswerError, err, msg.RequestID)
	}
	return c.conn.Send(ws.NewMessage(ws.TypeAnswerConfirmed, ws.AnswerConfirmedPayload{
		QuestionID:   receipt.QuestionID.String(),
		IsCorrect:    receipt.IsCorrect,
		PointsEarned: receipt.PointsEarned,
		NewScore:     receipt.NewScore,
		Streak:       receipt.Streak,
		NewBadges:    receipt.NewBadges,
	}, msg.RequestID))
}

func (h *Handler) handleQuizControl(ctx context.Context, c *client, msg ws.Message) error {
	m, ok := h.joined(c, msg)
	if !ok {
		return nil
	}
	var req ws.QuizControlPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return sendInvalid(c, msg, "Invalid quiz-control payload")
	}

	actor := Actor{ParticipantID: m.MemberID(), Role: m.Role}
	sessionID := m.Session.ID
	var (
		sess quiz.Session
		err  error
	)
	switch req.Action {
	case ws.ActionMakeLive:
		sess, err = h.service.MakeLive(ctx, sessionID, actor)
	case ws.ActionStartQuiz:
		sess, err = h.service.StartQuiz(ctx, sessionID, actor)
	case ws.ActionNextQuestion:
		sess, err = h.service.NextQuestion(ctx, sessionID, actor)
	case ws.ActionStartQuestion:
		if req.QuestionIndex == nil {
			return sendInvalid(c, msg, "questionIndex is required")
		}
		sess, err = h.service.StartQuestion(ctx, sessionID, actor, *req.QuestionIndex)
	case ws.ActionShowResults:
		sess, err = h.service.ShowResults(ctx, sessionID, actor)
	case ws.ActionEndQuiz:
		sess, err = h.service.FinishQuiz(ctx, sessionID, actor)
	default:
		return sendInvalid(c, msg, fmt.Sprintf("Unknown action: %s", req.Action))
	}
	if err != nil {
		return h.sendDomainError(c, ws.TypeError, err, msg.RequestID)
	}
	return c.conn.Send(ws.NewMessage(ws.TypeControlAck, ws.ControlAckPayload{
		Action:               req.Action,
		State:                string(sess.State()),
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		Version:              sess.Version,
	}, msg.RequestID))
}

func (h *Handler) handleAddQuestion(ctx context.Context, c *client, msg ws.Message) error {
	m, ok := h.joined(c, msg)
	if !ok {
		return nil
	}
	var req ws.AddQuestionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return sendInvalid(c, msg, "Invalid add-question payload")
	}

	q, err := h.service.AddQuestion(ctx, m.Session.ID, Actor{ParticipantID: m.MemberID(), Role: m.Role}, question.Draft{
		Prompt:           req.Prompt,
		Options:          req.Options,
		CorrectOption:    req.CorrectOption,
		TimeLimitSeconds: req.TimeLimitSeconds,
		Points:           req.Points,
		MediaURL:         req.MediaURL,
	})
	if err != nil {
		return h.sendDomainError(c, ws.TypeError, err, msg.RequestID)
	}
	return c.conn.Send(ws.NewMessage(ws.TypeControlAck, ws.ControlAckPayload{
		Action:               ws.ActionAddQuestion,
		State:                string(quiz.StateDraft),
		CurrentQuestionIndex: q.OrderIndex,
		QuestionID:           q.ID.String(),
	}, msg.RequestID))
}

func (h *Handler) handleSyncState(ctx context.Context, c *client, msg ws.Message) error {
	m, ok := h.joined(c, msg)
	if !ok {
		return nil
	}
	snap, err := h.reader.Snapshot(ctx, m.Session.ID)
	if err != nil {
		return h.sendDomainError(c, ws.TypeError, err, msg.RequestID)
	}
	return c.conn.Send(ws.NewMessage(ws.TypeState, snap, msg.RequestID))
}

func (h *Handler) handlePing(ctx context.Context, c *client, msg ws.Message) error {
	var req ws.PingPayload
	if len(msg.Payload) > 0 {
		_ = json.Unmarshal(msg.Payload, &req)
	}
	if m := c.membership; m != nil && m.Participant != nil {
		if err := h.service.Touch(ctx, m.Session.ID, m.Participant.ID); err != nil {
			h.logger.Debug().Err(err).Msg("touch participant failed")
		}
	}
	return c.conn.Send(ws.NewMessage(ws.TypePong, ws.PongPayload{
		Timestamp:  req.Timestamp,
		ServerTime: time.Now().UnixMilli(),
	}, msg.RequestID))
}

func (h *Handler) joined(c *client, msg ws.Message) (*Membership, bool) {
	if c.membership == nil {
		_ = c.conn.Send(ws.NewErrorMessage(ws.ErrCodeNotJoined, "Join a session first", msg.RequestID))
		return nil, false
	}
	return c.membership, true
}

// leave drops the connection's current session membership, if any.
func (h *Handler) leave(c *client) {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	m := c.membership
	if m == nil {
		return
	}
	c.membership = nil
	h.hub.Leave(c.conn)
	h.announceLeft(m)
}

func (h *Handler) disconnect(c *client) {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	h.hub.Unregister(c.conn)
	if m := c.membership; m != nil {
		c.membership = nil
		h.announceLeft(m)
	}
}

func (h *Handler) announceLeft(m *Membership) {
	metrics.SessionMembers.WithLabelValues(string(m.Role)).Dec()
	if m.Participant == nil || h.hub.Connected(m.Session.ID, m.Participant.ID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.service.Left(ctx, m.Session.ID, m.Participant.ID)
}

func (h *Handler) sendDomainError(c *client, typ string, err error, requestID string) error {
	message := "Service temporarily unavailable"
	var e *quiz.Error
	if errors.As(err, &e) && e.Kind != quiz.KindTransient {
		message = e.Message
	} else {
		h.logger.Warn().Err(err).Str("type", typ).Msg("request failed")
	}
	return c.conn.Send(ws.NewMessage(typ, ws.ErrorPayload{Code: quiz.CodeOf(err), Message: message}, requestID))
}

func sendInvalid(c *client, msg ws.Message, text string) error {
	return c.conn.Send(ws.NewErrorMessage(ws.ErrCodeInvalidPayload, text, msg.RequestID))
}

// messagesFor maps an upstream update onto the client notifications it
// produces. Payloads carry identifiers only; clients re-read state.
func messagesFor(u fanout.Update) []ws.Message {
	payload := ws.SyncPayload{
		SessionID:     u.SessionID.String(),
		Seq:           u.Seq,
		QuestionIndex: u.QuestionIndex,
		ParticipantID: u.ParticipantID,
		Reason:        u.Reason,
		At:            u.At.UTC().Format(time.RFC3339Nano),
	}
	one := func(typ string) []ws.Message {
		return []ws.Message{ws.NewMessage(typ, payload, "")}
	}

	switch u.Kind {
	case fanout.KindSessionLive:
		return one(ws.TypeSessionLive)
	case fanout.KindQuestionStarted:
		if u.QuestionIndex != nil && *u.QuestionIndex == 0 {
			return []ws.Message{
				ws.NewMessage(ws.TypeQuizStarted, payload, ""),
				ws.NewMessage(ws.TypeQuestionStarted, payload, ""),
			}
		}
		return one(ws.TypeQuestionStarted)
	case fanout.KindResultsShown:
		return one(ws.TypeResultsShown)
	case fanout.KindQuizFinished:
		return one(ws.TypeQuizEnded)
	case fanout.KindQuestionAdded:
		return one(ws.TypeQuestionAdded)
	case fanout.KindParticipantsChanged:
		switch u.Reason {
		case fanout.ReasonJoined:
			return one(ws.TypeParticipantJoined)
		case fanout.ReasonLeft:
			return one(ws.TypeParticipantLeft)
		case fanout.ReasonAnswered:
			return one(ws.TypeAnswerSubmitted)
		default:
			return one(ws.TypeParticipantsChanged)
		}
	default:
		return nil
	}
}
