package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeJoinSession  = "join-session"
	TypeSubmitAnswer = "submit-answer"
	TypeQuizControl  = "quiz-control"
	TypeAddQuestion  = "add-question"
	TypeSyncState    = "sync-state"
	TypePing         = "ping"

	// Server -> sender
	TypeSessionJoined   = "session-joined"
	TypeAnswerConfirmed = "answer-confirmed"
	TypeAnswerError     = "answer-error"
	TypeState           = "state"
	TypeControlAck      = "control-ack"
	TypePong            = "pong"
	TypeError           = "error"

	// Server -> session
	TypeParticipantJoined   = "participant-joined"
	TypeParticipantLeft     = "participant-left"
	TypeAnswerSubmitted     = "answer-submitted"
	TypeParticipantsChanged = "participants-changed"
	TypeSessionLive         = "session-live"
	TypeQuizStarted         = "quiz-started"
	TypeQuestionStarted     = "question-started"
	TypeResultsShown        = "results-shown"
	TypeQuizEnded           = "quiz-ended"
	TypeQuestionAdded       = "question-added"
)

// Quiz control actions.
const (
	ActionMakeLive      = "make-live"
	ActionStartQuiz     = "start-quiz"
	ActionNextQuestion  = "next-question"
	ActionStartQuestion = "start-question"
	ActionShowResults   = "show-results"
	ActionEndQuiz       = "end-quiz"
	ActionAddQuestion   = "add-question"
)

// Error codes specific to the transport.
const (
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeCapacityExceeded = "capacity_exceeded"
	ErrCodeInvalidPayload   = "invalid_payload"
	ErrCodeUnknownType      = "unknown_message_type"
	ErrCodeNotJoined        = "not_joined"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage encodes payload into a message of the given type.
func NewMessage(typ string, payload any, requestID string) Message {
	msg := Message{Type: typ, RequestID: requestID}
	msg.Payload, _ = json.Marshal(payload)
	return msg
}

// NewErrorMessage builds an error message.
func NewErrorMessage(code, message, requestID string) Message {
	return NewMessage(TypeError, ErrorPayload{Code: code, Message: message}, requestID)
}

// Client Messages (incoming)

// JoinSessionPayload addresses a session by id or access code. Participants
// rejoin by id or identity, or are created from displayName.
type JoinSessionPayload struct {
	SessionID     string `json:"sessionId,omitempty"`
	AccessCode    string `json:"accessCode,omitempty"`
	Role          string `json:"role"`
	ParticipantID string `json:"participantId,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	Identity      string `json:"identity,omitempty"`
}

type SubmitAnswerPayload struct {
	SessionID     string  `json:"sessionId,omitempty"`
	ParticipantID string  `json:"participantId,omitempty"`
	QuestionID    string  `json:"questionId"`
	AnswerIndex   int     `json:"answerIndex"`
	TimeToAnswer  float64 `json:"timeToAnswer"`
}

type QuizControlPayload struct {
	Action        string `json:"action"`
	SessionID     string `json:"sessionId,omitempty"`
	QuestionIndex *int   `json:"questionIndex,omitempty"`
}

type AddQuestionPayload struct {
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	CorrectOption    int      `json:"correctOption"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty"`
	Points           int      `json:"points,omitempty"`
	MediaURL         string   `json:"mediaUrl,omitempty"`
}

type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// Server Messages (outgoing)

type SessionJoinedPayload struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId,omitempty"`
	Role          string `json:"role"`
	State         any    `json:"state"`
}

type AnswerConfirmedPayload struct {
	QuestionID   string   `json:"questionId"`
	IsCorrect    bool     `json:"isCorrect"`
	PointsEarned int      `json:"pointsEarned"`
	NewScore     int      `json:"newScore"`
	Streak       int      `json:"streak"`
	NewBadges    []string `json:"newBadges,omitempty"`
}

type ControlAckPayload struct {
	Action               string `json:"action"`
	State                string `json:"state"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	Version              int64  `json:"version"`
	QuestionID           string `json:"questionId,omitempty"`
}

type PongPayload struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

// SyncPayload is broadcast with every session notification. Clients re-read
// state on receipt; it never carries scores.
type SyncPayload struct {
	SessionID     string `json:"sessionId"`
	Seq           int64  `json:"seq"`
	QuestionIndex *int   `json:"questionIndex,omitempty"`
	ParticipantID string `json:"participantId,omitempty"`
	Reason        string `json:"reason,omitempty"`
	At            string `json:"at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
