// Package session drives the quiz lifecycle: host actions, answer ingestion,
// state snapshots and the WebSocket protocol that exposes them.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// SessionStore persists session rows. UpdateSessionState is a compare-and-set
// on version and fails with quiz.ErrStaleVersion when the row moved on.
type SessionStore interface {
	CreateSession(ctx context.Context, s quiz.Session) (quiz.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (quiz.Session, error)
	GetSessionByAccessCode(ctx context.Context, code string) (quiz.Session, error)
	UpdateSessionState(ctx context.Context, id uuid.UUID, version int64, change quiz.StateChange) (quiz.Session, error)
	UpdateAccessCode(ctx context.Context, id uuid.UUID, code string) (quiz.Session, error)
}

// QuestionStore persists questions. AppendQuestion assigns the next dense order index.
type QuestionStore interface {
	AppendQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error)
	ListQuestions(ctx context.Context, sessionID uuid.UUID) ([]quiz.Question, error)
	CountQuestions(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// ParticipantStore persists participant rows.
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p quiz.Participant) (quiz.Participant, error)
	GetParticipant(ctx context.Context, sessionID, participantID uuid.UUID) (quiz.Participant, error)
	FindParticipantByIdentity(ctx context.Context, sessionID uuid.UUID, identity string) (quiz.Participant, error)
	TouchParticipant(ctx context.Context, sessionID, participantID uuid.UUID, at time.Time) error
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]quiz.Participant, error)
	CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// AnswerStore records answers. RecordAnswer inserts the answer and applies the
// outcome to the participant row in one step, computing the outcome from the
// row as stored. It re-checks that draft.QuestionIndex is still open inside
// that step, and a second answer for the same question fails with
// quiz.ErrAlreadyAnswered.
type AnswerStore interface {
	RecordAnswer(ctx context.Context, draft quiz.AnswerDraft, score quiz.ScoreFunc) (quiz.Answer, quiz.Participant, error)
	CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// Store is everything the session package needs from persistence. Both the
// Postgres repository and the in-memory store satisfy it.
type Store interface {
	SessionStore
	QuestionStore
	ParticipantStore
	AnswerStore
	Ping(ctx context.Context) error
}
