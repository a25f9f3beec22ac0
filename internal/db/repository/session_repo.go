package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type sessionStore interface {
	CreateSession(ctx context.Context, arg sqlcgen.CreateSessionParams) (sqlcgen.Session, error)
	GetSession(ctx context.Context, id pgtype.UUID) (sqlcgen.Session, error)
	GetSessionByAccessCode(ctx context.Context, accessCode string) (sqlcgen.Session, error)
	UpdateSessionState(ctx context.Context, arg sqlcgen.UpdateSessionStateParams) (sqlcgen.Session, error)
	UpdateSessionAccessCode(ctx context.Context, arg sqlcgen.UpdateSessionAccessCodeParams) (sqlcgen.Session, error)
}

// SessionRepository persists session rows.
type SessionRepository struct {
	store sessionStore
}

// NewSessionRepository constructs a new session repository.
func NewSessionRepository(store sessionStore) *SessionRepository {
	return &SessionRepository{store: store}
}

// CreateSession inserts a draft session.
func (r *SessionRepository) CreateSession(ctx context.Context, s quiz.Session) (quiz.Session, error) {
	settings, err := json.Marshal(s.Settings)
	if err != nil {
		return quiz.Session{}, fmt.Errorf("encode settings: %w", err)
	}
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row, err := r.store.CreateSession(ctx, sqlcgen.CreateSessionParams{
		ID:          pgUUID(id),
		Title:       s.Title,
		Description: s.Description,
		HostID:      pgUUID(s.HostID),
		AccessCode:  s.AccessCode,
		Settings:    settings,
	})
	if err != nil {
		return quiz.Session{}, mapErr(err, quiz.ErrSessionNotFound)
	}
	return toSession(row)
}

func (r *SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (quiz.Session, error) {
	row, err := r.store.GetSession(ctx, pgUUID(id))
	if err != nil {
		return quiz.Session{}, mapErr(err, quiz.ErrSessionNotFound)
	}
	return toSession(row)
}

func (r *SessionRepository) GetSessionByAccessCode(ctx context.Context, code string) (quiz.Session, error) {
	row, err := r.store.GetSessionByAccessCode(ctx, code)
	if err != nil {
		return quiz.Session{}, mapErr(err, quiz.ErrSessionNotFound)
	}
	return toSession(row)
}

// UpdateSessionState writes change only if the stored version still equals version.
func (r *SessionRepository) UpdateSessionState(ctx context.Context, id uuid.UUID, version int64, change quiz.StateChange) (quiz.Session, error) {
	row, err := r.store.UpdateSessionState(ctx, sqlcgen.UpdateSessionStateParams{
		ID:                       pgUUID(id),
		Version:                  version,
		IsActive:                 change.IsActive,
		IsFinished:               change.IsFinished,
		CurrentQuestionIndex:     int32(change.CurrentQuestionIndex),
		CurrentQuestionStartTime: pgTimePtr(change.CurrentQuestionStartTime),
		ShowResults:              change.ShowResults,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the row is gone or the version moved on.
		if _, getErr := r.GetSession(ctx, id); getErr != nil {
			return quiz.Session{}, getErr
		}
		return quiz.Session{}, quiz.ErrStaleVersion
	}
	if err != nil {
		return quiz.Session{}, mapErr(err, quiz.ErrSessionNotFound)
	}
	return toSession(row)
}

func (r *SessionRepository) UpdateAccessCode(ctx context.Context, id uuid.UUID, code string) (quiz.Session, error) {
	row, err := r.store.UpdateSessionAccessCode(ctx, sqlcgen.UpdateSessionAccessCodeParams{
		ID:         pgUUID(id),
		AccessCode: code,
	})
	if err != nil {
		return quiz.Session{}, mapErr(err, quiz.ErrSessionNotFound)
	}
	return toSession(row)
}
