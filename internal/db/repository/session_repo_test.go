package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) CreateSession(ctx context.Context, arg sqlcgen.CreateSessionParams) (sqlcgen.Session, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(sqlcgen.Session), args.Error(1)
}

func (m *mockSessionStore) GetSession(ctx context.Context, id pgtype.UUID) (sqlcgen.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(sqlcgen.Session), args.Error(1)
}

func (m *mockSessionStore) GetSessionByAccessCode(ctx context.Context, accessCode string) (sqlcgen.Session, error) {
	args := m.Called(ctx, accessCode)
	return args.Get(0).(sqlcgen.Session), args.Error(1)
}

func (m *mockSessionStore) UpdateSessionState(ctx context.Context, arg sqlcgen.UpdateSessionStateParams) (sqlcgen.Session, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(sqlcgen.Session), args.Error(1)
}

func (m *mockSessionStore) UpdateSessionAccessCode(ctx context.Context, arg sqlcgen.UpdateSessionAccessCodeParams) (sqlcgen.Session, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(sqlcgen.Session), args.Error(1)
}

func TestSessionRepository_CreateDecodesSettings(t *testing.T) {
	store := new(mockSessionStore)
	repo := NewSessionRepository(store)

	off := false
	settings := quiz.Settings{TimeLimit: 20, PointsPerQuestion: 200, SpeedBonus: &off}
	raw, err := json.Marshal(settings)
	require.NoError(t, err)

	store.On("CreateSession", mock.Anything, mock.MatchedBy(func(p sqlcgen.CreateSessionParams) bool {
		return p.AccessCode == "123456" && string(p.Settings) == string(raw) && p.ID.Valid
	})).Return(sqlcgen.Session{
		ID:                   uuidFromByte(1),
		HostID:               uuidFromByte(2),
		AccessCode:           "123456",
		CurrentQuestionIndex: -1,
		Settings:             raw,
		Version:              1,
	}, nil)

	got, err := repo.CreateSession(context.Background(), quiz.Session{
		Title:      "Trivia",
		HostID:     fromPGUUID(uuidFromByte(2)),
		AccessCode: "123456",
		Settings:   settings,
	})
	require.NoError(t, err)
	assert.Equal(t, quiz.StateDraft, got.State())
	assert.Equal(t, 20, got.Settings.TimeLimit)
	assert.False(t, got.Settings.SpeedBonusEnabled())
	store.AssertExpectations(t)
}

func TestSessionRepository_CreateAccessCodeConflict(t *testing.T) {
	store := new(mockSessionStore)
	repo := NewSessionRepository(store)

	store.On("CreateSession", mock.Anything, mock.Anything).
		Return(sqlcgen.Session{}, &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "sessions_access_code_key"})

	_, err := repo.CreateSession(context.Background(), quiz.Session{AccessCode: "123456"})
	assert.ErrorIs(t, err, quiz.ErrAccessCodeTaken)
}

func TestSessionRepository_GetNotFound(t *testing.T) {
	store := new(mockSessionStore)
	repo := NewSessionRepository(store)

	store.On("GetSession", mock.Anything, uuidFromByte(9)).Return(sqlcgen.Session{}, pgx.ErrNoRows)

	_, err := repo.GetSession(context.Background(), fromPGUUID(uuidFromByte(9)))
	assert.ErrorIs(t, err, quiz.ErrSessionNotFound)
	assert.Equal(t, quiz.KindNotFound, quiz.KindOf(err))
}

func TestSessionRepository_UpdateStateStaleVersion(t *testing.T) {
	store := new(mockSessionStore)
	repo := NewSessionRepository(store)
	id := uuidFromByte(3)

	store.On("UpdateSessionState", mock.Anything, mock.MatchedBy(func(p sqlcgen.UpdateSessionStateParams) bool {
		return p.ID == id && p.Version == 4
	})).Return(sqlcgen.Session{}, pgx.ErrNoRows)
	store.On("GetSession", mock.Anything, id).Return(sqlcgen.Session{ID: id, Version: 5}, nil)

	_, err := repo.UpdateSessionState(context.Background(), fromPGUUID(id), 4, quiz.StateChange{IsActive: true, CurrentQuestionIndex: -1})
	assert.ErrorIs(t, err, quiz.ErrStaleVersion)
	store.AssertExpectations(t)
}

func TestSessionRepository_UpdateStateMissingSession(t *testing.T) {
	store := new(mockSessionStore)
	repo := NewSessionRepository(store)
	id := uuidFromByte(4)

	store.On("UpdateSessionState", mock.Anything, mock.Anything).Return(sqlcgen.Session{}, pgx.ErrNoRows)
	store.On("GetSession", mock.Anything, id).Return(sqlcgen.Session{}, pgx.ErrNoRows)

	_, err := repo.UpdateSessionState(context.Background(), fromPGUUID(id), 1, quiz.StateChange{})
	assert.ErrorIs(t, err, quiz.ErrSessionNotFound)
}

func TestSessionRepository_UpdateStateWritesStartTime(t *testing.T) {
	store := new(mockSessionStore)
	repo := NewSessionRepository(store)
	id := uuidFromByte(5)

	store.On("UpdateSessionState", mock.Anything, mock.MatchedBy(func(p sqlcgen.UpdateSessionStateParams) bool {
		return p.CurrentQuestionIndex == 0 && p.CurrentQuestionStartTime.Valid && !p.ShowResults
	})).Return(sqlcgen.Session{
		ID:                       id,
		IsActive:                 true,
		CurrentQuestionIndex:     0,
		CurrentQuestionStartTime: pgtype.Timestamptz{Valid: true},
		Version:                  3,
	}, nil)

	now := fixedTime()
	got, err := repo.UpdateSessionState(context.Background(), fromPGUUID(id), 2, quiz.StateChange{
		IsActive:                 true,
		CurrentQuestionIndex:     0,
		CurrentQuestionStartTime: &now,
	})
	require.NoError(t, err)
	assert.Equal(t, quiz.StateQuestionActive, got.State())
	assert.NotNil(t, got.CurrentQuestionStartTime)
}
