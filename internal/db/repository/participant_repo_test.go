package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type mockParticipantStore struct {
	mock.Mock
}

func (m *mockParticipantStore) CreateParticipant(ctx context.Context, arg sqlcgen.CreateParticipantParams) (sqlcgen.Participant, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(sqlcgen.Participant), args.Error(1)
}

func (m *mockParticipantStore) GetParticipant(ctx context.Context, arg sqlcgen.GetParticipantParams) (sqlcgen.Participant, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(sqlcgen.Participant), args.Error(1)
}

func (m *mockParticipantStore) GetParticipantByIdentity(ctx context.Context, arg sqlcgen.GetParticipantByIdentityParams) (sqlcgen.Participant, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(sqlcgen.Participant), args.Error(1)
}

func (m *mockParticipantStore) TouchParticipant(ctx context.Context, arg sqlcgen.TouchParticipantParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockParticipantStore) ListParticipantsBySession(ctx context.Context, sessionID pgtype.UUID) ([]sqlcgen.Participant, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]sqlcgen.Participant), args.Error(1)
}

func (m *mockParticipantStore) CountParticipantsBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func TestParticipantRepository_CreateIdentityConflict(t *testing.T) {
	store := new(mockParticipantStore)
	repo := NewParticipantRepository(store)

	store.On("CreateParticipant", mock.Anything, mock.MatchedBy(func(p sqlcgen.CreateParticipantParams) bool {
		return p.Identity.Valid && p.Identity.String == "dev-1"
	})).Return(sqlcgen.Participant{}, &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "participants_session_identity_key"})

	_, err := repo.CreateParticipant(context.Background(), quiz.Participant{SessionID: fromPGUUID(uuidFromByte(1)), Identity: "dev-1"})
	assert.ErrorIs(t, err, quiz.ErrIdentityTaken)
}

func TestParticipantRepository_CreateWithoutIdentity(t *testing.T) {
	store := new(mockParticipantStore)
	repo := NewParticipantRepository(store)

	store.On("CreateParticipant", mock.Anything, mock.MatchedBy(func(p sqlcgen.CreateParticipantParams) bool {
		return !p.Identity.Valid && p.DisplayName == "Ada"
	})).Return(sqlcgen.Participant{ID: uuidFromByte(2), SessionID: uuidFromByte(1), DisplayName: "Ada"}, nil)

	p, err := repo.CreateParticipant(context.Background(), quiz.Participant{SessionID: fromPGUUID(uuidFromByte(1)), DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.NotNil(t, p.Badges)
}

func TestParticipantRepository_TouchMissing(t *testing.T) {
	store := new(mockParticipantStore)
	repo := NewParticipantRepository(store)

	store.On("TouchParticipant", mock.Anything, mock.Anything).Return(int64(0), nil)

	err := repo.TouchParticipant(context.Background(), fromPGUUID(uuidFromByte(1)), fromPGUUID(uuidFromByte(2)), fixedTime())
	assert.ErrorIs(t, err, quiz.ErrParticipantNotFound)
}

func TestParticipantRepository_ListKeepsOrder(t *testing.T) {
	store := new(mockParticipantStore)
	repo := NewParticipantRepository(store)

	store.On("ListParticipantsBySession", mock.Anything, uuidFromByte(1)).Return([]sqlcgen.Participant{
		{ID: uuidFromByte(3), Score: 200},
		{ID: uuidFromByte(2), Score: 97},
	}, nil)

	list, err := repo.ListParticipants(context.Background(), fromPGUUID(uuidFromByte(1)))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 200, list[0].Score)
	assert.Equal(t, 97, list[1].Score)
}

func TestParticipantRepository_FindByEmptyIdentity(t *testing.T) {
	repo := NewParticipantRepository(new(mockParticipantStore))
	_, err := repo.FindParticipantByIdentity(context.Background(), fromPGUUID(uuidFromByte(1)), "")
	assert.ErrorIs(t, err, quiz.ErrParticipantNotFound)
}
