package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type participantStore interface {
	CreateParticipant(ctx context.Context, arg sqlcgen.CreateParticipantParams) (sqlcgen.Participant, error)
	GetParticipant(ctx context.Context, arg sqlcgen.GetParticipantParams) (sqlcgen.Participant, error)
	GetParticipantByIdentity(ctx context.Context, arg sqlcgen.GetParticipantByIdentityParams) (sqlcgen.Participant, error)
	TouchParticipant(ctx context.Context, arg sqlcgen.TouchParticipantParams) (int64, error)
	ListParticipantsBySession(ctx context.Context, sessionID pgtype.UUID) ([]sqlcgen.Participant, error)
	CountParticipantsBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error)
}

// ParticipantRepository wraps participant queries.
type ParticipantRepository struct {
	store participantStore
}

// NewParticipantRepository constructs a participant repository.
func NewParticipantRepository(store participantStore) *ParticipantRepository {
	return &ParticipantRepository{store: store}
}

func (r *ParticipantRepository) CreateParticipant(ctx context.Context, p quiz.Participant) (quiz.Participant, error) {
	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row, err := r.store.CreateParticipant(ctx, sqlcgen.CreateParticipantParams{
		ID:          pgUUID(id),
		SessionID:   pgUUID(p.SessionID),
		DisplayName: p.DisplayName,
		Identity:    pgText(p.Identity),
	})
	if err != nil {
		return quiz.Participant{}, mapErr(err, quiz.ErrSessionNotFound)
	}
	return toParticipant(row), nil
}

func (r *ParticipantRepository) GetParticipant(ctx context.Context, sessionID, participantID uuid.UUID) (quiz.Participant, error) {
	row, err := r.store.GetParticipant(ctx, sqlcgen.GetParticipantParams{
		ID:        pgUUID(participantID),
		SessionID: pgUUID(sessionID),
	})
	if err != nil {
		return quiz.Participant{}, mapErr(err, quiz.ErrParticipantNotFound)
	}
	return toParticipant(row), nil
}

func (r *ParticipantRepository) FindParticipantByIdentity(ctx context.Context, sessionID uuid.UUID, identity string) (quiz.Participant, error) {
	if identity == "" {
		return quiz.Participant{}, quiz.ErrParticipantNotFound
	}
	row, err := r.store.GetParticipantByIdentity(ctx, sqlcgen.GetParticipantByIdentityParams{
		SessionID: pgUUID(sessionID),
		Identity:  pgText(identity),
	})
	if err != nil {
		return quiz.Participant{}, mapErr(err, quiz.ErrParticipantNotFound)
	}
	return toParticipant(row), nil
}

// TouchParticipant records liveness.
func (r *ParticipantRepository) TouchParticipant(ctx context.Context, sessionID, participantID uuid.UUID, at time.Time) error {
	n, err := r.store.TouchParticipant(ctx, sqlcgen.TouchParticipantParams{
		ID:        pgUUID(participantID),
		SessionID: pgUUID(sessionID),
		LastSeen:  pgTime(at),
	})
	if err != nil {
		return mapErr(err, quiz.ErrParticipantNotFound)
	}
	if n == 0 {
		return quiz.ErrParticipantNotFound
	}
	return nil
}

func (r *ParticipantRepository) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]quiz.Participant, error) {
	rows, err := r.store.ListParticipantsBySession(ctx, pgUUID(sessionID))
	if err != nil {
		return nil, mapErr(err, quiz.ErrSessionNotFound)
	}
	out := make([]quiz.Participant, len(rows))
	for i, row := range rows {
		out[i] = toParticipant(row)
	}
	return out, nil
}

func (r *ParticipantRepository) CountParticipants(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n, err := r.store.CountParticipantsBySession(ctx, pgUUID(sessionID))
	if err != nil {
		return 0, mapErr(err, quiz.ErrSessionNotFound)
	}
	return int(n), nil
}
