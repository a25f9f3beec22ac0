package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const participantColumns = `id, session_id, display_name, identity, score, streak, badges, last_seen, joined_at`

func scanParticipant(row interface{ Scan(...any) error }) (Participant, error) {
	var i Participant
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.DisplayName,
		&i.Identity,
		&i.Score,
		&i.Streak,
		&i.Badges,
		&i.LastSeen,
		&i.JoinedAt,
	)
	return i, err
}

const createParticipant = `-- name: CreateParticipant :one
INSERT INTO participants (id, session_id, display_name, identity)
VALUES ($1, $2, $3, $4)
RETURNING ` + participantColumns

type CreateParticipantParams struct {
	ID          pgtype.UUID
	SessionID   pgtype.UUID
	DisplayName string
	Identity    pgtype.Text
}

func (q *Queries) CreateParticipant(ctx context.Context, arg CreateParticipantParams) (Participant, error) {
	row := q.db.QueryRow(ctx, createParticipant,
		arg.ID,
		arg.SessionID,
		arg.DisplayName,
		arg.Identity,
	)
	return scanParticipant(row)
}

const getParticipant = `-- name: GetParticipant :one
SELECT ` + participantColumns + ` FROM participants WHERE id = $1 AND session_id = $2`

type GetParticipantParams struct {
	ID        pgtype.UUID
	SessionID pgtype.UUID
}

func (q *Queries) GetParticipant(ctx context.Context, arg GetParticipantParams) (Participant, error) {
	return scanParticipant(q.db.QueryRow(ctx, getParticipant, arg.ID, arg.SessionID))
}

const getParticipantForUpdate = `-- name: GetParticipantForUpdate :one
SELECT ` + participantColumns + ` FROM participants WHERE id = $1 AND session_id = $2 FOR UPDATE`

type GetParticipantForUpdateParams struct {
	ID        pgtype.UUID
	SessionID pgtype.UUID
}

func (q *Queries) GetParticipantForUpdate(ctx context.Context, arg GetParticipantForUpdateParams) (Participant, error) {
	return scanParticipant(q.db.QueryRow(ctx, getParticipantForUpdate, arg.ID, arg.SessionID))
}

const getParticipantByIdentity = `-- name: GetParticipantByIdentity :one
SELECT ` + participantColumns + ` FROM participants WHERE session_id = $1 AND identity = $2`

type GetParticipantByIdentityParams struct {
	SessionID pgtype.UUID
	Identity  pgtype.Text
}

func (q *Queries) GetParticipantByIdentity(ctx context.Context, arg GetParticipantByIdentityParams) (Participant, error) {
	return scanParticipant(q.db.QueryRow(ctx, getParticipantByIdentity, arg.SessionID, arg.Identity))
}

const touchParticipant = `-- name: TouchParticipant :execrows
UPDATE participants SET last_seen = $3 WHERE id = $1 AND session_id = $2`

type TouchParticipantParams struct {
	ID        pgtype.UUID
	SessionID pgtype.UUID
	LastSeen  pgtype.Timestamptz
}

func (q *Queries) TouchParticipant(ctx context.Context, arg TouchParticipantParams) (int64, error) {
	result, err := q.db.Exec(ctx, touchParticipant, arg.ID, arg.SessionID, arg.LastSeen)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listParticipantsBySession = `-- name: ListParticipantsBySession :many
SELECT ` + participantColumns + ` FROM participants WHERE session_id = $1 ORDER BY score DESC, joined_at`

func (q *Queries) ListParticipantsBySession(ctx context.Context, sessionID pgtype.UUID) ([]Participant, error) {
	rows, err := q.db.Query(ctx, listParticipantsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Participant
	for rows.Next() {
		i, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countParticipantsBySession = `-- name: CountParticipantsBySession :one
SELECT COUNT(*) FROM participants WHERE session_id = $1`

func (q *Queries) CountParticipantsBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countParticipantsBySession, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const applyAnswerOutcome = `-- name: ApplyAnswerOutcome :one
UPDATE participants
SET score = score + $1::int,
    streak = $2::int,
    badges = badges || $3::text[]
WHERE id = $4 AND session_id = $5
RETURNING ` + participantColumns

type ApplyAnswerOutcomeParams struct {
	Points    int32
	Streak    int32
	NewBadges []string
	ID        pgtype.UUID
	SessionID pgtype.UUID
}

func (q *Queries) ApplyAnswerOutcome(ctx context.Context, arg ApplyAnswerOutcomeParams) (Participant, error) {
	row := q.db.QueryRow(ctx, applyAnswerOutcome,
		arg.Points,
		arg.Streak,
		arg.NewBadges,
		arg.ID,
		arg.SessionID,
	)
	return scanParticipant(row)
}
