package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const sessionColumns = `id, title, description, host_id, access_code, is_active, is_finished, current_question_index, current_question_start_time, show_results, settings, version, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.HostID,
		&i.AccessCode,
		&i.IsActive,
		&i.IsFinished,
		&i.CurrentQuestionIndex,
		&i.CurrentQuestionStartTime,
		&i.ShowResults,
		&i.Settings,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createSession = `-- name: CreateSession :one
INSERT INTO sessions (id, title, description, host_id, access_code, settings)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + sessionColumns

type CreateSessionParams struct {
	ID          pgtype.UUID
	Title       string
	Description string
	HostID      pgtype.UUID
	AccessCode  string
	Settings    []byte
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, createSession,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.HostID,
		arg.AccessCode,
		arg.Settings,
	)
	return scanSession(row)
}

const getSession = `-- name: GetSession :one
SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

func (q *Queries) GetSession(ctx context.Context, id pgtype.UUID) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, getSession, id))
}

const getSessionByAccessCode = `-- name: GetSessionByAccessCode :one
SELECT ` + sessionColumns + ` FROM sessions WHERE access_code = $1`

func (q *Queries) GetSessionByAccessCode(ctx context.Context, accessCode string) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, getSessionByAccessCode, accessCode))
}

const getSessionForUpdate = `-- name: GetSessionForUpdate :one
SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR UPDATE`

func (q *Queries) GetSessionForUpdate(ctx context.Context, id pgtype.UUID) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, getSessionForUpdate, id))
}

const getSessionForShare = `-- name: GetSessionForShare :one
SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1 FOR SHARE`

func (q *Queries) GetSessionForShare(ctx context.Context, id pgtype.UUID) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, getSessionForShare, id))
}

const updateSessionState = `-- name: UpdateSessionState :one
UPDATE sessions
SET is_active = $3,
    is_finished = $4,
    current_question_index = $5,
    current_question_start_time = $6,
    show_results = $7,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND version = $2
RETURNING ` + sessionColumns

type UpdateSessionStateParams struct {
	ID                       pgtype.UUID
	Version                  int64
	IsActive                 bool
	IsFinished               bool
	CurrentQuestionIndex     int32
	CurrentQuestionStartTime pgtype.Timestamptz
	ShowResults              bool
}

func (q *Queries) UpdateSessionState(ctx context.Context, arg UpdateSessionStateParams) (Session, error) {
	row := q.db.QueryRow(ctx, updateSessionState,
		arg.ID,
		arg.Version,
		arg.IsActive,
		arg.IsFinished,
		arg.CurrentQuestionIndex,
		arg.CurrentQuestionStartTime,
		arg.ShowResults,
	)
	return scanSession(row)
}

const updateSessionAccessCode = `-- name: UpdateSessionAccessCode :one
UPDATE sessions
SET access_code = $2, updated_at = now()
WHERE id = $1
RETURNING ` + sessionColumns

type UpdateSessionAccessCodeParams struct {
	ID         pgtype.UUID
	AccessCode string
}

func (q *Queries) UpdateSessionAccessCode(ctx context.Context, arg UpdateSessionAccessCodeParams) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, updateSessionAccessCode, arg.ID, arg.AccessCode))
}
