package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const questionColumns = `id, session_id, order_index, prompt, options, correct_option, time_limit_seconds, points, media_url, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (Question, error) {
	var i Question
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.OrderIndex,
		&i.Prompt,
		&i.Options,
		&i.CorrectOption,
		&i.TimeLimitSeconds,
		&i.Points,
		&i.MediaUrl,
		&i.CreatedAt,
	)
	return i, err
}

const insertQuestion = `-- name: InsertQuestion :one
INSERT INTO questions (id, session_id, order_index, prompt, options, correct_option, time_limit_seconds, points, media_url)
VALUES (
    $1, $2,
    (SELECT COALESCE(MAX(q.order_index) + 1, 0) FROM questions q WHERE q.session_id = $2),
    $3, $4, $5, $6, $7, $8
)
RETURNING ` + questionColumns

type InsertQuestionParams struct {
	ID               pgtype.UUID
	SessionID        pgtype.UUID
	Prompt           string
	Options          []string
	CorrectOption    int32
	TimeLimitSeconds int32
	Points           int32
	MediaUrl         string
}

func (q *Queries) InsertQuestion(ctx context.Context, arg InsertQuestionParams) (Question, error) {
	row := q.db.QueryRow(ctx, insertQuestion,
		arg.ID,
		arg.SessionID,
		arg.Prompt,
		arg.Options,
		arg.CorrectOption,
		arg.TimeLimitSeconds,
		arg.Points,
		arg.MediaUrl,
	)
	return scanQuestion(row)
}

const listQuestionsBySession = `-- name: ListQuestionsBySession :many
SELECT ` + questionColumns + ` FROM questions WHERE session_id = $1 ORDER BY order_index`

func (q *Queries) ListQuestionsBySession(ctx context.Context, sessionID pgtype.UUID) ([]Question, error) {
	rows, err := q.db.Query(ctx, listQuestionsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Question
	for rows.Next() {
		i, err := scanQuestion(rows)
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

const getQuestion = `-- name: GetQuestion :one
SELECT ` + questionColumns + ` FROM questions WHERE id = $1`

func (q *Queries) GetQuestion(ctx context.Context, id pgtype.UUID) (Question, error) {
	return scanQuestion(q.db.QueryRow(ctx, getQuestion, id))
}

const countQuestionsBySession = `-- name: CountQuestionsBySession :one
SELECT COUNT(*) FROM questions WHERE session_id = $1`

func (q *Queries) CountQuestionsBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countQuestionsBySession, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
