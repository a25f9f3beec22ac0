package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertAnswer = `-- name: InsertAnswer :one
INSERT INTO answers (id, session_id, participant_id, question_id, selected_option, is_correct, elapsed_seconds, points_earned, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (participant_id, question_id) DO NOTHING
RETURNING id, session_id, participant_id, question_id, selected_option, is_correct, elapsed_seconds, points_earned, submitted_at`

type InsertAnswerParams struct {
	ID             pgtype.UUID
	SessionID      pgtype.UUID
	ParticipantID  pgtype.UUID
	QuestionID     pgtype.UUID
	SelectedOption int32
	IsCorrect      bool
	ElapsedSeconds float64
	PointsEarned   int32
	SubmittedAt    pgtype.Timestamptz
}

func (q *Queries) InsertAnswer(ctx context.Context, arg InsertAnswerParams) (Answer, error) {
	row := q.db.QueryRow(ctx, insertAnswer,
		arg.ID,
		arg.SessionID,
		arg.ParticipantID,
		arg.QuestionID,
		arg.SelectedOption,
		arg.IsCorrect,
		arg.ElapsedSeconds,
		arg.PointsEarned,
		arg.SubmittedAt,
	)
	var i Answer
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.ParticipantID,
		&i.QuestionID,
		&i.SelectedOption,
		&i.IsCorrect,
		&i.ElapsedSeconds,
		&i.PointsEarned,
		&i.SubmittedAt,
	)
	return i, err
}

const countAnswersBySession = `-- name: CountAnswersBySession :one
SELECT COUNT(*) FROM answers WHERE session_id = $1`

func (q *Queries) CountAnswersBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countAnswersBySession, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
