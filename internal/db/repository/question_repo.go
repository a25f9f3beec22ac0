package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type questionStore interface {
	ListQuestionsBySession(ctx context.Context, sessionID pgtype.UUID) ([]sqlcgen.Question, error)
	GetQuestion(ctx context.Context, id pgtype.UUID) (sqlcgen.Question, error)
	CountQuestionsBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error)
}

// QuestionRepository provides question persistence helpers.
type QuestionRepository struct {
	store questionStore
	tx    Transactor
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(store questionStore, tx Transactor) *QuestionRepository {
	return &QuestionRepository{store: store, tx: tx}
}

// AppendQuestion locks the session row, checks it is still a draft, and
// inserts q at the next order index.
func (r *QuestionRepository) AppendQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error) {
	id := q.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	var created quiz.Question
	err := r.tx.InTx(ctx, func(tx TxQueries) error {
		sess, err := tx.GetSessionForUpdate(ctx, pgUUID(q.SessionID))
		if err != nil {
			return mapErr(err, quiz.ErrSessionNotFound)
		}
		if sess.IsActive {
			return quiz.ErrSessionActive
		}
		row, err := tx.InsertQuestion(ctx, sqlcgen.InsertQuestionParams{
			ID:               pgUUID(id),
			SessionID:        pgUUID(q.SessionID),
			Prompt:           q.Prompt,
			Options:          q.Options,
			CorrectOption:    int32(q.CorrectOption),
			TimeLimitSeconds: int32(q.TimeLimitSeconds),
			Points:           int32(q.Points),
			MediaUrl:         q.MediaURL,
		})
		if err != nil {
			return mapErr(err, quiz.ErrSessionNotFound)
		}
		created = toQuestion(row)
		return nil
	})
	if err != nil {
		return quiz.Question{}, err
	}
	return created, nil
}

func (r *QuestionRepository) ListQuestions(ctx context.Context, sessionID uuid.UUID) ([]quiz.Question, error) {
	rows, err := r.store.ListQuestionsBySession(ctx, pgUUID(sessionID))
	if err != nil {
		return nil, mapErr(err, quiz.ErrSessionNotFound)
	}
	out := make([]quiz.Question, len(rows))
	for i, row := range rows {
		out[i] = toQuestion(row)
	}
	return out, nil
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, id uuid.UUID) (quiz.Question, error) {
	row, err := r.store.GetQuestion(ctx, pgUUID(id))
	if err != nil {
		return quiz.Question{}, mapErr(err, quiz.ErrQuestionNotFound)
	}
	return toQuestion(row), nil
}

func (r *QuestionRepository) CountQuestions(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n, err := r.store.CountQuestionsBySession(ctx, pgUUID(sessionID))
	if err != nil {
		return 0, mapErr(err, quiz.ErrSessionNotFound)
	}
	return int(n), nil
}
