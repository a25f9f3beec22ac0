package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type answerStore interface {
	CountAnswersBySession(ctx context.Context, sessionID pgtype.UUID) (int64, error)
}

// AnswerRepository records scored answers.
type AnswerRepository struct {
	store answerStore
	tx    Transactor
}

// NewAnswerRepository constructs an answer repository.
func NewAnswerRepository(store answerStore, tx Transactor) *AnswerRepository {
	return &AnswerRepository{store: store, tx: tx}
}

// RecordAnswer runs in one transaction. The session row is share-locked and
// must still have draft.QuestionIndex open, so a concurrent host transition
// either commits first (the answer is stale) or waits for the answer. The
// participant row is then locked, score computes the outcome from the stored
// streak, the answer row is inserted (a duplicate ends the transaction with
// ErrAlreadyAnswered), and the score is incremented in place.
func (r *AnswerRepository) RecordAnswer(ctx context.Context, draft quiz.AnswerDraft, score quiz.ScoreFunc) (quiz.Answer, quiz.Participant, error) {
	var (
		answer  quiz.Answer
		updated quiz.Participant
	)
	err := r.tx.InTx(ctx, func(tx TxQueries) error {
		row, err := tx.GetSessionForShare(ctx, pgUUID(draft.SessionID))
		if err != nil {
			return mapErr(err, quiz.ErrSessionNotFound)
		}
		sess, err := toSession(row)
		if err != nil {
			return err
		}
		if err := sess.RequireOpenQuestion(draft.QuestionIndex); err != nil {
			return err
		}

		prev, err := tx.GetParticipantForUpdate(ctx, sqlcgen.GetParticipantForUpdateParams{
			ID:        pgUUID(draft.ParticipantID),
			SessionID: pgUUID(draft.SessionID),
		})
		if err != nil {
			return mapErr(err, quiz.ErrParticipantNotFound)
		}

		out := score(toParticipant(prev))

		inserted, err := tx.InsertAnswer(ctx, sqlcgen.InsertAnswerParams{
			ID:             pgUUID(uuid.New()),
			SessionID:      pgUUID(draft.SessionID),
			ParticipantID:  pgUUID(draft.ParticipantID),
			QuestionID:     pgUUID(draft.QuestionID),
			SelectedOption: int32(draft.SelectedOption),
			IsCorrect:      out.IsCorrect,
			ElapsedSeconds: draft.ElapsedSeconds,
			PointsEarned:   int32(out.PointsEarned),
			SubmittedAt:    pgTime(draft.SubmittedAt),
		})
		if err != nil {
			// ON CONFLICT DO NOTHING returns no row for a duplicate.
			return mapErr(err, quiz.ErrAlreadyAnswered)
		}
		answer = toAnswer(inserted)

		badges := out.NewBadges
		if badges == nil {
			badges = []string{}
		}
		p, err := tx.ApplyAnswerOutcome(ctx, sqlcgen.ApplyAnswerOutcomeParams{
			Points:    int32(out.PointsEarned),
			Streak:    int32(out.Streak),
			NewBadges: badges,
			ID:        prev.ID,
			SessionID: prev.SessionID,
		})
		if err != nil {
			return mapErr(err, quiz.ErrParticipantNotFound)
		}
		updated = toParticipant(p)
		return nil
	})
	if err != nil {
		return quiz.Answer{}, quiz.Participant{}, err
	}
	return answer, updated, nil
}

func (r *AnswerRepository) CountAnswers(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n, err := r.store.CountAnswersBySession(ctx, pgUUID(sessionID))
	if err != nil {
		return 0, mapErr(err, quiz.ErrSessionNotFound)
	}
	return int(n), nil
}
