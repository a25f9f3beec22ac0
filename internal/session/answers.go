package session

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/metrics"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
	"github.com/gokatarajesh/quiz-live/internal/quiz/scoring"
)

type scoreBoard interface {
	Record(ctx context.Context, p quiz.Participant) error
}

// Submission is one participant's answer to one question.
type Submission struct {
	SessionID      uuid.UUID
	ParticipantID  uuid.UUID
	QuestionID     uuid.UUID
	SelectedOption int
	ElapsedSeconds float64
}

// Receipt is returned to the submitter only.
type Receipt struct {
	QuestionID   uuid.UUID
	IsCorrect    bool
	PointsEarned int
	NewScore     int
	Streak       int
	NewBadges    []string
}

// AnswerService validates, scores and records answers. Each
// (participant, question) pair is scored at most once.
type AnswerService struct {
	store        Store
	catalog      *question.Service
	engine       *scoring.Engine
	board        scoreBoard
	publisher    fanout.Publisher
	writeTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// NewAnswerService wires answer ingestion. board may be nil.
func NewAnswerService(store Store, catalog *question.Service, engine *scoring.Engine, board scoreBoard, publisher fanout.Publisher, writeTimeout time.Duration, logger zerolog.Logger) *AnswerService {
	if writeTimeout <= 0 {
		writeTimeout = DefaultConfig().WriteTimeout
	}
	if engine == nil {
		engine = scoring.NewEngine(scoring.DefaultScoringConfig())
	}
	return &AnswerService{
		store:        store,
		catalog:      catalog,
		engine:       engine,
		board:        board,
		publisher:    publisher,
		writeTimeout: writeTimeout,
		now:          time.Now,
		logger:       logger.With().Str("component", "answer_ingestion").Logger(),
	}
}

// Submit validates sub against current session state and records it.
func (a *AnswerService) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	receipt, p, err := a.submit(wctx, sub)
	if err != nil {
		metrics.AnswersTotal.WithLabelValues(resultLabel(err)).Inc()
		return Receipt{}, err
	}
	if receipt.IsCorrect {
		metrics.AnswersTotal.WithLabelValues("correct").Inc()
	} else {
		metrics.AnswersTotal.WithLabelValues("incorrect").Inc()
	}

	if a.board != nil {
		if err := a.board.Record(ctx, p); err != nil {
			a.logger.Warn().Err(err).
				Str("session_id", sub.SessionID.String()).
				Str("participant_id", sub.ParticipantID.String()).
				Msg("leaderboard update failed")
		}
	}
	a.publish(ctx, sub)
	return receipt, nil
}

func (a *AnswerService) submit(ctx context.Context, sub Submission) (Receipt, quiz.Participant, error) {
	q, err := a.catalog.Get(ctx, sub.SessionID, sub.QuestionID)
	if err != nil {
		return Receipt{}, quiz.Participant{}, err
	}
	sess, err := a.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		return Receipt{}, quiz.Participant{}, err
	}
	if err := sess.RequireOpenQuestion(q.OrderIndex); err != nil {
		return Receipt{}, quiz.Participant{}, err
	}
	if sub.SelectedOption < 0 || sub.SelectedOption >= len(q.Options) {
		return Receipt{}, quiz.Participant{}, quiz.Validation(quiz.CodeInvalidRequest, "answer index %d out of range", sub.SelectedOption)
	}
	if _, err := a.store.GetParticipant(ctx, sub.SessionID, sub.ParticipantID); err != nil {
		if errors.Is(err, quiz.ErrParticipantNotFound) {
			return Receipt{}, quiz.Participant{}, quiz.Validation(quiz.CodeNotMember, "participant is not part of this session")
		}
		return Receipt{}, quiz.Participant{}, err
	}

	elapsed := sub.ElapsedSeconds
	if elapsed < 0 || math.IsNaN(elapsed) || math.IsInf(elapsed, 0) {
		elapsed = 0
	}
	isCorrect := sub.SelectedOption == q.CorrectOption

	var outcome quiz.Outcome
	answer, p, err := a.store.RecordAnswer(ctx, quiz.AnswerDraft{
		SessionID:      sub.SessionID,
		ParticipantID:  sub.ParticipantID,
		QuestionID:     q.ID,
		QuestionIndex:  q.OrderIndex,
		SelectedOption: sub.SelectedOption,
		ElapsedSeconds: elapsed,
		SubmittedAt:    a.now().UTC(),
	}, func(prev quiz.Participant) quiz.Outcome {
		outcome = a.engine.Score(scoring.Input{
			IsCorrect:        isCorrect,
			ElapsedSeconds:   elapsed,
			TimeLimitSeconds: q.TimeLimitSeconds,
			Points:           q.Points,
			Settings:         sess.Settings,
			PrevStreak:       prev.Streak,
			HeldBadges:       prev.Badges,
		})
		return outcome
	})
	if err != nil {
		return Receipt{}, quiz.Participant{}, err
	}

	return Receipt{
		QuestionID:   q.ID,
		IsCorrect:    answer.IsCorrect,
		PointsEarned: answer.PointsEarned,
		NewScore:     p.Score,
		Streak:       p.Streak,
		NewBadges:    outcome.NewBadges,
	}, p, nil
}

func (a *AnswerService) publish(ctx context.Context, sub Submission) {
	if a.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
	defer cancel()
	err := a.publisher.Publish(pctx, fanout.Update{
		Kind:          fanout.KindParticipantsChanged,
		SessionID:     sub.SessionID,
		At:            a.now().UTC(),
		ParticipantID: sub.ParticipantID.String(),
		Reason:        fanout.ReasonAnswered,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("session_id", sub.SessionID.String()).Msg("publish answer update failed")
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, quiz.ErrAlreadyAnswered):
		return "duplicate"
	case quiz.CodeOf(err) == quiz.CodeStaleSubmission:
		return "stale"
	case quiz.KindOf(err) == quiz.KindTransient:
		return "error"
	default:
		return "rejected"
	}
}
