package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/metrics"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// Host actions, used for logging and metrics labels.
const (
	ActionCreate         = "create"
	ActionMakeLive       = "make_live"
	ActionStartQuestion  = "start_question"
	ActionNextQuestion   = "next_question"
	ActionShowResults    = "show_results"
	ActionFinishQuiz     = "finish_quiz"
	ActionAddQuestion    = "add_question"
	ActionRegenerateCode = "regenerate_code"
)

const accessCodeAttempts = 8

// Config holds runtime limits for host actions.
type Config struct {
	WriteTimeout time.Duration
	LockWait     time.Duration
}

func DefaultConfig() Config {
	return Config{WriteTimeout: 5 * time.Second, LockWait: 3 * time.Second}
}

// Actor is the caller of a host action. Host privilege is asserted by the
// caller and checked against the session's host id only.
type Actor struct {
	ParticipantID uuid.UUID
	Role          quiz.Role
}

// HostActor returns the actor for a session host.
func HostActor(hostID uuid.UUID) Actor {
	return Actor{ParticipantID: hostID, Role: quiz.RoleHost}
}

// CreateRequest describes a new session. A nil HostID gets a fresh id, which
// the caller must keep to drive the session.
type CreateRequest struct {
	HostID      uuid.UUID
	Title       string
	Description string
	Settings    quiz.Settings
}

// Service is the session state machine. Every transition is one
// compare-and-set write followed by one published update.
type Service struct {
	store      Store
	publisher  fanout.Publisher
	locker     Locker
	catalog    *question.Service
	prefetcher *question.Prefetcher
	roster     roster
	cfg        Config
	now        func() time.Time
	newCode    func() (string, error)
	logger     zerolog.Logger
}

// NewService wires the state machine. prefetcher and roster may be nil.
func NewService(store Store, publisher fanout.Publisher, locker Locker, catalog *question.Service, prefetcher *question.Prefetcher, roster roster, cfg Config, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = def.LockWait
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Service{
		store:      store,
		publisher:  publisher,
		locker:     locker,
		catalog:    catalog,
		prefetcher: prefetcher,
		roster:     roster,
		cfg:        cfg,
		now:        time.Now,
		newCode:    generateAccessCode,
		logger:     logger.With().Str("component", "session_service").Logger(),
	}
}

// CreateSession stores a Draft session with a fresh access code.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (quiz.Session, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return quiz.Session{}, quiz.Validation(quiz.CodeInvalidRequest, "title is required")
	}
	if req.Settings.TimeLimit < 0 || req.Settings.PointsPerQuestion < 0 {
		return quiz.Session{}, quiz.Validation(quiz.CodeInvalidRequest, "settings must not be negative")
	}
	hostID := req.HostID
	if hostID == uuid.Nil {
		hostID = uuid.New()
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	for attempt := 0; attempt < accessCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return quiz.Session{}, fmt.Errorf("generate access code: %w", err)
		}
		sess, err := s.store.CreateSession(wctx, quiz.Session{
			ID:                   uuid.New(),
			Title:                title,
			Description:          strings.TrimSpace(req.Description),
			HostID:               hostID,
			AccessCode:           code,
			CurrentQuestionIndex: quiz.NoQuestion,
			Settings:             req.Settings.WithDefaults(),
		})
		if errors.Is(err, quiz.ErrAccessCodeTaken) {
			continue
		}
		if err != nil {
			metrics.HostActionsTotal.WithLabelValues(ActionCreate, "error").Inc()
			return quiz.Session{}, err
		}
		metrics.HostActionsTotal.WithLabelValues(ActionCreate, "ok").Inc()
		s.logger.Info().
			Str("session_id", sess.ID.String()).
			Str("access_code", sess.AccessCode).
			Msg("session created")
		return sess, nil
	}
	metrics.HostActionsTotal.WithLabelValues(ActionCreate, "error").Inc()
	return quiz.Session{}, quiz.ErrAccessCodeTaken
}

// Get returns the session row.
func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (quiz.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// RegenerateAccessCode replaces the session's access code.
func (s *Service) RegenerateAccessCode(ctx context.Context, sessionID uuid.UUID, actor Actor) (quiz.Session, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		return quiz.Session{}, err
	}
	defer unlock()

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	sess, err := s.store.GetSession(wctx, sessionID)
	if err != nil {
		return quiz.Session{}, err
	}
	if err := authorize(sess, actor); err != nil {
		return quiz.Session{}, err
	}
	for attempt := 0; attempt < accessCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return quiz.Session{}, fmt.Errorf("generate access code: %w", err)
		}
		if code == sess.AccessCode {
			continue
		}
		updated, err := s.store.UpdateAccessCode(wctx, sessionID, code)
		if errors.Is(err, quiz.ErrAccessCodeTaken) {
			continue
		}
		if err != nil {
			return quiz.Session{}, err
		}
		metrics.HostActionsTotal.WithLabelValues(ActionRegenerateCode, "ok").Inc()
		return updated, nil
	}
	return quiz.Session{}, quiz.ErrAccessCodeTaken
}

// MakeLive opens a Draft session. At least one question is required.
func (s *Service) MakeLive(ctx context.Context, sessionID uuid.UUID, actor Actor) (quiz.Session, error) {
	sess, err := s.transition(ctx, ActionMakeLive, sessionID, actor, func(ctx context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error) {
		if sess.State() != quiz.StateDraft {
			return quiz.StateChange{}, nil, quiz.InvalidState(sess.State(), "go live")
		}
		count, err := s.store.CountQuestions(ctx, sess.ID)
		if err != nil {
			return quiz.StateChange{}, nil, err
		}
		if count == 0 {
			return quiz.StateChange{}, nil, quiz.Validation(quiz.CodeInvalidState, "add at least one question before going live")
		}
		change := quiz.ChangeFrom(sess)
		change.IsActive = true
		change.CurrentQuestionIndex = quiz.NoQuestion
		return change, &fanout.Update{Kind: fanout.KindSessionLive}, nil
	})
	if err == nil && s.prefetcher != nil {
		s.prefetcher.Enqueue(sessionID)
	}
	return sess, err
}

// StartQuiz opens the first question of a Live session.
func (s *Service) StartQuiz(ctx context.Context, sessionID uuid.UUID, actor Actor) (quiz.Session, error) {
	return s.transition(ctx, ActionStartQuestion, sessionID, actor, func(ctx context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error) {
		if sess.State() != quiz.StateLive {
			return quiz.StateChange{}, nil, quiz.InvalidState(sess.State(), "start the quiz")
		}
		return s.startChange(ctx, sess, 0)
	})
}

// StartQuestion opens question i. Indexes only move forward.
func (s *Service) StartQuestion(ctx context.Context, sessionID uuid.UUID, actor Actor, i int) (quiz.Session, error) {
	return s.transition(ctx, ActionStartQuestion, sessionID, actor, func(ctx context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error) {
		return s.startChange(ctx, sess, i)
	})
}

// NextQuestion opens the question after the current one.
func (s *Service) NextQuestion(ctx context.Context, sessionID uuid.UUID, actor Actor) (quiz.Session, error) {
	return s.transition(ctx, ActionNextQuestion, sessionID, actor, func(ctx context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error) {
		st := sess.State()
		if st != quiz.StateLive && st != quiz.StateResultsShown {
			return quiz.StateChange{}, nil, quiz.InvalidState(st, "move to the next question")
		}
		count, err := s.store.CountQuestions(ctx, sess.ID)
		if err != nil {
			return quiz.StateChange{}, nil, err
		}
		if sess.CurrentQuestionIndex+1 >= count {
			return quiz.StateChange{}, nil, quiz.ErrNoMoreQuestions
		}
		return s.startChange(ctx, sess, sess.CurrentQuestionIndex+1)
	})
}

func (s *Service) startChange(ctx context.Context, sess quiz.Session, i int) (quiz.StateChange, *fanout.Update, error) {
	st := sess.State()
	if st != quiz.StateLive && st != quiz.StateResultsShown {
		return quiz.StateChange{}, nil, quiz.InvalidState(st, "start a question")
	}
	count, err := s.store.CountQuestions(ctx, sess.ID)
	if err != nil {
		return quiz.StateChange{}, nil, err
	}
	if i < 0 || i >= count {
		return quiz.StateChange{}, nil, quiz.Validation(quiz.CodeInvalidRequest, "question index %d out of range [0, %d)", i, count)
	}
	if i <= sess.CurrentQuestionIndex {
		return quiz.StateChange{}, nil, quiz.Validation(quiz.CodeInvalidState, "question %d has already been started", i)
	}

	startedAt := s.now().UTC()
	change := quiz.ChangeFrom(sess)
	change.CurrentQuestionIndex = i
	change.CurrentQuestionStartTime = &startedAt
	change.ShowResults = false
	u := fanout.Update{Kind: fanout.KindQuestionStarted}.WithQuestion(i)
	return change, &u, nil
}

// ShowResults closes the current question. Calling it again is a no-op.
func (s *Service) ShowResults(ctx context.Context, sessionID uuid.UUID, actor Actor) (quiz.Session, error) {
	return s.transition(ctx, ActionShowResults, sessionID, actor, func(_ context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error) {
		switch sess.State() {
		case quiz.StateResultsShown:
			return quiz.StateChange{}, nil, nil
		case quiz.StateQuestionActive:
		default:
			return quiz.StateChange{}, nil, quiz.InvalidState(sess.State(), "show results")
		}
		change := quiz.ChangeFrom(sess)
		change.ShowResults = true
		u := fanout.Update{Kind: fanout.KindResultsShown}.WithQuestion(sess.CurrentQuestionIndex)
		return change, &u, nil
	})
}

// FinishQuiz ends a session whose results are showing.
func (s *Service) FinishQuiz(ctx context.Context, sessionID uuid.UUID, actor Actor) (quiz.Session, error) {
	return s.transition(ctx, ActionFinishQuiz, sessionID, actor, func(_ context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error) {
		if sess.State() != quiz.StateResultsShown {
			return quiz.StateChange{}, nil, quiz.InvalidState(sess.State(), "finish the quiz")
		}
		change := quiz.ChangeFrom(sess)
		change.IsFinished = true
		change.ShowResults = true
		return change, &fanout.Update{Kind: fanout.KindQuizFinished}, nil
	})
}

// AddQuestion appends a question to a session that is not yet live.
func (s *Service) AddQuestion(ctx context.Context, sessionID uuid.UUID, actor Actor, draft question.Draft) (quiz.Question, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		metrics.HostActionsTotal.WithLabelValues(ActionAddQuestion, "busy").Inc()
		return quiz.Question{}, err
	}
	defer unlock()

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	q, err := s.addQuestion(wctx, sessionID, actor, draft)
	if err != nil {
		metrics.HostActionsTotal.WithLabelValues(ActionAddQuestion, "error").Inc()
		return quiz.Question{}, err
	}
	metrics.HostActionsTotal.WithLabelValues(ActionAddQuestion, "ok").Inc()

	if s.catalog != nil {
		s.catalog.Invalidate(ctx, sessionID)
	}
	s.publish(ctx, fanout.Update{Kind: fanout.KindQuestionAdded, SessionID: sessionID}.WithQuestion(q.OrderIndex))
	return q, nil
}

func (s *Service) addQuestion(ctx context.Context, sessionID uuid.UUID, actor Actor, draft question.Draft) (quiz.Question, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return quiz.Question{}, err
	}
	if err := authorize(sess, actor); err != nil {
		return quiz.Question{}, err
	}
	if sess.IsActive {
		return quiz.Question{}, quiz.ErrSessionActive
	}
	q, err := question.Build(sessionID, draft, sess.Settings)
	if err != nil {
		return quiz.Question{}, err
	}
	return s.store.AppendQuestion(ctx, q)
}

type changeFunc func(ctx context.Context, sess quiz.Session) (quiz.StateChange, *fanout.Update, error)

// transition runs one host action under the session lock. A nil update from
// fn means nothing changed and nothing is written or published.
func (s *Service) transition(ctx context.Context, action string, sessionID uuid.UUID, actor Actor, fn changeFunc) (quiz.Session, error) {
	unlock, err := s.lock(ctx, sessionID)
	if err != nil {
		metrics.HostActionsTotal.WithLabelValues(action, "busy").Inc()
		return quiz.Session{}, err
	}
	defer unlock()

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	sess, err := s.store.GetSession(wctx, sessionID)
	if err != nil {
		metrics.HostActionsTotal.WithLabelValues(action, "error").Inc()
		return quiz.Session{}, err
	}
	if err := authorize(sess, actor); err != nil {
		metrics.HostActionsTotal.WithLabelValues(action, "rejected").Inc()
		return quiz.Session{}, err
	}

	change, update, err := fn(wctx, sess)
	if err != nil {
		metrics.HostActionsTotal.WithLabelValues(action, "rejected").Inc()
		return quiz.Session{}, err
	}
	if update == nil {
		metrics.HostActionsTotal.WithLabelValues(action, "noop").Inc()
		return sess, nil
	}

	updated, err := s.store.UpdateSessionState(wctx, sessionID, sess.Version, change)
	if err != nil {
		metrics.HostActionsTotal.WithLabelValues(action, "error").Inc()
		s.logger.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Str("action", action).
			Msg("state write failed")
		return quiz.Session{}, err
	}
	metrics.HostActionsTotal.WithLabelValues(action, "ok").Inc()

	update.SessionID = sessionID
	s.publish(ctx, *update)

	s.logger.Info().
		Str("session_id", sessionID.String()).
		Str("action", action).
		Str("state", string(updated.State())).
		Int("question_index", updated.CurrentQuestionIndex).
		Msg("session transition")
	return updated, nil
}

func (s *Service) lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()
	return s.locker.Lock(lctx, sessionID)
}

// publish announces a committed change. Failures are logged: the write has
// already happened and clients converge on their next re-read.
func (s *Service) publish(ctx context.Context, u fanout.Update) {
	if s.publisher == nil {
		return
	}
	if u.At.IsZero() {
		u.At = s.now().UTC()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.publisher.Publish(pctx, u); err != nil {
		s.logger.Warn().Err(err).
			Str("session_id", u.SessionID.String()).
			Str("kind", string(u.Kind)).
			Msg("publish update failed")
	}
}

func authorize(sess quiz.Session, actor Actor) error {
	if actor.Role != quiz.RoleHost || actor.ParticipantID != sess.HostID {
		return quiz.Validation(quiz.CodeNotHost, "only the session host can do that")
	}
	return nil
}

// generateAccessCode returns a 6-digit code in 100000-999999.
func generateAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}
