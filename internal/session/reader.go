package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// SessionView is the client-facing session state. It leaves out the host id.
type SessionView struct {
	ID                       uuid.UUID     `json:"id"`
	Title                    string        `json:"title"`
	Description              string        `json:"description,omitempty"`
	AccessCode               string        `json:"accessCode"`
	State                    quiz.State    `json:"state"`
	CurrentQuestionIndex     int           `json:"currentQuestionIndex"`
	CurrentQuestionStartTime *time.Time    `json:"currentQuestionStartTime,omitempty"`
	ShowResults              bool          `json:"showResults"`
	Settings                 quiz.Settings `json:"settings"`
	Version                  int64         `json:"version"`
	QuestionCount            int           `json:"questionCount"`
}

// Snapshot is what a client re-reads after any notification.
type Snapshot struct {
	Session         SessionView          `json:"session"`
	CurrentQuestion *quiz.PublicQuestion `json:"currentQuestion,omitempty"`
	// CorrectOption is only revealed once results are shown.
	CorrectOption *int               `json:"correctOption,omitempty"`
	Participants  []quiz.Participant `json:"participants"`
	ServerTime    time.Time          `json:"serverTime"`
}

// Reader builds snapshots. Concurrent reads of one session share a single
// store round trip.
type Reader struct {
	store   Store
	catalog *question.Service
	group   singleflight.Group
	now     func() time.Time
	logger  zerolog.Logger
}

func NewReader(store Store, catalog *question.Service, logger zerolog.Logger) *Reader {
	return &Reader{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.With().Str("component", "session_reader").Logger(),
	}
}

// Snapshot returns the current state of a session.
func (r *Reader) Snapshot(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	v, err, _ := r.group.Do(sessionID.String(), func() (interface{}, error) {
		return r.load(ctx, sessionID)
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap := v.(Snapshot)
	// Callers sharing a result must not share the participant slice.
	snap.Participants = append([]quiz.Participant(nil), snap.Participants...)
	return snap, nil
}

func (r *Reader) load(ctx context.Context, sessionID uuid.UUID) (Snapshot, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	questions, err := r.catalog.List(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	participants, err := r.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if participants == nil {
		participants = []quiz.Participant{}
	}

	snap := Snapshot{
		Session:      viewOf(sess, len(questions)),
		Participants: participants,
		ServerTime:   r.now().UTC(),
	}
	if i := sess.CurrentQuestionIndex; i >= 0 && i < len(questions) && sess.IsActive {
		pub := questions[i].Public()
		snap.CurrentQuestion = &pub
		if sess.ShowResults {
			correct := questions[i].CorrectOption
			snap.CorrectOption = &correct
		}
	}
	return snap, nil
}

// Stats returns session counters.
func (r *Reader) Stats(ctx context.Context, sessionID uuid.UUID) (quiz.Stats, error) {
	sess, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return quiz.Stats{}, err
	}
	questions, err := r.store.CountQuestions(ctx, sessionID)
	if err != nil {
		return quiz.Stats{}, err
	}
	participants, err := r.store.CountParticipants(ctx, sessionID)
	if err != nil {
		return quiz.Stats{}, err
	}
	answers, err := r.store.CountAnswers(ctx, sessionID)
	if err != nil {
		return quiz.Stats{}, err
	}
	return quiz.Stats{
		SessionID:        sessionID,
		State:            sess.State(),
		QuestionCount:    questions,
		ParticipantCount: participants,
		AnswerCount:      answers,
	}, nil
}

func viewOf(s quiz.Session, questionCount int) SessionView {
	return SessionView{
		ID:                       s.ID,
		Title:                    s.Title,
		Description:              s.Description,
		AccessCode:               s.AccessCode,
		State:                    s.State(),
		CurrentQuestionIndex:     s.CurrentQuestionIndex,
		CurrentQuestionStartTime: s.CurrentQuestionStartTime,
		ShowResults:              s.ShowResults,
		Settings:                 s.Settings,
		Version:                  s.Version,
		QuestionCount:            questionCount,
	}
}
