package quiz

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies how a connection participates in a session.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleDisplay     Role = "display"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleParticipant, RoleDisplay:
		return true
	default:
		return false
	}
}

// Badge ids granted by the scoring engine.
const (
	BadgeStreak3    = "streak_3"
	BadgeStreak5    = "streak_5"
	BadgeSpeedDemon = "speed_demon"
)

// Defaults applied when a question or session leaves a field unset.
const (
	DefaultTimeLimitSeconds = 30
	DefaultPoints           = 100
	NoQuestion              = -1
)

// Settings are per-session gameplay knobs, persisted as JSON.
type Settings struct {
	TimeLimit         int   `json:"timeLimit"`
	PointsPerQuestion int   `json:"pointsPerQuestion"`
	SpeedBonus        *bool `json:"speedBonus,omitempty"`
	StreakBonus       *bool `json:"streakBonus,omitempty"`
}

// SpeedBonusEnabled defaults to true when unset.
func (s Settings) SpeedBonusEnabled() bool {
	return s.SpeedBonus == nil || *s.SpeedBonus
}

// StreakBadgesEnabled defaults to true when unset.
func (s Settings) StreakBadgesEnabled() bool {
	return s.StreakBonus == nil || *s.StreakBonus
}

// WithDefaults fills zero values.
func (s Settings) WithDefaults() Settings {
	if s.TimeLimit <= 0 {
		s.TimeLimit = DefaultTimeLimitSeconds
	}
	if s.PointsPerQuestion <= 0 {
		s.PointsPerQuestion = DefaultPoints
	}
	return s
}

// State is the lifecycle state derived from a session's flags.
type State string

const (
	StateDraft          State = "draft"
	StateLive           State = "live"
	StateQuestionActive State = "question_active"
	StateResultsShown   State = "results_shown"
	StateFinished       State = "finished"
)

// Session is the authoritative record of one running quiz.
type Session struct {
	ID                       uuid.UUID  `json:"id"`
	Title                    string     `json:"title"`
	Description              string     `json:"description,omitempty"`
	HostID                   uuid.UUID  `json:"hostId"`
	AccessCode               string     `json:"accessCode"`
	IsActive                 bool       `json:"isActive"`
	IsFinished               bool       `json:"isFinished"`
	CurrentQuestionIndex     int        `json:"currentQuestionIndex"`
	CurrentQuestionStartTime *time.Time `json:"currentQuestionStartTime,omitempty"`
	ShowResults              bool       `json:"showResults"`
	Settings                 Settings   `json:"settings"`
	Version                  int64      `json:"version"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

// State derives the lifecycle state from the stored flags.
func (s Session) State() State {
	switch {
	case !s.IsActive:
		return StateDraft
	case s.IsFinished:
		return StateFinished
	case s.CurrentQuestionIndex < 0:
		return StateLive
	case s.ShowResults:
		return StateResultsShown
	default:
		return StateQuestionActive
	}
}

// AcceptsAnswersFor reports whether question index i is currently open.
func (s Session) AcceptsAnswersFor(i int) bool {
	return s.State() == StateQuestionActive && s.CurrentQuestionIndex == i
}

// RequireOpenQuestion returns a stale_submission error unless question i is open.
func (s Session) RequireOpenQuestion(i int) error {
	if !s.AcceptsAnswersFor(i) {
		return Validation(CodeStaleSubmission, "question %d is not accepting answers", i)
	}
	return nil
}

// StateChange is the set of mutable lifecycle fields written by one transition.
type StateChange struct {
	IsActive                 bool
	IsFinished               bool
	CurrentQuestionIndex     int
	CurrentQuestionStartTime *time.Time
	ShowResults              bool
}

// ChangeFrom captures the current lifecycle fields of s.
func ChangeFrom(s Session) StateChange {
	return StateChange{
		IsActive:                 s.IsActive,
		IsFinished:               s.IsFinished,
		CurrentQuestionIndex:     s.CurrentQuestionIndex,
		CurrentQuestionStartTime: s.CurrentQuestionStartTime,
		ShowResults:              s.ShowResults,
	}
}

// Question is one multiple-choice item in a session.
type Question struct {
	ID               uuid.UUID `json:"id"`
	SessionID        uuid.UUID `json:"sessionId"`
	OrderIndex       int       `json:"orderIndex"`
	Prompt           string    `json:"prompt"`
	Options          []string  `json:"options"`
	CorrectOption    int       `json:"correctOption"`
	TimeLimitSeconds int       `json:"timeLimitSeconds"`
	Points           int       `json:"points"`
	MediaURL         string    `json:"mediaUrl,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Public strips the correct answer for delivery to participants.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:               q.ID,
		OrderIndex:       q.OrderIndex,
		Prompt:           q.Prompt,
		Options:          q.Options,
		TimeLimitSeconds: q.TimeLimitSeconds,
		Points:           q.Points,
		MediaURL:         q.MediaURL,
	}
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID               uuid.UUID `json:"id"`
	OrderIndex       int       `json:"orderIndex"`
	Prompt           string    `json:"prompt"`
	Options          []string  `json:"options"`
	TimeLimitSeconds int       `json:"timeLimitSeconds"`
	Points           int       `json:"points"`
	MediaURL         string    `json:"mediaUrl,omitempty"`
}

// Participant is a joined player. Score only changes through answer ingestion.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	Identity    string    `json:"-"`
	Score       int       `json:"score"`
	Streak      int       `json:"streak"`
	Badges      []string  `json:"badges"`
	LastSeen    time.Time `json:"lastSeen"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Answer is an immutable scored submission.
type Answer struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"sessionId"`
	ParticipantID  uuid.UUID `json:"participantId"`
	QuestionID     uuid.UUID `json:"questionId"`
	SelectedOption int       `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	PointsEarned   int       `json:"pointsEarned"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Outcome is what scoring decided for one answer, applied atomically by the store.
type Outcome struct {
	IsCorrect    bool
	PointsEarned int
	Streak       int
	NewBadges    []string
}

// ScoreFunc computes the outcome of an answer from the participant row as
// stored when the answer is written.
type ScoreFunc func(prev Participant) Outcome

// AnswerDraft is the validated input the store persists together with an Outcome.
type AnswerDraft struct {
	SessionID      uuid.UUID
	ParticipantID  uuid.UUID
	QuestionID     uuid.UUID
	QuestionIndex  int
	SelectedOption int
	ElapsedSeconds float64
	SubmittedAt    time.Time
}

// Stats aggregates session counters for the stats endpoint.
type Stats struct {
	SessionID        uuid.UUID `json:"sessionId"`
	State            State     `json:"state"`
	QuestionCount    int       `json:"questionCount"`
	ParticipantCount int       `json:"participantCount"`
	AnswerCount      int       `json:"answerCount"`
}
