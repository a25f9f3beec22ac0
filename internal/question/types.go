package question

import (
	"strings"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// MinOptions is the fewest choices a question may offer.
const MinOptions = 2

// Draft is a question as submitted by the host, before it is placed in a session.
type Draft struct {
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	CorrectOption    int      `json:"correctOption"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty"`
	Points           int      `json:"points,omitempty"`
	MediaURL         string   `json:"mediaUrl,omitempty"`
}

// Build validates d and fills time limit and points from the session settings.
// The order index is assigned by the store on append.
func Build(sessionID uuid.UUID, d Draft, settings quiz.Settings) (quiz.Question, error) {
	prompt := strings.TrimSpace(d.Prompt)
	if prompt == "" {
		return quiz.Question{}, quiz.Validation(quiz.CodeInvalidRequest, "prompt is required")
	}
	options := make([]string, 0, len(d.Options))
	for _, o := range d.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return quiz.Question{}, quiz.Validation(quiz.CodeInvalidRequest, "options must not be empty")
		}
		options = append(options, o)
	}
	if len(options) < MinOptions {
		return quiz.Question{}, quiz.Validation(quiz.CodeInvalidRequest, "a question needs at least %d options", MinOptions)
	}
	if d.CorrectOption < 0 || d.CorrectOption >= len(options) {
		return quiz.Question{}, quiz.Validation(quiz.CodeInvalidRequest, "correctOption %d is out of range", d.CorrectOption)
	}
	if d.TimeLimitSeconds < 0 || d.Points < 0 {
		return quiz.Question{}, quiz.Validation(quiz.CodeInvalidRequest, "time limit and points must not be negative")
	}

	settings = settings.WithDefaults()
	q := quiz.Question{
		SessionID:        sessionID,
		Prompt:           prompt,
		Options:          options,
		CorrectOption:    d.CorrectOption,
		TimeLimitSeconds: d.TimeLimitSeconds,
		Points:           d.Points,
		MediaURL:         strings.TrimSpace(d.MediaURL),
	}
	if q.TimeLimitSeconds == 0 {
		q.TimeLimitSeconds = settings.TimeLimit
	}
	if q.Points == 0 {
		q.Points = settings.PointsPerQuestion
	}
	return q, nil
}
