package quiz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionState(t *testing.T) {
	cases := []struct {
		name    string
		session Session
		want    State
	}{
		{"draft", Session{CurrentQuestionIndex: NoQuestion}, StateDraft},
		{"live", Session{IsActive: true, CurrentQuestionIndex: NoQuestion}, StateLive},
		{"question", Session{IsActive: true, CurrentQuestionIndex: 0}, StateQuestionActive},
		{"results", Session{IsActive: true, CurrentQuestionIndex: 2, ShowResults: true}, StateResultsShown},
		{"finished", Session{IsActive: true, IsFinished: true, ShowResults: true, CurrentQuestionIndex: 2}, StateFinished},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.session.State())
		})
	}
}

func TestAcceptsAnswersFor(t *testing.T) {
	s := Session{IsActive: true, CurrentQuestionIndex: 1}
	assert.True(t, s.AcceptsAnswersFor(1))
	assert.False(t, s.AcceptsAnswersFor(0))

	s.ShowResults = true
	assert.False(t, s.AcceptsAnswersFor(1))
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.WithDefaults()
	assert.Equal(t, DefaultTimeLimitSeconds, s.TimeLimit)
	assert.Equal(t, DefaultPoints, s.PointsPerQuestion)
	assert.True(t, s.SpeedBonusEnabled())

	off := false
	s.SpeedBonus = &off
	assert.False(t, s.SpeedBonusEnabled())
}

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", ErrAlreadyAnswered)
	assert.True(t, errors.Is(wrapped, ErrAlreadyAnswered))
	assert.False(t, errors.Is(wrapped, ErrSessionNotFound))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, CodeAlreadyAnswered, CodeOf(wrapped))

	assert.Equal(t, KindTransient, KindOf(errors.New("boom")))
	assert.Equal(t, KindValidation, KindOf(InvalidState(StateDraft, "show results")))
	assert.Contains(t, InvalidState(StateDraft, "show results").Error(), "draft")
}
