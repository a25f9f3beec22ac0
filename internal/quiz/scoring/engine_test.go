package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

func TestScore_SpeedBonus(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())

	cases := []struct {
		name    string
		elapsed float64
		want    int
	}{
		{"instant", 0, 100},
		{"two seconds", 2, 97},
		{"half time", 15, 75},
		{"at limit", 30, 50},
		{"past limit floors at half", 90, 50},
		{"negative clamps", -4, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := e.Score(Input{IsCorrect: true, ElapsedSeconds: tc.elapsed, TimeLimitSeconds: 30, Points: 100})
			assert.Equal(t, tc.want, out.PointsEarned)
			assert.True(t, out.IsCorrect)
		})
	}
}

func TestScore_BoundsAcrossRange(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())
	for elapsed := 0.0; elapsed <= 120; elapsed += 0.25 {
		out := e.Score(Input{IsCorrect: true, ElapsedSeconds: elapsed, TimeLimitSeconds: 20, Points: 200})
		assert.GreaterOrEqual(t, out.PointsEarned, 100)
		assert.LessOrEqual(t, out.PointsEarned, 200)
	}
}

func TestScore_SpeedBonusDisabled(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())
	off := false
	out := e.Score(Input{
		IsCorrect: true, ElapsedSeconds: 25, TimeLimitSeconds: 30, Points: 100,
		Settings: quiz.Settings{SpeedBonus: &off},
	})
	assert.Equal(t, 100, out.PointsEarned)
}

func TestScore_IncorrectResetsStreak(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())
	out := e.Score(Input{IsCorrect: false, ElapsedSeconds: 1, TimeLimitSeconds: 30, Points: 100, PrevStreak: 4})
	assert.Equal(t, quiz.Outcome{}, out)
}

func TestScore_StreakBadges(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())

	out := e.Score(Input{IsCorrect: true, ElapsedSeconds: 10, TimeLimitSeconds: 30, Points: 100, PrevStreak: 2})
	assert.Equal(t, 3, out.Streak)
	assert.Equal(t, []string{quiz.BadgeStreak3}, out.NewBadges)

	out = e.Score(Input{IsCorrect: true, ElapsedSeconds: 10, TimeLimitSeconds: 30, Points: 100, PrevStreak: 3, HeldBadges: []string{quiz.BadgeStreak3}})
	assert.Equal(t, 4, out.Streak)
	assert.Empty(t, out.NewBadges)

	out = e.Score(Input{IsCorrect: true, ElapsedSeconds: 10, TimeLimitSeconds: 30, Points: 100, PrevStreak: 4, HeldBadges: []string{quiz.BadgeStreak3}})
	assert.Equal(t, []string{quiz.BadgeStreak5}, out.NewBadges)

	// reaching three again after a reset does not grant it twice
	out = e.Score(Input{IsCorrect: true, ElapsedSeconds: 10, TimeLimitSeconds: 30, Points: 100, PrevStreak: 2, HeldBadges: []string{quiz.BadgeStreak3}})
	assert.Empty(t, out.NewBadges)
}

func TestScore_SpeedBadge(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())

	out := e.Score(Input{IsCorrect: true, ElapsedSeconds: 4.9, TimeLimitSeconds: 30, Points: 100})
	assert.Equal(t, []string{quiz.BadgeSpeedDemon}, out.NewBadges)

	out = e.Score(Input{IsCorrect: true, ElapsedSeconds: 5, TimeLimitSeconds: 30, Points: 100})
	assert.Empty(t, out.NewBadges)

	out = e.Score(Input{IsCorrect: false, ElapsedSeconds: 1, TimeLimitSeconds: 30, Points: 100})
	assert.Empty(t, out.NewBadges)

	out = e.Score(Input{IsCorrect: true, ElapsedSeconds: 1, TimeLimitSeconds: 30, Points: 100, PrevStreak: 2})
	assert.Equal(t, []string{quiz.BadgeStreak3, quiz.BadgeSpeedDemon}, out.NewBadges)
}

func TestMultiplier_ZeroLimit(t *testing.T) {
	e := NewEngine(DefaultScoringConfig())
	assert.Equal(t, 1.0, e.Multiplier(12, 0))
}
