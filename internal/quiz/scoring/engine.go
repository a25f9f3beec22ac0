package scoring

import (
	"math"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// ScoringConfig holds configurable scoring constants (defaults match requirements).
type ScoringConfig struct {
	SpeedWeight       float64 // default: 0.5, share of points that decays over the time limit
	MinMultiplier     float64 // default: 0.5
	SpeedBadgeSeconds float64 // default: 5
	StreakBadgeLevels map[int]string
}

// DefaultScoringConfig returns production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		SpeedWeight:       0.5,
		MinMultiplier:     0.5,
		SpeedBadgeSeconds: 5,
		StreakBadgeLevels: map[int]string{
			3: quiz.BadgeStreak3,
			5: quiz.BadgeStreak5,
		},
	}
}

// Engine computes server-side scores with configurable constants.
type Engine struct {
	config ScoringConfig
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config ScoringConfig) *Engine {
	return &Engine{config: config}
}

// Input is everything needed to score one answer.
type Input struct {
	IsCorrect        bool
	ElapsedSeconds   float64
	TimeLimitSeconds int
	Points           int
	Settings         quiz.Settings
	// Participant state as stored before this answer.
	PrevStreak int
	HeldBadges []string
}

// Multiplier returns the speed multiplier for an answer taken after elapsed seconds.
// Formula: max(min, 1 - (elapsed/limit) * weight)
func (e *Engine) Multiplier(elapsed float64, timeLimit int) float64 {
	if timeLimit <= 0 {
		return 1
	}
	if elapsed < 0 || math.IsNaN(elapsed) {
		elapsed = 0
	}
	m := 1 - (elapsed/float64(timeLimit))*e.config.SpeedWeight
	return math.Max(e.config.MinMultiplier, m)
}

// Score decides points, the new streak and newly earned badges.
// Incorrect answers earn nothing and reset the streak.
func (e *Engine) Score(in Input) quiz.Outcome {
	if !in.IsCorrect {
		return quiz.Outcome{IsCorrect: false, PointsEarned: 0, Streak: 0}
	}

	multiplier := 1.0
	if in.Settings.SpeedBonusEnabled() {
		multiplier = e.Multiplier(in.ElapsedSeconds, in.TimeLimitSeconds)
	}
	out := quiz.Outcome{
		IsCorrect:    true,
		PointsEarned: int(math.Round(float64(in.Points) * multiplier)),
		Streak:       in.PrevStreak + 1,
	}

	held := make(map[string]bool, len(in.HeldBadges))
	for _, b := range in.HeldBadges {
		held[b] = true
	}
	grant := func(badge string) {
		if badge == "" || held[badge] {
			return
		}
		held[badge] = true
		out.NewBadges = append(out.NewBadges, badge)
	}

	if in.Settings.StreakBadgesEnabled() {
		grant(e.config.StreakBadgeLevels[out.Streak])
	}
	if in.ElapsedSeconds >= 0 && in.ElapsedSeconds < e.config.SpeedBadgeSeconds {
		grant(quiz.BadgeSpeedDemon)
	}
	return out
}
