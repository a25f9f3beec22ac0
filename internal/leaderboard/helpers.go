package leaderboard

import (
	"strconv"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// fromParticipants ranks participants already ordered by score.
func fromParticipants(participants []quiz.Participant, limit int) []Entry {
	if len(participants) > limit {
		participants = participants[:limit]
	}
	result := make([]Entry, len(participants))
	for i, p := range participants {
		result[i] = Entry{
			Rank:          i + 1,
			ParticipantID: p.ID.String(),
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Streak:        p.Streak,
			Badges:        p.Badges,
		}
	}
	return result
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}
