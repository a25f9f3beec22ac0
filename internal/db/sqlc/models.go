package sqlcgen

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Answer struct {
	ID             pgtype.UUID
	SessionID      pgtype.UUID
	ParticipantID  pgtype.UUID
	QuestionID     pgtype.UUID
	SelectedOption int32
	IsCorrect      bool
	ElapsedSeconds float64
	PointsEarned   int32
	SubmittedAt    pgtype.Timestamptz
}

type Participant struct {
	ID          pgtype.UUID
	SessionID   pgtype.UUID
	DisplayName string
	Identity    pgtype.Text
	Score       int32
	Streak      int32
	Badges      []string
	LastSeen    pgtype.Timestamptz
	JoinedAt    pgtype.Timestamptz
}

type Question struct {
	ID               pgtype.UUID
	SessionID        pgtype.UUID
	OrderIndex       int32
	Prompt           string
	Options          []string
	CorrectOption    int32
	TimeLimitSeconds int32
	Points           int32
	MediaUrl         string
	CreatedAt        pgtype.Timestamptz
}

type Session struct {
	ID                       pgtype.UUID
	Title                    string
	Description              string
	HostID                   pgtype.UUID
	AccessCode               string
	IsActive                 bool
	IsFinished               bool
	CurrentQuestionIndex     int32
	CurrentQuestionStartTime pgtype.Timestamptz
	ShowResults              bool
	Settings                 []byte
	Version                  int64
	CreatedAt                pgtype.Timestamptz
	UpdatedAt                pgtype.Timestamptz
}
