package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// Postgres error codes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPGUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func pgTimePtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgTime(*t)
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// mapErr translates driver errors into the domain taxonomy. notFound is
// returned for pgx.ErrNoRows.
func mapErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			switch pgErr.ConstraintName {
			case "sessions_access_code_key":
				return quiz.ErrAccessCodeTaken
			case "participants_session_identity_key":
				return quiz.ErrIdentityTaken
			case "answers_participant_question_key":
				return quiz.ErrAlreadyAnswered
			}
			return &quiz.Error{Kind: quiz.KindConflict, Code: quiz.CodeConflict, Message: "duplicate row", Err: err}
		case pgForeignKeyViolation:
			return notFound
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return quiz.Transient("postgres deadline", err)
	}
	return quiz.Transient("postgres", err)
}

func toSession(row sqlcgen.Session) (quiz.Session, error) {
	s := quiz.Session{
		ID:                   fromPGUUID(row.ID),
		Title:                row.Title,
		Description:          row.Description,
		HostID:               fromPGUUID(row.HostID),
		AccessCode:           row.AccessCode,
		IsActive:             row.IsActive,
		IsFinished:           row.IsFinished,
		CurrentQuestionIndex: int(row.CurrentQuestionIndex),
		ShowResults:          row.ShowResults,
		Version:              row.Version,
		CreatedAt:            row.CreatedAt.Time,
		UpdatedAt:            row.UpdatedAt.Time,
	}
	if row.CurrentQuestionStartTime.Valid {
		t := row.CurrentQuestionStartTime.Time
		s.CurrentQuestionStartTime = &t
	}
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &s.Settings); err != nil {
			return quiz.Session{}, fmt.Errorf("decode session settings: %w", err)
		}
	}
	return s, nil
}

func toQuestion(row sqlcgen.Question) quiz.Question {
	return quiz.Question{
		ID:               fromPGUUID(row.ID),
		SessionID:        fromPGUUID(row.SessionID),
		OrderIndex:       int(row.OrderIndex),
		Prompt:           row.Prompt,
		Options:          row.Options,
		CorrectOption:    int(row.CorrectOption),
		TimeLimitSeconds: int(row.TimeLimitSeconds),
		Points:           int(row.Points),
		MediaURL:         row.MediaUrl,
		CreatedAt:        row.CreatedAt.Time,
	}
}

func toParticipant(row sqlcgen.Participant) quiz.Participant {
	badges := row.Badges
	if badges == nil {
		badges = []string{}
	}
	return quiz.Participant{
		ID:          fromPGUUID(row.ID),
		SessionID:   fromPGUUID(row.SessionID),
		DisplayName: row.DisplayName,
		Identity:    row.Identity.String,
		Score:       int(row.Score),
		Streak:      int(row.Streak),
		Badges:      badges,
		LastSeen:    row.LastSeen.Time,
		JoinedAt:    row.JoinedAt.Time,
	}
}

func toAnswer(row sqlcgen.Answer) quiz.Answer {
	return quiz.Answer{
		ID:             fromPGUUID(row.ID),
		SessionID:      fromPGUUID(row.SessionID),
		ParticipantID:  fromPGUUID(row.ParticipantID),
		QuestionID:     fromPGUUID(row.QuestionID),
		SelectedOption: int(row.SelectedOption),
		IsCorrect:      row.IsCorrect,
		ElapsedSeconds: row.ElapsedSeconds,
		PointsEarned:   int(row.PointsEarned),
		SubmittedAt:    row.SubmittedAt.Time,
	}
}
