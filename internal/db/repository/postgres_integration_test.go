//go:build integration

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gokatarajesh/quiz-live/internal/db/migrations"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

func TestPostgresStore_AnswerFlow(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, cleanup := startPostgres(t, ctx)
	defer cleanup()
	migrate(t, dsn)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	store := NewStore(pool)

	sess, err := store.CreateSession(ctx, quiz.Session{
		Title:      "Integration",
		HostID:     uuid.New(),
		AccessCode: "424242",
		Settings:   quiz.Settings{TimeLimit: 30, PointsPerQuestion: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, quiz.NoQuestion, sess.CurrentQuestionIndex)

	q0, err := store.AppendQuestion(ctx, quiz.Question{SessionID: sess.ID, Prompt: "2+2", Options: []string{"3", "4"}, CorrectOption: 1, TimeLimitSeconds: 30, Points: 100})
	require.NoError(t, err)
	q1, err := store.AppendQuestion(ctx, quiz.Question{SessionID: sess.ID, Prompt: "3+3", Options: []string{"6", "7"}, CorrectOption: 0, TimeLimitSeconds: 30, Points: 100})
	require.NoError(t, err)
	assert.Equal(t, 0, q0.OrderIndex)
	assert.Equal(t, 1, q1.OrderIndex)

	live, err := store.UpdateSessionState(ctx, sess.ID, sess.Version, quiz.StateChange{IsActive: true, CurrentQuestionIndex: quiz.NoQuestion})
	require.NoError(t, err)
	_, err = store.UpdateSessionState(ctx, sess.ID, sess.Version, quiz.StateChange{IsActive: true, CurrentQuestionIndex: 0})
	assert.ErrorIs(t, err, quiz.ErrStaleVersion)

	_, err = store.AppendQuestion(ctx, quiz.Question{SessionID: sess.ID, Prompt: "late", Options: []string{"a", "b"}, TimeLimitSeconds: 30, Points: 100})
	assert.ErrorIs(t, err, quiz.ErrSessionActive)

	p, err := store.CreateParticipant(ctx, quiz.Participant{SessionID: sess.ID, DisplayName: "A", Identity: "a@example.com"})
	require.NoError(t, err)
	_, err = store.CreateParticipant(ctx, quiz.Participant{SessionID: sess.ID, DisplayName: "A again", Identity: "a@example.com"})
	assert.ErrorIs(t, err, quiz.ErrIdentityTaken)

	now := time.Now()
	active, err := store.UpdateSessionState(ctx, sess.ID, live.Version, quiz.StateChange{IsActive: true, CurrentQuestionIndex: 0, CurrentQuestionStartTime: &now})
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		dupes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.RecordAnswer(ctx, quiz.AnswerDraft{
				SessionID: sess.ID, ParticipantID: p.ID, QuestionID: q0.ID, SelectedOption: 1, ElapsedSeconds: 2, SubmittedAt: time.Now(),
			}, func(prev quiz.Participant) quiz.Outcome {
				return quiz.Outcome{IsCorrect: true, PointsEarned: 97, Streak: prev.Streak + 1, NewBadges: []string{quiz.BadgeSpeedDemon}}
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, quiz.ErrAlreadyAnswered) {
				dupes++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, dupes)

	got, err := store.GetParticipant(ctx, sess.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 97, got.Score)
	assert.Equal(t, 1, got.Streak)
	assert.Equal(t, []string{quiz.BadgeSpeedDemon}, got.Badges)

	n, err := store.CountAnswers(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	late, err := store.CreateParticipant(ctx, quiz.Participant{SessionID: sess.ID, DisplayName: "B"})
	require.NoError(t, err)
	change := quiz.ChangeFrom(active)
	change.ShowResults = true
	_, err = store.UpdateSessionState(ctx, sess.ID, active.Version, change)
	require.NoError(t, err)

	_, _, err = store.RecordAnswer(ctx, quiz.AnswerDraft{
		SessionID: sess.ID, ParticipantID: late.ID, QuestionID: q0.ID, SelectedOption: 1, SubmittedAt: time.Now(),
	}, func(quiz.Participant) quiz.Outcome {
		return quiz.Outcome{IsCorrect: true, PointsEarned: 100, Streak: 1}
	})
	assert.Equal(t, quiz.CodeStaleSubmission, quiz.CodeOf(err))
}

func TestPostgresStore_ChangeNotifications(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	dsn, cleanup := startPostgres(t, ctx)
	defer cleanup()
	migrate(t, dsn)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	store := NewStore(pool)

	sess, err := store.CreateSession(ctx, quiz.Session{Title: "Notify", HostID: uuid.New(), AccessCode: "111222"})
	require.NoError(t, err)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	channel := "session_" + strings.ReplaceAll(sess.ID.String(), "-", "")
	_, err = conn.Exec(ctx, "LISTEN "+channel)
	require.NoError(t, err)

	_, err = store.AppendQuestion(ctx, quiz.Question{SessionID: sess.ID, Prompt: "?", Options: []string{"a", "b"}, TimeLimitSeconds: 30, Points: 100})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := conn.Conn().WaitForNotification(waitCtx)
	require.NoError(t, err)
	var payload struct {
		Kind          string `json:"kind"`
		QuestionIndex int    `json:"questionIndex"`
	}
	require.NoError(t, json.Unmarshal([]byte(n.Payload), &payload))
	assert.Equal(t, "question_added", payload.Kind)
	assert.Equal(t, 0, payload.QuestionIndex)

	p, err := store.CreateParticipant(ctx, quiz.Participant{SessionID: sess.ID, DisplayName: "A"})
	require.NoError(t, err)
	n, err = conn.Conn().WaitForNotification(waitCtx)
	require.NoError(t, err)
	var joined struct {
		Kind          string `json:"kind"`
		Reason        string `json:"reason"`
		ParticipantID string `json:"participantId"`
	}
	require.NoError(t, json.Unmarshal([]byte(n.Payload), &joined))
	assert.Equal(t, "participants_changed", joined.Kind)
	assert.Equal(t, "joined", joined.Reason)
	assert.Equal(t, p.ID.String(), joined.ParticipantID)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizlive"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizlive?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func migrate(t *testing.T, dsn string) {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, "."))
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
