package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-live/internal/db/memory"
	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/leaderboard"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
	"github.com/gokatarajesh/quiz-live/internal/quiz/scoring"
)

// recordingPublisher forwards to the local bus and keeps every update.
type recordingPublisher struct {
	next fanout.Publisher
	mu   sync.Mutex
	seen []fanout.Update
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, u fanout.Update) error {
	p.mu.Lock()
	p.seen = append(p.seen, u)
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if p.next == nil {
		return nil
	}
	return p.next.Publish(ctx, u)
}

func (p *recordingPublisher) updates() []fanout.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fanout.Update(nil), p.seen...)
}

func (p *recordingPublisher) kinds() []fanout.Kind {
	var out []fanout.Kind
	for _, u := range p.updates() {
		out = append(out, u.Kind)
	}
	return out
}

type fixture struct {
	store   *memory.Store
	bus     *fanout.LocalBus
	pub     *recordingPublisher
	catalog *question.Service
	board   *leaderboard.Service
	svc     *Service
	answers *AnswerService
	reader  *Reader
	redis   *redis.Client
	mr      *miniredis.Miniredis
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		store: memory.New(),
		bus:   fanout.NewLocalBus(),
		redis: client,
		mr:    mr,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.pub = &recordingPublisher{next: f.bus}
	logger := zerolog.Nop()
	f.catalog = question.NewService(f.store, question.NewCache(client, time.Minute), logger)
	f.board = leaderboard.NewService(client, f.store, logger, leaderboard.ServiceOptions{})
	f.svc = NewService(f.store, f.pub, NewLocalLocker(), f.catalog, nil, f.board, Config{
		WriteTimeout: time.Second,
		LockWait:     200 * time.Millisecond,
	}, logger)
	f.svc.now = func() time.Time { return f.now }
	f.answers = NewAnswerService(f.store, f.catalog, scoring.NewEngine(scoring.DefaultScoringConfig()), f.board, f.pub, time.Second, logger)
	f.answers.now = func() time.Time { return f.now }
	f.reader = NewReader(f.store, f.catalog, logger)
	return f
}

// draftSession creates a session with n questions, options a-d, correct "b".
func (f *fixture) draftSession(t *testing.T, n int) (quiz.Session, Actor) {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, CreateRequest{Title: "Friday quiz"})
	require.NoError(t, err)
	host := HostActor(sess.HostID)
	for i := 0; i < n; i++ {
		_, err := f.svc.AddQuestion(ctx, sess.ID, host, question.Draft{
			Prompt:        "question",
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: 1,
		})
		require.NoError(t, err)
	}
	return sess, host
}

func (f *fixture) liveSession(t *testing.T, n int) (quiz.Session, Actor) {
	t.Helper()
	sess, host := f.draftSession(t, n)
	sess, err := f.svc.MakeLive(context.Background(), sess.ID, host)
	require.NoError(t, err)
	return sess, host
}

func (f *fixture) join(t *testing.T, sessionID uuid.UUID, name string) quiz.Participant {
	t.Helper()
	m, err := f.svc.Join(context.Background(), JoinRequest{SessionID: sessionID, Role: quiz.RoleParticipant, DisplayName: name})
	require.NoError(t, err)
	require.NotNil(t, m.Participant)
	return *m.Participant
}

func (f *fixture) question(t *testing.T, sessionID uuid.UUID, i int) quiz.Question {
	t.Helper()
	q, err := f.catalog.At(context.Background(), sessionID, i)
	require.NoError(t, err)
	return q
}

func questionDraft() question.Draft {
	return question.Draft{Prompt: "2 + 2?", Options: []string{"3", "4", "5"}, CorrectOption: 1}
}
