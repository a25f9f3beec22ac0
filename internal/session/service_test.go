package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-live/internal/fanout"
	"github.com/gokatarajesh/quiz-live/internal/question"
	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

func TestCreateSession(t *testing.T) {
	f := newFixture(t)

	sess, err := f.svc.CreateSession(context.Background(), CreateRequest{Title: "  Trivia  "})
	require.NoError(t, err)
	assert.Equal(t, "Trivia", sess.Title)
	assert.Equal(t, quiz.StateDraft, sess.State())
	assert.Equal(t, quiz.NoQuestion, sess.CurrentQuestionIndex)
	assert.Regexp(t, `^[1-9][0-9]{5}$`, sess.AccessCode)
	assert.NotEqual(t, uuid.Nil, sess.HostID)
	assert.Equal(t, quiz.DefaultTimeLimitSeconds, sess.Settings.TimeLimit)

	_, err = f.svc.CreateSession(context.Background(), CreateRequest{Title: " "})
	assert.Equal(t, quiz.KindValidation, quiz.KindOf(err))
}

func TestCreateSession_RetriesTakenAccessCode(t *testing.T) {
	f := newFixture(t)
	codes := []string{"111111", "111111", "222222"}
	f.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := f.svc.CreateSession(context.Background(), CreateRequest{Title: "one"})
	require.NoError(t, err)
	second, err := f.svc.CreateSession(context.Background(), CreateRequest{Title: "two"})
	require.NoError(t, err)

	assert.Equal(t, "111111", first.AccessCode)
	assert.Equal(t, "222222", second.AccessCode)
}

func TestRegenerateAccessCode(t *testing.T) {
	f := newFixture(t)
	sess, host := f.draftSession(t, 0)

	updated, err := f.svc.RegenerateAccessCode(context.Background(), sess.ID, host)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessCode, updated.AccessCode)

	_, err = f.store.GetSessionByAccessCode(context.Background(), sess.AccessCode)
	assert.ErrorIs(t, err, quiz.ErrSessionNotFound)

	_, err = f.svc.RegenerateAccessCode(context.Background(), sess.ID, HostActor(uuid.New()))
	assert.Equal(t, quiz.CodeNotHost, quiz.CodeOf(err))
}

func TestMakeLive_RequiresQuestions(t *testing.T) {
	f := newFixture(t)
	sess, host := f.draftSession(t, 0)

	_, err := f.svc.MakeLive(context.Background(), sess.ID, host)
	assert.Equal(t, quiz.KindValidation, quiz.KindOf(err))
	assert.Empty(t, f.pub.kinds())

	_, err = f.svc.AddQuestion(context.Background(), sess.ID, host, question.Draft{Prompt: "p", Options: []string{"x", "y"}})
	require.NoError(t, err)

	live, err := f.svc.MakeLive(context.Background(), sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, quiz.StateLive, live.State())
	assert.Equal(t, []fanout.Kind{fanout.KindQuestionAdded, fanout.KindSessionLive}, f.pub.kinds())

	_, err = f.svc.MakeLive(context.Background(), sess.ID, host)
	assert.Equal(t, quiz.CodeInvalidState, quiz.CodeOf(err))
}

func TestHostActionsRequireHost(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.draftSession(t, 1)
	p := f.join(t, sess.ID, "mallory")

	for name, actor := range map[string]Actor{
		"participant role": {ParticipantID: p.ID, Role: quiz.RoleParticipant},
		"wrong host id":    HostActor(uuid.New()),
		"display claiming": {ParticipantID: sess.HostID, Role: quiz.RoleDisplay},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.MakeLive(context.Background(), sess.ID, actor)
			assert.Equal(t, quiz.CodeNotHost, quiz.CodeOf(err))
		})
	}
}

func TestQuestionLifecycle(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 3)
	ctx := context.Background()

	started, err := f.svc.StartQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, quiz.StateQuestionActive, started.State())
	assert.Equal(t, 0, started.CurrentQuestionIndex)
	require.NotNil(t, started.CurrentQuestionStartTime)
	assert.True(t, started.CurrentQuestionStartTime.Equal(f.now))

	shown, err := f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, quiz.StateResultsShown, shown.State())

	next, err := f.svc.NextQuestion(ctx, sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, 1, next.CurrentQuestionIndex)
	assert.False(t, next.ShowResults)

	_, err = f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)
	jumped, err := f.svc.StartQuestion(ctx, sess.ID, host, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, jumped.CurrentQuestionIndex)

	_, err = f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)
	_, err = f.svc.NextQuestion(ctx, sess.ID, host)
	assert.ErrorIs(t, err, quiz.ErrNoMoreQuestions)

	done, err := f.svc.FinishQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, quiz.StateFinished, done.State())
	assert.True(t, done.ShowResults)

	var indexes []int
	for _, u := range f.pub.updates() {
		if u.Kind == fanout.KindQuestionStarted {
			require.NotNil(t, u.QuestionIndex)
			indexes = append(indexes, *u.QuestionIndex)
		}
		assert.Equal(t, sess.ID, u.SessionID)
	}
	assert.Equal(t, []int{0, 1, 2}, indexes)
}

func TestStartQuestion_IndexOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 3)
	ctx := context.Background()

	_, err := f.svc.StartQuestion(ctx, sess.ID, host, 1)
	require.NoError(t, err)
	_, err = f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)

	for _, i := range []int{-1, 0, 1, 3} {
		_, err := f.svc.StartQuestion(ctx, sess.ID, host, i)
		assert.Equal(t, quiz.KindValidation, quiz.KindOf(err), "index %d", i)
	}
	cur, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cur.CurrentQuestionIndex)
}

func TestStartQuestion_NotWhileQuestionActive(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 2)
	ctx := context.Background()

	_, err := f.svc.StartQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	_, err = f.svc.StartQuestion(ctx, sess.ID, host, 1)
	assert.Equal(t, quiz.CodeInvalidState, quiz.CodeOf(err))
	_, err = f.svc.NextQuestion(ctx, sess.ID, host)
	assert.Equal(t, quiz.CodeInvalidState, quiz.CodeOf(err))
	_, err = f.svc.StartQuiz(ctx, sess.ID, host)
	assert.Equal(t, quiz.CodeInvalidState, quiz.CodeOf(err))
}

func TestShowResults_SecondCallIsNoop(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 1)
	ctx := context.Background()

	_, err := f.svc.StartQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	first, err := f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)
	before := len(f.pub.updates())

	second, err := f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.State(), second.State())
	assert.Len(t, f.pub.updates(), before)
}

func TestFinishQuiz_OnlyFromResults(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 1)
	ctx := context.Background()

	_, err := f.svc.FinishQuiz(ctx, sess.ID, host)
	assert.Equal(t, quiz.CodeInvalidState, quiz.CodeOf(err))

	_, err = f.svc.StartQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	_, err = f.svc.FinishQuiz(ctx, sess.ID, host)
	assert.Equal(t, quiz.CodeInvalidState, quiz.CodeOf(err))
}

func TestAddQuestion_OnlyBeforeLive(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 1)

	_, err := f.svc.AddQuestion(context.Background(), sess.ID, host, question.Draft{Prompt: "late", Options: []string{"a", "b"}})
	assert.ErrorIs(t, err, quiz.ErrSessionActive)
}

func TestAddQuestion_InvalidatesCatalog(t *testing.T) {
	f := newFixture(t)
	sess, host := f.draftSession(t, 1)
	ctx := context.Background()

	n, err := f.catalog.Count(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	q, err := f.svc.AddQuestion(ctx, sess.ID, host, question.Draft{Prompt: "two", Options: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, q.OrderIndex)

	n, err = f.catalog.Count(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTransition_NoPublishWhenWriteFails(t *testing.T) {
	f := newFixture(t)
	sess, host := f.draftSession(t, 1)
	before := len(f.pub.updates())

	failing := &failingStateStore{Store: f.store, err: quiz.Transient("write failed", errors.New("disk full"))}
	f.svc.store = failing

	_, err := f.svc.MakeLive(context.Background(), sess.ID, host)
	assert.Equal(t, quiz.KindTransient, quiz.KindOf(err))
	assert.Len(t, f.pub.updates(), before)
}

func TestTransition_PublishFailureDoesNotFailAction(t *testing.T) {
	f := newFixture(t)
	sess, host := f.draftSession(t, 1)
	f.pub.err = errors.New("bus down")

	live, err := f.svc.MakeLive(context.Background(), sess.ID, host)
	require.NoError(t, err)
	assert.Equal(t, quiz.StateLive, live.State())
}

func TestHostActions_AreSerialized(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.StartQuestion(ctx, sess.ID, host, 0); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		failures++
		assert.Equal(t, quiz.KindValidation, quiz.KindOf(err))
	}
	assert.Equal(t, 9, failures)

	started := 0
	for _, k := range f.pub.kinds() {
		if k == fanout.KindQuestionStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)
}

func TestHostAction_BusyAfterLockWait(t *testing.T) {
	f := newFixture(t)
	sess, host := f.liveSession(t, 1)
	locker := NewLocalLocker()
	f.svc.locker = locker

	unlock, err := locker.Lock(context.Background(), sess.ID)
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = f.svc.StartQuiz(context.Background(), sess.ID, host)
	assert.ErrorIs(t, err, quiz.ErrHostActionBusy)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

type failingStateStore struct {
	Store
	err error
}

func (s *failingStateStore) UpdateSessionState(context.Context, uuid.UUID, int64, quiz.StateChange) (quiz.Session, error) {
	return quiz.Session{}, s.err
}
