package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

func TestSnapshot_HidesAnswerUntilResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, host := f.liveSession(t, 2)
	f.join(t, sess.ID, "Lee")

	snap, err := f.reader.Snapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StateLive, snap.Session.State)
	assert.Equal(t, 2, snap.Session.QuestionCount)
	assert.Nil(t, snap.CurrentQuestion)
	assert.Len(t, snap.Participants, 1)

	_, err = f.svc.StartQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	snap, err = f.reader.Snapshot(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentQuestion)
	assert.Equal(t, 0, snap.CurrentQuestion.OrderIndex)
	assert.Nil(t, snap.CorrectOption)

	_, err = f.svc.ShowResults(ctx, sess.ID, host)
	require.NoError(t, err)
	snap, err = f.reader.Snapshot(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.CorrectOption)
	assert.Equal(t, 1, *snap.CorrectOption)
}

func TestSnapshot_CopiesParticipants(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.draftSession(t, 1)
	f.join(t, sess.ID, "Max")

	a, err := f.reader.Snapshot(context.Background(), sess.ID)
	require.NoError(t, err)
	a.Participants[0].DisplayName = "changed"

	b, err := f.reader.Snapshot(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Max", b.Participants[0].DisplayName)
}

func TestSnapshot_UnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.reader.Snapshot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, quiz.ErrSessionNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, host := f.liveSession(t, 3)
	p := f.join(t, sess.ID, "Ned")
	f.join(t, sess.ID, "Ola")
	_, err := f.svc.StartQuiz(ctx, sess.ID, host)
	require.NoError(t, err)
	q := f.question(t, sess.ID, 0)
	_, err = f.answers.Submit(ctx, Submission{SessionID: sess.ID, ParticipantID: p.ID, QuestionID: q.ID, SelectedOption: 2, ElapsedSeconds: 4})
	require.NoError(t, err)

	stats, err := f.reader.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.Stats{
		SessionID:        sess.ID,
		State:            quiz.StateQuestionActive,
		QuestionCount:    3,
		ParticipantCount: 2,
		AnswerCount:      1,
	}, stats)
}
