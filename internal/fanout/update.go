// Package fanout propagates session changes from one upstream channel per
// session to any number of in-process listeners.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names the change carried by an Update.
type Kind string

const (
	KindSessionLive         Kind = "session_live"
	KindQuestionStarted     Kind = "question_started"
	KindResultsShown        Kind = "results_shown"
	KindQuizFinished        Kind = "quiz_finished"
	KindParticipantsChanged Kind = "participants_changed"
	KindQuestionAdded       Kind = "question_added"
)

// Reasons attached to participants_changed.
const (
	ReasonJoined   = "joined"
	ReasonLeft     = "left"
	ReasonAnswered = "answered"
)

// Update is a change notification. It carries identifiers only; listeners
// re-read authoritative state.
type Update struct {
	Kind          Kind      `json:"kind"`
	SessionID     uuid.UUID `json:"sessionId"`
	Seq           int64     `json:"seq"`
	At            time.Time `json:"at"`
	QuestionIndex *int      `json:"questionIndex,omitempty"`
	ParticipantID string    `json:"participantId,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	// Ephemeral marks updates with no backing store write.
	Ephemeral bool `json:"ephemeral,omitempty"`
}

// WithQuestion returns a copy of u carrying question index i.
func (u Update) WithQuestion(i int) Update {
	u.QuestionIndex = &i
	return u
}

// Listener receives updates for one session, in order.
type Listener func(Update)

// Publisher announces updates to every instance listening on a session.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Source opens the upstream change channel for a session. deliver is called
// for every update on that channel, from a single goroutine.
type Source interface {
	Open(ctx context.Context, sessionID uuid.UUID, deliver func(Update)) (Channel, error)
}

// Channel is one open upstream subscription.
type Channel interface {
	// Ping checks that the channel is still alive.
	Ping(ctx context.Context) error
	// Done is closed when the channel drops.
	Done() <-chan struct{}
	Close() error
}

// ChannelName is the per-session upstream channel name shared by the Redis
// and Postgres sources.
func ChannelName(prefix string, sessionID uuid.UUID) string {
	return prefix + strings.ReplaceAll(sessionID.String(), "-", "")
}

func decodeUpdate(payload []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return Update{}, fmt.Errorf("decode update: %w", err)
	}
	if u.Kind == "" || u.SessionID == uuid.Nil {
		return Update{}, fmt.Errorf("decode update: missing kind or session")
	}
	return u, nil
}
