package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

type answerKey struct {
	participant uuid.UUID
	question    uuid.UUID
}

// Store is a process-local store with the same uniqueness and atomicity
// guarantees as the Postgres schema. Used with STORE_DRIVER=memory and in tests.
type Store struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]quiz.Session
	accessCodes  map[string]uuid.UUID
	questions    map[uuid.UUID]quiz.Question
	bySession    map[uuid.UUID][]uuid.UUID // session -> question ids in order
	participants map[uuid.UUID]quiz.Participant
	answers      map[answerKey]quiz.Answer
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions:     make(map[uuid.UUID]quiz.Session),
		accessCodes:  make(map[string]uuid.UUID),
		questions:    make(map[uuid.UUID]quiz.Question),
		bySession:    make(map[uuid.UUID][]uuid.UUID),
		participants: make(map[uuid.UUID]quiz.Participant),
		answers:      make(map[answerKey]quiz.Answer),
		now:          time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateSession(_ context.Context, sess quiz.Session) (quiz.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.accessCodes[sess.AccessCode]; taken {
		return quiz.Session{}, quiz.ErrAccessCodeTaken
	}
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	now := s.now()
	sess.CreatedAt, sess.UpdatedAt = now, now
	sess.Version = 1
	s.sessions[sess.ID] = sess
	s.accessCodes[sess.AccessCode] = sess.ID
	return sess, nil
}

func (s *Store) GetSession(_ context.Context, id uuid.UUID) (quiz.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return quiz.Session{}, quiz.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) GetSessionByAccessCode(_ context.Context, code string) (quiz.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.accessCodes[code]
	if !ok {
		return quiz.Session{}, quiz.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) UpdateSessionState(_ context.Context, id uuid.UUID, version int64, change quiz.StateChange) (quiz.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return quiz.Session{}, quiz.ErrSessionNotFound
	}
	if sess.Version != version {
		return quiz.Session{}, quiz.ErrStaleVersion
	}
	sess.IsActive = change.IsActive
	sess.IsFinished = change.IsFinished
	sess.CurrentQuestionIndex = change.CurrentQuestionIndex
	sess.CurrentQuestionStartTime = change.CurrentQuestionStartTime
	sess.ShowResults = change.ShowResults
	sess.Version++
	sess.UpdatedAt = s.now()
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) UpdateAccessCode(_ context.Context, id uuid.UUID, code string) (quiz.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return quiz.Session{}, quiz.ErrSessionNotFound
	}
	if owner, taken := s.accessCodes[code]; taken && owner != id {
		return quiz.Session{}, quiz.ErrAccessCodeTaken
	}
	delete(s.accessCodes, sess.AccessCode)
	sess.AccessCode = code
	sess.UpdatedAt = s.now()
	s.accessCodes[code] = id
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) AppendQuestion(_ context.Context, q quiz.Question) (quiz.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[q.SessionID]
	if !ok {
		return quiz.Question{}, quiz.ErrSessionNotFound
	}
	if sess.IsActive {
		return quiz.Question{}, quiz.ErrSessionActive
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.OrderIndex = len(s.bySession[q.SessionID])
	q.CreatedAt = s.now()
	q.Options = append([]string(nil), q.Options...)
	s.questions[q.ID] = q
	s.bySession[q.SessionID] = append(s.bySession[q.SessionID], q.ID)
	return q, nil
}

func (s *Store) ListQuestions(_ context.Context, sessionID uuid.UUID) ([]quiz.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.bySession[sessionID]
	out := make([]quiz.Question, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.questions[id])
	}
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, id uuid.UUID) (quiz.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Store) CountQuestions(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySession[sessionID]), nil
}

func (s *Store) CreateParticipant(_ context.Context, p quiz.Participant) (quiz.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[p.SessionID]; !ok {
		return quiz.Participant{}, quiz.ErrSessionNotFound
	}
	if p.Identity != "" {
		for _, existing := range s.participants {
			if existing.SessionID == p.SessionID && existing.Identity == p.Identity {
				return quiz.Participant{}, quiz.ErrIdentityTaken
			}
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.now()
	p.JoinedAt, p.LastSeen = now, now
	p.Score, p.Streak, p.Badges = 0, 0, []string{}
	s.participants[p.ID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, sessionID, participantID uuid.UUID) (quiz.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok || p.SessionID != sessionID {
		return quiz.Participant{}, quiz.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) FindParticipantByIdentity(_ context.Context, sessionID uuid.UUID, identity string) (quiz.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		if p.SessionID == sessionID && identity != "" && p.Identity == identity {
			return p, nil
		}
	}
	return quiz.Participant{}, quiz.ErrParticipantNotFound
}

func (s *Store) TouchParticipant(_ context.Context, sessionID, participantID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok || p.SessionID != sessionID {
		return quiz.ErrParticipantNotFound
	}
	p.LastSeen = at
	s.participants[participantID] = p
	return nil
}

// ListParticipants orders by score descending, then join time.
func (s *Store) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]quiz.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []quiz.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			p.Badges = append([]string(nil), p.Badges...)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

// RecordAnswer applies the answer and score change as one step under the store
// lock. The question must still be open at that point.
func (s *Store) RecordAnswer(_ context.Context, draft quiz.AnswerDraft, score quiz.ScoreFunc) (quiz.Answer, quiz.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[draft.SessionID]
	if !ok {
		return quiz.Answer{}, quiz.Participant{}, quiz.ErrSessionNotFound
	}
	if err := sess.RequireOpenQuestion(draft.QuestionIndex); err != nil {
		return quiz.Answer{}, quiz.Participant{}, err
	}

	p, ok := s.participants[draft.ParticipantID]
	if !ok || p.SessionID != draft.SessionID {
		return quiz.Answer{}, quiz.Participant{}, quiz.ErrParticipantNotFound
	}
	key := answerKey{participant: draft.ParticipantID, question: draft.QuestionID}
	if _, dup := s.answers[key]; dup {
		return quiz.Answer{}, quiz.Participant{}, quiz.ErrAlreadyAnswered
	}

	out := score(p)
	answer := quiz.Answer{
		ID:             uuid.New(),
		SessionID:      draft.SessionID,
		ParticipantID:  draft.ParticipantID,
		QuestionID:     draft.QuestionID,
		SelectedOption: draft.SelectedOption,
		IsCorrect:      out.IsCorrect,
		ElapsedSeconds: draft.ElapsedSeconds,
		PointsEarned:   out.PointsEarned,
		SubmittedAt:    draft.SubmittedAt,
	}
	s.answers[key] = answer

	p.Score += out.PointsEarned
	p.Streak = out.Streak
	p.Badges = append(append([]string(nil), p.Badges...), out.NewBadges...)
	s.participants[p.ID] = p
	return answer, p, nil
}

func (s *Store) CountAnswers(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.answers {
		if a.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountParticipants(_ context.Context, sessionID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}
