package question

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// ListCache defines cache behavior (implemented by Redis-backed Cache).
type ListCache interface {
	Get(ctx context.Context, sessionID uuid.UUID) ([]quiz.Question, error)
	Set(ctx context.Context, sessionID uuid.UUID, qs []quiz.Question) error
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

type questionStore interface {
	ListQuestions(ctx context.Context, sessionID uuid.UUID) ([]quiz.Question, error)
}

// Service serves a session's questions from cache, falling back to the store.
// Concurrent misses for one session share a single store read.
type Service struct {
	store  questionStore
	cache  ListCache
	group  singleflight.Group
	logger zerolog.Logger
}

func NewService(store questionStore, cache ListCache, logger zerolog.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "question_catalog").Logger(),
	}
}

// List returns the session's questions ordered by index.
func (s *Service) List(ctx context.Context, sessionID uuid.UUID) ([]quiz.Question, error) {
	if cached, err := s.cache.Get(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("question cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do(sessionID.String(), func() (any, error) {
		qs, err := s.store.ListQuestions(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		// An empty draft is not cached; the first append would otherwise race the fill.
		if len(qs) > 0 {
			if err := s.cache.Set(ctx, sessionID, qs); err != nil {
				s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("question cache write failed")
			}
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]quiz.Question), nil
}

// Get returns one question, verifying it belongs to the session.
func (s *Service) Get(ctx context.Context, sessionID, questionID uuid.UUID) (quiz.Question, error) {
	qs, err := s.List(ctx, sessionID)
	if err != nil {
		return quiz.Question{}, err
	}
	for _, q := range qs {
		if q.ID == questionID {
			return q, nil
		}
	}
	return quiz.Question{}, quiz.ErrQuestionNotFound
}

// At returns the question at order index i.
func (s *Service) At(ctx context.Context, sessionID uuid.UUID, i int) (quiz.Question, error) {
	qs, err := s.List(ctx, sessionID)
	if err != nil {
		return quiz.Question{}, err
	}
	if i < 0 || i >= len(qs) {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	return qs[i], nil
}

// Count returns how many questions the session has.
func (s *Service) Count(ctx context.Context, sessionID uuid.UUID) (int, error) {
	qs, err := s.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

// Invalidate drops the cached list after a question is appended.
func (s *Service) Invalidate(ctx context.Context, sessionID uuid.UUID) {
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("question cache invalidate failed")
	}
}
