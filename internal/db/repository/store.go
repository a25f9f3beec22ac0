package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
)

// Store bundles the repositories behind one value so services can take a
// single dependency.
type Store struct {
	*SessionRepository
	*QuestionRepository
	*ParticipantRepository
	*AnswerRepository

	pool *pgxpool.Pool
}

// NewStore wires every repository onto pool.
func NewStore(pool *pgxpool.Pool) *Store {
	queries := sqlcgen.New(pool)
	tx := NewPoolTransactor(pool)
	return &Store{
		SessionRepository:     NewSessionRepository(queries),
		QuestionRepository:    NewQuestionRepository(queries, tx),
		ParticipantRepository: NewParticipantRepository(queries),
		AnswerRepository:      NewAnswerRepository(queries, tx),
		pool:                  pool,
	}
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
