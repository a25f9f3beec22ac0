package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlcgen "github.com/gokatarajesh/quiz-live/internal/db/sqlc"
)

// TxQueries is the subset of queries that run inside a transaction.
type TxQueries interface {
	GetSessionForUpdate(ctx context.Context, id pgtype.UUID) (sqlcgen.Session, error)
	GetSessionForShare(ctx context.Context, id pgtype.UUID) (sqlcgen.Session, error)
	InsertQuestion(ctx context.Context, arg sqlcgen.InsertQuestionParams) (sqlcgen.Question, error)
	GetParticipantForUpdate(ctx context.Context, arg sqlcgen.GetParticipantForUpdateParams) (sqlcgen.Participant, error)
	InsertAnswer(ctx context.Context, arg sqlcgen.InsertAnswerParams) (sqlcgen.Answer, error)
	ApplyAnswerOutcome(ctx context.Context, arg sqlcgen.ApplyAnswerOutcomeParams) (sqlcgen.Participant, error)
}

// Transactor runs fn inside a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(q TxQueries) error) error
}

// PoolTransactor begins transactions on a pgx pool.
type PoolTransactor struct {
	pool *pgxpool.Pool
}

// NewPoolTransactor wraps pool.
func NewPoolTransactor(pool *pgxpool.Pool) *PoolTransactor {
	return &PoolTransactor{pool: pool}
}

// InTx commits when fn returns nil and rolls back otherwise.
func (p *PoolTransactor) InTx(ctx context.Context, fn func(q TxQueries) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(sqlcgen.New(tx))
	})
}
