package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func uuidFromByte(b byte) pgtype.UUID {
	var arr [16]byte
	arr[15] = b
	return pgtype.UUID{Bytes: arr, Valid: true}
}

func fixedTime() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

// funcTransactor runs fn against a fixed set of queries without a database.
type funcTransactor struct {
	q TxQueries
}

func (f funcTransactor) InTx(_ context.Context, fn func(q TxQueries) error) error {
	return fn(f.q)
}
