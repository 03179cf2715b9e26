package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks a call that runs outside any transaction.
var NoTX Tx = nil

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `tx`.
//
// Repository methods accept a `qx any` executor so the same method can run
// standalone (qx == nil, pool-backed) or participate in a caller-owned
// transaction. The concrete type of the handle is infra-defined (pgx.Tx for
// Postgres).
//
// The token pipeline leans on this contract: a debit and the job row it
// reserves for must commit or roll back together, so the Dispatcher wraps
// both repository calls in one WithTx.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
