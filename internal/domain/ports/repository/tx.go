package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is the opaque transaction handle passed through repository calls.
// The concrete type is infra-defined (pgx.Tx for Postgres); repositories
// must gracefully accept nil (non-transactional path).
type Tx interface{}

// TransactionManager executes fn inside a database transaction, passing
// the underlying handle via tx. Keeps use-case interfaces free of
// storage-specific transaction types.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
