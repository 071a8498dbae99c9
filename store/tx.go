package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// DefaultTxTimeout bounds a single service transaction. Mutations here touch
// a handful of rows, so anything longer means a stuck connection.
const DefaultTxTimeout = 10 * time.Second

// WithTx runs fn inside a transaction with a bounded deadline. The returned
// error is the transaction error; cache invalidation must happen in the
// caller only after WithTx returns nil, never inside fn.
func WithTx(ctx context.Context, db *bun.DB, timeout time.Duration, fn func(ctx context.Context, tx bun.Tx) error) error {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return db.RunInTx(ctx, &sql.TxOptions{}, fn)
}
