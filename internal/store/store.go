package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"clinichire.app/scout/core/db"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schemaSQL string

// migrationLock keys the advisory lock taken while the schema is applied.
const migrationLock int64 = 0x73636f7574 // "scout"

// Transactor runs fn inside one transaction. *db.DB satisfies it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(q db.Querier) error) error
}

// Migrate creates the run log tables if they are missing. The server and
// the worker both call it on boot, so the DDL runs under a transaction-scoped
// advisory lock.
func Migrate(ctx context.Context, tx Transactor) error {
	return tx.WithTx(ctx, func(q db.Querier) error {
		if _, err := q.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
			return fmt.Errorf("locking schema: %w", err)
		}
		if _, err := q.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
		return nil
	})
}
