// Package store implements the durable persistence contract (§4.1): atomic
// transactional writes for contacts, threads, messages, scheduled jobs and
// sales events, directly against PostgreSQL via jackc/pgx's database/sql
// driver. There is no ORM layer: every operation is raw SQL, transactions
// are explicit and short, and row-locking (FOR UPDATE SKIP LOCKED) is used
// for job leasing exactly as a hand-rolled queue table would need it.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting every query helper
// in this package run either standalone or inside a caller-managed
// transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the top-level handle used by the Ingress Dispatcher, Response
// Processor and Scheduler for single-statement operations and as the entry
// point for multi-statement transactions via RunInTx.
type Store struct {
	db *sql.DB
}

// New wraps a pooled *sql.DB as a Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// TxStore exposes the same operations as Store but bound to an
// in-flight transaction, so a caller can compose several writes —
// e.g. appending an assistant message and mutating stage — into one
// atomic commit (§4.1, §4.8).
type TxStore struct {
	tx *sql.Tx
}

// RunInTx begins a transaction, invokes fn with a TxStore bound to it, and
// commits on success or rolls back on error or panic. Grounded on the
// teacher's "tx := client.Tx(ctx); defer tx.Rollback(); ...; tx.Commit()"
// session-service pattern, generalized into a reusable closure helper.
func (s *Store) RunInTx(ctx context.Context, fn func(*TxStore) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&TxStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
