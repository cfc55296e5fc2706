package gateway

import (
	"context"
	"database/sql"
	"encoding/binary"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "kgcore/pkg/domain-errors"
	"kgcore/pkg/platform/tx"
)

// UnitOfWork runs one instance mutation atomically: either every store write
// made through the context passed to fn persists, or none does.
type UnitOfWork interface {
	Run(ctx context.Context, instance uuid.UUID, fn func(ctx context.Context) error) error
}

// numShards spreads instance locks so unrelated instances rarely contend.
const numShards = 128

// defaultTxTimeout bounds a unit of work when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func aborted(err error) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
}

// MemoryUnitOfWork serializes mutations per instance with sharded mutexes and
// undoes partial writes through the journal in context.
type MemoryUnitOfWork struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewMemoryUnitOfWork(timeout time.Duration) *MemoryUnitOfWork {
	return &MemoryUnitOfWork{timeout: timeout}
}

func (u *MemoryUnitOfWork) Run(ctx context.Context, instance uuid.UUID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	shard := &u.shards[shardOf(instance)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return aborted(err)
	}

	journal := tx.NewJournal()
	if err := fn(tx.WithJournal(ctx, journal)); err != nil {
		journal.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		journal.Rollback()
		return aborted(err)
	}
	journal.Commit()
	return nil
}

func shardOf(id uuid.UUID) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return h.Sum32() % numShards
}

// PostgresUnitOfWork runs fn inside a SQL transaction holding an advisory lock
// on the instance. Stores outside Postgres (Redis) register compensations on
// the journal, which run when the transaction does not commit.
type PostgresUnitOfWork struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresUnitOfWork(db *sql.DB, timeout time.Duration) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db, timeout: timeout}
}

func (u *PostgresUnitOfWork) Run(ctx context.Context, instance uuid.UUID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	sqlTx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	journal := tx.NewJournal()
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
			journal.Rollback()
		}
	}()

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(instance)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to lock instance")
	}

	txCtx := tx.WithJournal(tx.WithTx(ctx, sqlTx), journal)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	committed = true
	journal.Commit()
	return nil
}

func advisoryKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]))
}
