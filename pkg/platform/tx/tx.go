package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}
type journalKey struct{}

var (
	txKey      = ctxKey{}
	journalCtx = journalKey{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Journal collects compensating actions for stores that cannot join a SQL
// transaction (in-memory maps, Redis). Undo steps run newest first.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

func NewJournal() *Journal { return &Journal{} }

// WithJournal stores a journal in context.
func WithJournal(ctx context.Context, j *Journal) context.Context {
	if j == nil {
		return ctx
	}
	return context.WithValue(ctx, journalCtx, j)
}

// JournalFrom extracts the journal from context if present.
func JournalFrom(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalCtx).(*Journal)
	return j, ok
}

// Record appends an undo step.
func (j *Journal) Record(undo func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, undo)
}

// Len reports the number of pending undo steps.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.undo)
}

// Rollback runs all undo steps in reverse order and clears the journal.
func (j *Journal) Rollback() {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// Commit drops all undo steps.
func (j *Journal) Commit() {
	j.mu.Lock()
	j.undo = nil
	j.mu.Unlock()
}

// RecordUndo registers undo on the journal in ctx. Outside a unit of work it is a no-op.
func RecordUndo(ctx context.Context, undo func()) {
	if j, ok := JournalFrom(ctx); ok {
		j.Record(undo)
	}
}
