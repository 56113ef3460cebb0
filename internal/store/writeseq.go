package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/roach88/activitylog/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// writeSequence is the single logical writer of a store. Entity creation,
// event append, event delete and state updates all run inside it, which is
// what makes check-then-insert interning safe.
type writeSequence struct {
	mu sync.Mutex
	db *sql.DB
}

// writeTx is one pass through the write sequence. Entities created inside
// it are visible to later steps of the same pass and reach the caches only
// after commit, so a rollback never leaves a cached id that does not exist.
type writeTx struct {
	tx        *sql.Tx
	op        string
	local     map[string]map[string]any
	onCommit  []func()
	committed bool
}

// begin acquires the sequence, then any extra locks in order, then opens a
// transaction. The returned release function rolls back unless commit
// succeeded and releases everything in reverse order.
func (ws *writeSequence) begin(ctx context.Context, op string, locks ...sync.Locker) (*writeTx, func(), error) {
	ws.mu.Lock()
	for _, l := range locks {
		l.Lock()
	}
	unlock := func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
		ws.mu.Unlock()
	}

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		unlock()
		return nil, nil, ir.NewStorageUnavailable(op, fmt.Errorf("begin tx: %w", err))
	}

	w := &writeTx{tx: tx, op: op, local: make(map[string]map[string]any)}
	return w, func() {
		if !w.committed {
			_ = tx.Rollback()
		}
		unlock()
	}, nil
}

// created returns the entity created earlier in this pass for value.
func (w *writeTx) created(table, value string) (any, bool) {
	e, ok := w.local[table][value]
	return e, ok
}

// remember records an entity created in this pass and defers publish until
// commit.
func (w *writeTx) remember(table, value string, entity any, publish func()) {
	m, ok := w.local[table]
	if !ok {
		m = make(map[string]any)
		w.local[table] = m
	}
	m[value] = entity
	w.onCommit = append(w.onCommit, publish)
}

func (w *writeTx) commit() error {
	if err := w.tx.Commit(); err != nil {
		return ir.NewStorageUnavailable(w.op, fmt.Errorf("commit: %w", err))
	}
	w.committed = true
	for _, f := range w.onCommit {
		f()
	}
	return nil
}
