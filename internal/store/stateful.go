package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/activitylog/internal/cache"
	"github.com/roach88/activitylog/internal/ir"
)

// StatefulTable interns storage media. Each entry carries a mutable state;
// every other property follows EntityTable.
//
// stateMu orders cache population by readers against state updates: a
// reader holds it shared from table read to cache insert, an update holds
// it exclusively from transaction start to cache update. A reader can
// therefore never put a pre-update state back into the cache.
type StatefulTable struct {
	db      *sql.DB
	seq     *writeSequence
	cache   *cache.BiCache[ir.StatefulEntity]
	stateMu sync.RWMutex
	logger  *slog.Logger
}

func newStatefulTable(db *sql.DB, seq *writeSequence, size int, logger *slog.Logger, opts ...cache.Option) (*StatefulTable, error) {
	c, err := cache.New(size,
		func(e ir.StatefulEntity) int64 { return e.ID },
		func(e ir.StatefulEntity) string { return e.Value },
		opts...)
	if err != nil {
		return nil, fmt.Errorf("storage cache: %w", err)
	}
	return &StatefulTable{db: db, seq: seq, cache: c, logger: logger}, nil
}

// LookupByID returns the medium with the given id.
func (t *StatefulTable) LookupByID(ctx context.Context, id int64) (ir.StatefulEntity, bool, error) {
	if id <= 0 {
		return ir.StatefulEntity{}, false, ir.NewInvalidArgument("storage lookup by id", "id must be positive, got %d", id)
	}
	if e, ok := t.cache.LookupByID(id); ok {
		return e, true, nil
	}

	t.stateMu.RLock()
	defer t.stateMu.RUnlock()

	e := ir.StatefulEntity{ID: id}
	err := t.db.QueryRowContext(ctx, queryStorageByID, id).Scan(&e.Value, &e.State)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.StatefulEntity{}, false, nil
	}
	if err != nil {
		return ir.StatefulEntity{}, false, ir.NewStorageUnavailable("storage lookup by id", err)
	}
	t.cache.Insert(e)
	return e, true, nil
}

// Lookup returns the medium with the given value.
func (t *StatefulTable) Lookup(ctx context.Context, value string) (ir.StatefulEntity, bool, error) {
	if value == "" {
		return ir.StatefulEntity{}, false, ir.NewInvalidArgument("storage lookup", "value is required")
	}
	value = ir.NormalizeValue(value)
	if e, ok := t.cache.LookupByValue(value); ok {
		return e, true, nil
	}

	t.stateMu.RLock()
	defer t.stateMu.RUnlock()

	e := ir.StatefulEntity{Value: value}
	err := t.db.QueryRowContext(ctx, queryStorageByValue, value).Scan(&e.ID, &e.State)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.StatefulEntity{}, false, nil
	}
	if err != nil {
		return ir.StatefulEntity{}, false, ir.NewStorageUnavailable("storage lookup", err)
	}
	t.cache.Insert(e)
	return e, true, nil
}

// LookupOrCreate returns the medium for value, creating it with state if it
// does not exist. An existing medium keeps its state.
func (t *StatefulTable) LookupOrCreate(ctx context.Context, value string, state ir.StorageState) (ir.StatefulEntity, error) {
	w, release, err := t.seq.begin(ctx, "storage lookup or create")
	if err != nil {
		return ir.StatefulEntity{}, err
	}
	defer release()

	e, err := t.lookupOrCreate(ctx, w, value, state)
	if err != nil {
		return ir.StatefulEntity{}, err
	}
	if err := w.commit(); err != nil {
		return ir.StatefulEntity{}, err
	}
	return e, nil
}

func (t *StatefulTable) lookupOrCreate(ctx context.Context, w *writeTx, value string, state ir.StorageState) (ir.StatefulEntity, error) {
	const op = "storage lookup or create"
	if value == "" {
		return ir.StatefulEntity{}, ir.NewInvalidArgument(op, "value is required")
	}
	if err := checkMediumState(op, state); err != nil {
		return ir.StatefulEntity{}, err
	}
	value = ir.NormalizeValue(value)

	if e, ok := w.created(TableStorage, value); ok {
		return e.(ir.StatefulEntity), nil
	}
	if e, ok := t.cache.LookupByValue(value); ok {
		return e, nil
	}

	e := ir.StatefulEntity{Value: value}
	err := w.tx.QueryRowContext(ctx, queryStorageByValue, value).Scan(&e.ID, &e.State)
	switch {
	case err == nil:
		t.cache.Insert(e)
		return e, nil
	case !errors.Is(err, sql.ErrNoRows):
		return ir.StatefulEntity{}, ir.NewStorageUnavailable(op, err)
	}

	res, err := w.tx.ExecContext(ctx, queryStorageInsert, value, int32(state))
	if err != nil {
		return ir.StatefulEntity{}, ir.NewStorageUnavailable(op, err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return ir.StatefulEntity{}, ir.NewStorageUnavailable(op, fmt.Errorf("last insert id: %w", err))
	}
	e.State = int32(state)
	w.remember(TableStorage, value, e, func() { t.cache.Insert(e) })
	return e, nil
}

// SetState records the availability of a medium, creating it if unknown.
// The row and the cache entry change together: once SetState returns, no
// lookup observes the previous state.
func (t *StatefulTable) SetState(ctx context.Context, value string, state ir.StorageState) (ir.StatefulEntity, error) {
	const op = "set storage state"
	if value == "" {
		return ir.StatefulEntity{}, ir.NewInvalidArgument(op, "value is required")
	}
	if err := checkMediumState(op, state); err != nil {
		return ir.StatefulEntity{}, err
	}
	value = ir.NormalizeValue(value)

	w, release, err := t.seq.begin(ctx, op, &t.stateMu)
	if err != nil {
		return ir.StatefulEntity{}, err
	}
	defer release()

	e := ir.StatefulEntity{Value: value, State: int32(state)}
	if err := w.tx.QueryRowContext(ctx, queryStorageUpsert, value, int32(state)).Scan(&e.ID); err != nil {
		return ir.StatefulEntity{}, ir.NewStorageUnavailable(op, err)
	}
	w.onCommit = append(w.onCommit, func() { t.cache.Insert(e) })
	if err := w.commit(); err != nil {
		// The row may or may not have changed; drop the entry so the next
		// read goes to the table.
		t.cache.Evict(e.ID)
		return ir.StatefulEntity{}, err
	}

	t.logger.Debug("storage state updated", "medium", value, "state", state)
	return e, nil
}

func (t *StatefulTable) resolveIDs(ctx context.Context, ids []int64) (map[int64]ir.StatefulEntity, error) {
	out := make(map[int64]ir.StatefulEntity, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	var missing []any
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if e, ok := t.cache.LookupByID(id); ok {
			out[id] = e
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	t.stateMu.RLock()
	defer t.stateMu.RUnlock()

	rows, err := t.db.QueryContext(ctx, queryStorageInIDs+placeholders(len(missing))+")", missing...)
	if err != nil {
		return nil, ir.NewStorageUnavailable("storage resolve ids", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e ir.StatefulEntity
		if err := rows.Scan(&e.ID, &e.Value, &e.State); err != nil {
			return nil, ir.NewStorageUnavailable("storage resolve ids", err)
		}
		out[e.ID] = e
		t.cache.Insert(e)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageUnavailable("storage resolve ids", err)
	}
	return out, nil
}

// ClearCache drops all cached entries.
func (t *StatefulTable) ClearCache() {
	t.cache.Purge()
}

// CacheStats returns the cache statistics.
func (t *StatefulTable) CacheStats() cache.Stats {
	return t.cache.Stats()
}

// Count returns the number of persisted media.
func (t *StatefulTable) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.QueryRowContext(ctx, queryStorageCount).Scan(&n); err != nil {
		return 0, ir.NewStorageUnavailable("storage count", err)
	}
	return n, nil
}

func checkMediumState(op string, s ir.StorageState) error {
	if s != ir.StorageAvailable && s != ir.StorageNotAvailable {
		return ir.NewInvalidArgument(op, "medium state must be available or not-available, got %s", s)
	}
	return nil
}
