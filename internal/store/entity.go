package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/activitylog/internal/cache"
	"github.com/roach88/activitylog/internal/ir"
)

// EntityTable is one interning table: a bidirectional value/id dictionary
// backed by a uniqueness-enforcing table and an LRU cache. The cache is a
// view only; every answer can be re-derived from the table.
type EntityTable struct {
	name   string
	db     *sql.DB
	seq    *writeSequence
	q      entityQueries
	cache  *cache.BiCache[ir.Entity]
	group  singleflight.Group
	logger *slog.Logger
}

func newEntityTable(db *sql.DB, seq *writeSequence, name string, size int, logger *slog.Logger, opts ...cache.Option) (*EntityTable, error) {
	c, err := cache.New(size,
		func(e ir.Entity) int64 { return e.ID },
		func(e ir.Entity) string { return e.Value },
		opts...)
	if err != nil {
		return nil, fmt.Errorf("%s cache: %w", name, err)
	}
	return &EntityTable{
		name:   name,
		db:     db,
		seq:    seq,
		q:      newEntityQueries(name),
		cache:  c,
		logger: logger,
	}, nil
}

// Name returns the table name.
func (t *EntityTable) Name() string { return t.name }

// LookupByID returns the entity with the given id. ok is false when no
// such row exists.
func (t *EntityTable) LookupByID(ctx context.Context, id int64) (ir.Entity, bool, error) {
	if id <= 0 {
		return ir.Entity{}, false, ir.NewInvalidArgument(t.name+" lookup by id", "id must be positive, got %d", id)
	}
	if e, ok := t.cache.LookupByID(id); ok {
		return e, true, nil
	}

	v, err := t.shared(ctx, "id:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		var value string
		err := t.db.QueryRowContext(ctx, t.q.byID, id).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, ir.NewStorageUnavailable(t.name+" lookup by id", err)
		}
		e := ir.Entity{ID: id, Value: value}
		t.cache.Insert(e)
		return e, nil
	})
	if err != nil || v == nil {
		return ir.Entity{}, false, err
	}
	return v.(ir.Entity), true, nil
}

// Lookup returns the entity with the given value. ok is false when the
// value has never been interned.
func (t *EntityTable) Lookup(ctx context.Context, value string) (ir.Entity, bool, error) {
	if value == "" {
		return ir.Entity{}, false, ir.NewInvalidArgument(t.name+" lookup", "value is required")
	}
	value = ir.NormalizeValue(value)
	if e, ok := t.cache.LookupByValue(value); ok {
		return e, true, nil
	}

	v, err := t.shared(ctx, "value:"+value, func(ctx context.Context) (any, error) {
		var id int64
		err := t.db.QueryRowContext(ctx, t.q.byValue, value).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, ir.NewStorageUnavailable(t.name+" lookup", err)
		}
		e := ir.Entity{ID: id, Value: value}
		t.cache.Insert(e)
		return e, nil
	})
	if err != nil || v == nil {
		return ir.Entity{}, false, err
	}
	return v.(ir.Entity), true, nil
}

// shared collapses concurrent cold lookups of the same key into one query.
// The query runs detached from any single caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (t *EntityTable) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := t.group.DoChan(key, func() (any, error) { return fn(detached) })
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s lookup: %w", t.name, ctx.Err())
	}
}

// LookupOrCreate returns the entity for value, creating it if needed. It
// runs in its own pass of the write sequence.
func (t *EntityTable) LookupOrCreate(ctx context.Context, value string) (ir.Entity, error) {
	op := t.name + " lookup or create"
	w, release, err := t.seq.begin(ctx, op)
	if err != nil {
		return ir.Entity{}, err
	}
	defer release()

	e, err := t.lookupOrCreate(ctx, w, value)
	if err != nil {
		return ir.Entity{}, err
	}
	if err := w.commit(); err != nil {
		return ir.Entity{}, err
	}
	return e, nil
}

// lookupOrCreate interns value inside an open write pass.
func (t *EntityTable) lookupOrCreate(ctx context.Context, w *writeTx, value string) (ir.Entity, error) {
	op := t.name + " lookup or create"
	if value == "" {
		return ir.Entity{}, ir.NewInvalidArgument(op, "value is required")
	}
	value = ir.NormalizeValue(value)

	if e, ok := w.created(t.name, value); ok {
		return e.(ir.Entity), nil
	}
	if e, ok := t.cache.LookupByValue(value); ok {
		return e, nil
	}

	// Rows found here were committed by an earlier pass, so they may be
	// cached right away.
	id, found, err := t.selectID(ctx, w.tx, value)
	if err != nil {
		return ir.Entity{}, ir.NewStorageUnavailable(op, err)
	}
	if found {
		e := ir.Entity{ID: id, Value: value}
		t.cache.Insert(e)
		return e, nil
	}

	res, err := w.tx.ExecContext(ctx, t.q.insert, value)
	if err != nil {
		if !isUniqueViolation(err) {
			return ir.Entity{}, ir.NewStorageUnavailable(op, err)
		}
		// The cache said miss and the select said miss, yet the insert
		// collided. Recover from the table and report the inconsistency.
		t.logger.Warn("interning conflict recovered by lookup",
			"table", t.name,
			"value", value,
			"error", ir.NewIntegrityViolation(op, err))
		id, found, err := t.selectID(ctx, w.tx, value)
		if err != nil {
			return ir.Entity{}, ir.NewStorageUnavailable(op, fmt.Errorf("re-resolve after conflict: %w", err))
		}
		if !found {
			return ir.Entity{}, ir.NewStorageUnavailable(op, fmt.Errorf("re-resolve after conflict: %q not found", value))
		}
		e := ir.Entity{ID: id, Value: value}
		t.cache.Insert(e)
		return e, nil
	}

	id, err = res.LastInsertId()
	if err != nil {
		return ir.Entity{}, ir.NewStorageUnavailable(op, fmt.Errorf("last insert id: %w", err))
	}
	e := ir.Entity{ID: id, Value: value}
	w.remember(t.name, value, e, func() { t.cache.Insert(e) })
	return e, nil
}

func (t *EntityTable) selectID(ctx context.Context, q querier, value string) (int64, bool, error) {
	var id int64
	err := q.QueryRowContext(ctx, t.q.byValue, value).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// resolveIDs maps every id to its entity, reading cache misses in one
// query. Ids with no row are absent from the result.
func (t *EntityTable) resolveIDs(ctx context.Context, ids []int64) (map[int64]ir.Entity, error) {
	out := make(map[int64]ir.Entity, len(ids))
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

	rows, err := t.db.QueryContext(ctx, t.q.inIDs+placeholders(len(missing))+")", missing...)
	if err != nil {
		return nil, ir.NewStorageUnavailable(t.name+" resolve ids", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e ir.Entity
		if err := rows.Scan(&e.ID, &e.Value); err != nil {
			return nil, ir.NewStorageUnavailable(t.name+" resolve ids", err)
		}
		out[e.ID] = e
		t.cache.Insert(e)
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageUnavailable(t.name+" resolve ids", err)
	}
	return out, nil
}

// ClearCache drops all cached entries. Persisted rows are untouched.
func (t *EntityTable) ClearCache() {
	t.cache.Purge()
}

// CacheStats returns the cache statistics.
func (t *EntityTable) CacheStats() cache.Stats {
	return t.cache.Stats()
}

// CacheLen returns the number of cached entries.
func (t *EntityTable) CacheLen() int {
	return t.cache.Len()
}

// Count returns the number of persisted rows.
func (t *EntityTable) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.QueryRowContext(ctx, t.q.count).Scan(&n); err != nil {
		return 0, ir.NewStorageUnavailable(t.name+" count", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
