package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/activitylog/internal/cache"
	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/querysql"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Entity table names. They double as the table names the query compiler
// resolves literals against.
const (
	TableURI            = "uri"
	TableInterpretation = "interpretation"
	TableManifestation  = "manifestation"
	TableMimetype       = "mimetype"
	TableActor          = "actor"
	TableText           = "text"
	TableStorage        = "storage"
)

var entityTableNames = []string{
	TableURI, TableInterpretation, TableManifestation,
	TableMimetype, TableActor, TableText,
}

// Notifier receives committed changes. Calls are made right after commit
// while the write sequence is still held, so they arrive in commit order.
// Implementations must return quickly and must not call back into the
// store synchronously.
type Notifier interface {
	NotifyInsert(ctx context.Context, events []*ir.Event)
	NotifyDelete(ctx context.Context, span ir.TimeRange, ids []int64)
}

// EventStore is the normalized activity event store. It owns the entity
// tables, their caches, the payload table, the id allocator and the event
// fact table. All writes go through one serialized write sequence.
//
// Safe for concurrent use.
type EventStore struct {
	db *sql.DB

	tables   map[string]*EntityTable
	storage  *StatefulTable
	payloads *payloadStore
	facts    *factStore
	ids      *idAllocator
	compiler *querysql.Compiler
	rebuild  reconstructor

	// seq serializes entity creation, event append, event delete and
	// storage state updates.
	seq *writeSequence

	logger    *slog.Logger
	now       func() time.Time
	cacheSize int
	registry  prometheus.Registerer
	hierarchy ontology.Hierarchy
	notifier  Notifier
	busyMS    int
	metrics   *storeMetrics
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *EventStore) { s.logger = l }
}

// WithCacheSize sets the per-table entity cache capacity.
// Default: cache.DefaultSize.
func WithCacheSize(n int) Option {
	return func(s *EventStore) { s.cacheSize = n }
}

// WithMetrics registers cache and store metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *EventStore) { s.registry = reg }
}

// WithClock sets the time source used to stamp events inserted with a zero
// timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *EventStore) { s.now = now }
}

// WithHierarchy sets the interpretation/manifestation hierarchy consulted
// by queries. Default: no hierarchy, literals match exactly.
func WithHierarchy(h ontology.Hierarchy) Option {
	return func(s *EventStore) { s.hierarchy = h }
}

// WithNotifier sets the receiver of insert and delete notifications.
func WithNotifier(n Notifier) Option {
	return func(s *EventStore) { s.notifier = n }
}

// WithBusyTimeout sets the SQLite busy timeout. Default: 5s.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *EventStore) { s.busyMS = int(d / time.Millisecond) }
}

// Open creates or opens a SQLite database at the given path, applies
// pragmas and pending migrations, and seeds the id allocator.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - a busy timeout for lock contention
//   - foreign key enforcement
func Open(ctx context.Context, path string, opts ...Option) (*EventStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, ir.NewStorageUnavailable("open store", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, ir.NewStorageUnavailable("open store", err)
	}

	// SQLite allows one writer; a single connection also keeps the
	// pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s, err := newEventStore(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("event store opened", "path", path, "last_event_id", s.ids.Current())
	return s, nil
}

// newEventStore wires tables, caches and pragmas over db without touching
// the schema.
func newEventStore(ctx context.Context, db *sql.DB, opts ...Option) (*EventStore, error) {
	s := &EventStore{
		db:        db,
		tables:    make(map[string]*EntityTable, len(entityTableNames)),
		seq:       &writeSequence{db: db},
		logger:    slog.Default(),
		now:       time.Now,
		cacheSize: cache.DefaultSize,
		hierarchy: ontology.Flat{},
		busyMS:    5000,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.applyPragmas(ctx); err != nil {
		return nil, err
	}

	if s.registry != nil {
		m, err := newStoreMetrics(s.registry)
		if err != nil {
			return nil, fmt.Errorf("register store metrics: %w", err)
		}
		s.metrics = m
	}
	optsFor := func(table string) []cache.Option {
		if s.registry == nil {
			return nil
		}
		return []cache.Option{cache.WithMetrics(s.registry, table)}
	}

	for _, name := range entityTableNames {
		t, err := newEntityTable(db, s.seq, name, s.cacheSize, s.logger, optsFor(name)...)
		if err != nil {
			return nil, err
		}
		s.tables[name] = t
	}
	st, err := newStatefulTable(db, s.seq, s.cacheSize, s.logger, optsFor(TableStorage)...)
	if err != nil {
		return nil, err
	}
	s.storage = st
	s.payloads = &payloadStore{db: db}
	s.facts = &factStore{db: db}
	s.compiler = querysql.NewCompiler(s, s.hierarchy)
	s.rebuild = reconstructor{s: s}
	return s, nil
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB. Writes through it bypass the entity
// caches; call ClearCaches afterwards.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

func (s *EventStore) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyMS),
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return ir.NewStorageUnavailable("apply pragmas", fmt.Errorf("%q: %w", pragma, err))
		}
	}
	return nil
}

// migrate applies pending schema migrations from the embedded files.
func (s *EventStore) migrate() error {
	const op = "migrate schema"

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("%s: create source: %w", op, err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return ir.NewStorageUnavailable(op, fmt.Errorf("create driver: %w", err))
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return ir.NewStorageUnavailable(op, err)
	}
	// m.Close would close s.db through the driver; the source needs no
	// cleanup.

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return ir.NewStorageUnavailable(op, fmt.Errorf("read version: %w", err))
	}
	if dirty {
		return ir.NewCorruptState(op, "schema version %d is dirty", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("schema up to date", "version", version)
			return nil
		}
		return ir.NewStorageUnavailable(op, err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return ir.NewStorageUnavailable(op, fmt.Errorf("read version: %w", err))
	}
	s.logger.Info("schema migrated", "from_version", version, "to_version", newVersion)
	return nil
}

// seed initializes the id allocator from persisted state.
func (s *EventStore) seed(ctx context.Context) error {
	last, err := s.facts.maxID(ctx)
	if err != nil {
		return err
	}
	s.ids = newIDAllocator(last)
	return nil
}

// ResolveID implements querysql.Resolver over the entity tables.
func (s *EventStore) ResolveID(ctx context.Context, table, value string) (int64, bool, error) {
	if table == TableStorage {
		e, ok, err := s.storage.Lookup(ctx, value)
		return e.ID, ok, err
	}
	t, ok := s.tables[table]
	if !ok {
		return 0, false, ir.NewInvalidArgument("resolve id", "unknown table %q", table)
	}
	e, ok, err := t.Lookup(ctx, value)
	return e.ID, ok, err
}

// Table returns the entity table with the given name, or nil.
func (s *EventStore) Table(name string) *EntityTable {
	return s.tables[name]
}

// Storage returns the stateful storage-medium table.
func (s *EventStore) Storage() *StatefulTable {
	return s.storage
}

// ClearCaches drops every cached entity. Persisted rows are untouched.
func (s *EventStore) ClearCaches() {
	for _, t := range s.tables {
		t.ClearCache()
	}
	s.storage.ClearCache()
	s.logger.Debug("entity caches cleared")
}
