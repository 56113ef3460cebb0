// Package store provides the SQLite-backed normalized activity event store.
//
// The store keeps:
//   - Entity tables: uri, interpretation, manifestation, mimetype, actor
//     and text, each a unique value keyed by an autoincrement id
//   - Storage: media with a mutable availability state
//   - Payload: opaque blobs addressed by id
//   - Event: one row per (event, subject), holding interned ids only
//
// # Write Sequence
//
// Every write (entity creation, event append, event delete, storage state
// change) runs inside one serialized pass that owns a transaction.
// Interning is check-then-insert; the pass is what makes that safe. An
// InsertEvents call is atomic as a whole: readers see all of its events or
// none of them.
//
// # Caches
//
// Each entity table fronts its rows with a bounded LRU cache indexed by id
// and by value. Caches are views only. Entities created inside a pass are
// cached after commit, so a rollback never leaves an id in the cache that
// the table does not hold. ClearCaches may be called at any time.
//
// # Event Ids
//
// Ids are allocated in input order from a counter seeded with the highest
// id ever committed. A watermark row survives deletion of the newest
// events, so ids are never handed out twice, even across restarts.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The schema is versioned with golang-migrate from the embedded migrations
// directory.
package store
