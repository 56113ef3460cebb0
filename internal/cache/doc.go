// Package cache provides the bounded write-through caches that sit in front
// of the interning tables.
//
// A BiCache indexes one set of entries two ways, by id and by value, and
// evicts both directions together from a single least-recently-used order.
// Touching an entry through either key refreshes it.
//
// Caches are non-authoritative. Every entry must be re-derivable from the
// persisted tables, so a cache may be purged at any time; only performance
// is affected. Callers insert an entry only after the row backing it is
// committed.
//
// Statistics are always collected. Prometheus metrics are optional and
// enabled with WithMetrics.
package cache
