// Package ir provides the shared data model for the activity log.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Entity ids are int64 SQLite rowids; 0 means "no entity" and is never
//     a valid persisted id
//   - Timestamps are int64 milliseconds since the Unix epoch
//   - Interned values are NFC normalized before they reach the store
//   - Errors crossing package boundaries are *Error values with a Code
//   - All JSON and YAML tags use snake_case
package ir
