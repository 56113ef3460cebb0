// Package monitor delivers insert and delete notifications to subscribers.
//
// A monitor is a time range plus a list of event templates. The Hub
// implements store.Notifier: after each committed insert it hands every
// monitor the inserted events that fall in its range and match any of its
// templates, and after each delete it hands the deleted ids to every
// monitor whose range overlaps the deleted events.
//
// # Delivery
//
// Each monitor owns an unbounded FIFO queue and one goroutine draining it,
// so notifications reach a handler in commit order and a slow handler
// never holds up the store or other monitors. Removing a monitor stops
// accepting new notifications; those already queued are still delivered.
package monitor
