package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/queryir"
)

// Handler receives the notifications of one monitor. Calls for a monitor
// are made from a single goroutine, in commit order.
type Handler interface {
	// NotifyInsert receives the matching inserted events. span covers
	// their timestamps.
	NotifyInsert(ctx context.Context, span ir.TimeRange, events []*ir.Event)

	// NotifyDelete receives the ids of deleted events. span covers the
	// deleted events' timestamps and overlaps the monitor's range.
	NotifyDelete(ctx context.Context, span ir.TimeRange, ids []int64)
}

// Info describes an installed monitor.
type Info struct {
	ID        string
	TimeRange ir.TimeRange
	Templates []queryir.EventTemplate
	Pending   int
}

type monitor struct {
	id        string
	timeRange ir.TimeRange
	templates []queryir.EventTemplate
	handler   Handler
	queue     *notificationQueue
}

// Hub tracks installed monitors and fans notifications out to them.
// It implements store.Notifier.
//
// Safe for concurrent use.
type Hub struct {
	mu       sync.RWMutex
	monitors map[string]*monitor
	closed   bool
	wg       sync.WaitGroup

	matcher *queryir.Matcher
	logger  *slog.Logger
}

// Option configures a Hub.
type Option func(*hubConfig)

type hubConfig struct {
	hierarchy ontology.Hierarchy
	logger    *slog.Logger
}

// WithHierarchy sets the hierarchy consulted by hierarchical template
// filters. It should be the one the store queries with.
func WithHierarchy(h ontology.Hierarchy) Option {
	return func(c *hubConfig) { c.hierarchy = h }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *hubConfig) { c.logger = l }
}

// NewHub creates a Hub with no monitors.
func NewHub(opts ...Option) *Hub {
	cfg := hubConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Hub{
		monitors: make(map[string]*monitor),
		matcher:  queryir.NewMatcher(cfg.hierarchy),
		logger:   cfg.logger,
	}
}

// Install registers a monitor and returns its id. templates follow the
// query rules: OR-combined, empty matches every event.
func (h *Hub) Install(timeRange ir.TimeRange, templates []queryir.EventTemplate, handler Handler) (string, error) {
	const op = "install monitor"
	if handler == nil {
		return "", ir.NewInvalidArgument(op, "handler is required")
	}
	q := queryir.NewQuery(templates...)
	q.TimeRange = timeRange
	if err := queryir.Validate(q); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%s: generate id: %w", op, err)
	}
	m := &monitor{
		id:        id.String(),
		timeRange: timeRange,
		templates: append([]queryir.EventTemplate(nil), templates...),
		handler:   handler,
		queue:     newNotificationQueue(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ir.NewInvalidArgument(op, "hub is closed")
	}
	h.monitors[m.id] = m
	h.wg.Add(1)
	go h.run(m)

	h.logger.Debug("monitor installed", "monitor_id", m.id, "templates", len(templates),
		"start", timeRange.Start, "end", timeRange.End)
	return m.id, nil
}

// Remove uninstalls the monitor with the given id. Notifications already
// queued for it are still delivered. Returns false for an unknown id.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	m, ok := h.monitors[id]
	delete(h.monitors, id)
	h.mu.Unlock()

	if !ok {
		return false
	}
	m.queue.Close()
	h.logger.Debug("monitor removed", "monitor_id", id)
	return true
}

// List returns the installed monitors ordered by id, which for UUIDv7 ids
// is installation order.
func (h *Hub) List() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Info, 0, len(h.monitors))
	for _, m := range h.monitors {
		out = append(out, Info{
			ID:        m.id,
			TimeRange: m.timeRange,
			Templates: m.templates,
			Pending:   m.queue.Len(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of installed monitors.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.monitors)
}

// NotifyInsert queues the matching subset of events for every monitor.
func (h *Hub) NotifyInsert(ctx context.Context, events []*ir.Event) {
	if len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.monitors {
		var matched []*ir.Event
		var span ir.TimeRange
		for _, ev := range events {
			if !m.timeRange.Contains(ev.Timestamp) {
				continue
			}
			if !h.matcher.MatchAny(ev, m.templates, queryir.StorageFilterAny) {
				continue
			}
			if len(matched) == 0 {
				span = ir.TimeRange{Start: ev.Timestamp, End: ev.Timestamp}
			} else {
				span = span.Span(ev.Timestamp)
			}
			matched = append(matched, ev)
		}
		if len(matched) == 0 {
			continue
		}
		m.queue.Enqueue(notification{kind: kindInsert, span: span, events: matched, ctx: ctx})
	}
}

// NotifyDelete queues the deleted ids for every monitor whose range
// overlaps span. Deleted events can no longer be matched against
// templates, so the time range is the only filter.
func (h *Hub) NotifyDelete(ctx context.Context, span ir.TimeRange, ids []int64) {
	if len(ids) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.monitors {
		if !m.timeRange.Overlaps(span) {
			continue
		}
		m.queue.Enqueue(notification{kind: kindDelete, span: span, ids: ids, ctx: ctx})
	}
}

// Close removes every monitor and waits until their queued notifications
// have been delivered.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	monitors := h.monitors
	h.monitors = make(map[string]*monitor)
	h.mu.Unlock()

	for _, m := range monitors {
		m.queue.Close()
	}
	h.wg.Wait()
}

// run delivers m's notifications until its queue is closed and drained.
func (h *Hub) run(m *monitor) {
	defer h.wg.Done()
	for {
		h.drain(m)
		if _, open := <-m.queue.Wait(); !open {
			h.drain(m)
			return
		}
	}
}

func (h *Hub) drain(m *monitor) {
	for {
		n, ok := m.queue.TryDequeue()
		if !ok {
			return
		}
		h.deliver(m, n)
	}
}

func (h *Hub) deliver(m *monitor, n notification) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("monitor handler panicked", "monitor_id", m.id, "panic", r)
		}
	}()
	switch n.kind {
	case kindInsert:
		m.handler.NotifyInsert(n.ctx, n.span, n.events)
	case kindDelete:
		m.handler.NotifyDelete(n.ctx, n.span, n.ids)
	}
}
