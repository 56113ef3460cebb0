package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore opens a store in a fresh temporary directory.
func createTestStore(t *testing.T, opts ...Option) *EventStore {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "activity.db"), opts...)
}

func openAt(t *testing.T, path string, opts ...Option) *EventStore {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func builtinHierarchy(t *testing.T) *ontology.Registry {
	t.Helper()
	reg, err := ontology.Builtin()
	if err != nil {
		t.Fatalf("Builtin() failed: %v", err)
	}
	return reg
}

func mustInsert(t *testing.T, s *EventStore, events ...*ir.Event) []int64 {
	t.Helper()
	ids, err := s.InsertEvents(context.Background(), events)
	if err != nil {
		t.Fatalf("InsertEvents() failed: %v", err)
	}
	return ids
}

// openEvent is the event from the store's package example: an actor opening
// one file.
func openEvent(ts int64) *ir.Event {
	return testutil.NewEvent(ts).
		Interpretation(ontology.ZG + "AccessEvent").
		Manifestation(ontology.ZG + "UserActivity").
		Actor("application://gedit.desktop").
		Subject("file:///home/user/notes.txt",
			testutil.WithInterpretation(ontology.NFO+"Document"),
			testutil.WithManifestation(ontology.NFO+"FileDataObject"),
			testutil.WithMimetype("text/plain"),
			testutil.WithOrigin("file:///home/user"),
			testutil.WithText("notes.txt")).
		Build()
}

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	inserted [][]*ir.Event
	deleted  []deleteNotice
}

type deleteNotice struct {
	span ir.TimeRange
	ids  []int64
}

func (n *recordingNotifier) NotifyInsert(_ context.Context, events []*ir.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inserted = append(n.inserted, events)
}

func (n *recordingNotifier) NotifyDelete(_ context.Context, span ir.TimeRange, ids []int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, deleteNotice{span: span, ids: ids})
}
