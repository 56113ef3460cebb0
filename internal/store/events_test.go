package store

import (
	"bytes"
	"context"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/queryir"
	"github.com/roach88/activitylog/internal/testutil"
)

func TestInsertEvents_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := openEvent(1_700_000_000_000)
	ids := mustInsert(t, s, in)
	if !slices.Equal(ids, []int64{1}) {
		t.Fatalf("InsertEvents() = %v, want [1]", ids)
	}

	out, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if len(out) != 1 || out[0] == nil {
		t.Fatalf("GetEvents() = %v, want one event", out)
	}

	if out[0].ID != ids[0] {
		t.Errorf("ID = %d, want %d", out[0].ID, ids[0])
	}
	if got, want := testutil.Values(out[0]), testutil.Values(in); !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if out[0].Actor.ID <= 0 {
		t.Errorf("Actor.ID = %d, want positive", out[0].Actor.ID)
	}
	if out[0].Subjects[0].URI.ID <= 0 {
		t.Errorf("Subjects[0].URI.ID = %d, want positive", out[0].Subjects[0].URI.ID)
	}
	if !out[0].Subjects[0].Storage.IsZero() {
		t.Errorf("Subjects[0].Storage = %+v, want zero", out[0].Subjects[0].Storage)
	}

	// Re-inserting the same event reuses every interned value.
	before, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	mustInsert(t, s, openEvent(1_700_000_000_001))
	after, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	for i := range before.Tables {
		if before.Tables[i].Rows != after.Tables[i].Rows {
			t.Errorf("%s rows = %d, want %d", before.Tables[i].Name, after.Tables[i].Rows, before.Tables[i].Rows)
		}
	}
}

func TestInsertEvents_IDsIncreaseInInputOrder(t *testing.T) {
	s := createTestStore(t)

	if ids := mustInsert(t, s, openEvent(300), openEvent(100), openEvent(200)); !slices.Equal(ids, []int64{1, 2, 3}) {
		t.Errorf("InsertEvents() = %v, want [1 2 3]", ids)
	}
	if ids := mustInsert(t, s, openEvent(50)); !slices.Equal(ids, []int64{4}) {
		t.Errorf("InsertEvents() = %v, want [4]", ids)
	}
}

func TestInsertEvents_MultipleSubjectsKeepOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := testutil.NewEvent(100).
		Actor("app://x").
		Subject("file:///c").
		Subject("file:///a", testutil.WithStorage("usb-1")).
		Subject("file:///b", testutil.WithMimetype("image/png")).
		Build()
	ids := mustInsert(t, s, in)

	out, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	subjects := out[0].Subjects
	if len(subjects) != 3 {
		t.Fatalf("len(Subjects) = %d, want 3", len(subjects))
	}
	for i, want := range []string{"file:///c", "file:///a", "file:///b"} {
		if subjects[i].URI.Value != want {
			t.Errorf("Subjects[%d].URI = %q, want %q", i, subjects[i].URI.Value, want)
		}
	}
	if subjects[1].Storage.Value != "usb-1" {
		t.Errorf("Subjects[1].Storage = %q, want usb-1", subjects[1].Storage.Value)
	}
	if subjects[1].StorageState != ir.StorageAvailable {
		t.Errorf("Subjects[1].StorageState = %v, want available", subjects[1].StorageState)
	}
	if subjects[2].Mimetype.Value != "image/png" {
		t.Errorf("Subjects[2].Mimetype = %q, want image/png", subjects[2].Mimetype.Value)
	}
}

func TestInsertEvents_InvalidArguments(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		events []*ir.Event
	}{
		{"nil event", []*ir.Event{nil}},
		{"no subjects", []*ir.Event{testutil.NewEvent(1).Actor("app://x").Build()}},
		{"negative timestamp", []*ir.Event{testutil.NewEvent(-1).Subject("file:///a").Build()}},
		{"one bad event rejects the batch", []*ir.Event{openEvent(1), testutil.NewEvent(2).Build()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.InsertEvents(ctx, tt.events); !ir.IsInvalidArgument(err) {
				t.Errorf("InsertEvents() error = %v, want INVALID_ARGUMENT", err)
			}
		})
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if st.Events != 0 || st.LastEventID != 0 {
		t.Errorf("Stats() events = %d, last id = %d; want 0, 0", st.Events, st.LastEventID)
	}
}

func TestInsertEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	ids, err := s.InsertEvents(context.Background(), nil)
	if err != nil {
		t.Fatalf("InsertEvents(nil) failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("InsertEvents(nil) = %v, want empty", ids)
	}
}

func TestInsertEvents_FillsZeroTimestamp(t *testing.T) {
	clock := testutil.NewDeterministicClock(1_700_000_000_000)
	s := createTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	ids := mustInsert(t, s, openEvent(0), openEvent(42))

	out, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if out[0].Timestamp != 1_700_000_000_000 {
		t.Errorf("out[0].Timestamp = %d, want clock time", out[0].Timestamp)
	}
	if out[1].Timestamp != 42 {
		t.Errorf("out[1].Timestamp = %d, want 42", out[1].Timestamp)
	}
}

func TestInsertEvents_AtomicOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	prior := mustInsert(t, s, openEvent(50))

	_, err := s.DB().Exec(`CREATE TRIGGER fail_on_c BEFORE INSERT ON event
		WHEN NEW.subj_id = (SELECT id FROM uri WHERE value = 'file:///c')
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	if err != nil {
		t.Fatalf("CREATE TRIGGER failed: %v", err)
	}

	failing := testutil.NewEvent(100).
		Actor("app://atomic").
		Subject("file:///a").
		Subject("file:///b").
		Subject("file:///c").
		Build()
	_, err = s.InsertEvents(ctx, []*ir.Event{openEvent(60), failing})
	if !ir.IsStorageUnavailable(err) {
		t.Fatalf("InsertEvents() error = %v, want STORAGE_UNAVAILABLE", err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if st.Events != 1 {
		t.Errorf("Stats().Events = %d, want 1", st.Events)
	}

	// Entities created by the rolled-back pass exist neither in the tables
	// nor in the caches.
	for _, v := range []string{"file:///a", "file:///b", "file:///c"} {
		if _, ok, err := s.Table(TableURI).Lookup(ctx, v); err != nil || ok {
			t.Errorf("Lookup(%q) = _, %v, %v; want not found", v, ok, err)
		}
	}
	if _, ok, err := s.Table(TableActor).Lookup(ctx, "app://atomic"); err != nil || ok {
		t.Errorf("Lookup(app://atomic) = _, %v, %v; want not found", ok, err)
	}

	if _, err := s.DB().Exec(`DROP TRIGGER fail_on_c`); err != nil {
		t.Fatalf("DROP TRIGGER failed: %v", err)
	}
	ids := mustInsert(t, s, failing)
	if ids[0] <= prior[0] {
		t.Errorf("id after failure = %d, want > %d", ids[0], prior[0])
	}

	out, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if len(out[0].Subjects) != 3 {
		t.Errorf("len(Subjects) = %d, want 3", len(out[0].Subjects))
	}
}

func TestGetEvents_OrderAndMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := mustInsert(t, s, openEvent(100), openEvent(200))

	out, err := s.GetEvents(ctx, []int64{ids[1], 999, ids[0], 0, -5})
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("len(GetEvents()) = %d, want 5", len(out))
	}
	if out[0] == nil || out[0].ID != ids[1] {
		t.Errorf("out[0] = %v, want event %d", out[0], ids[1])
	}
	if out[2] == nil || out[2].ID != ids[0] {
		t.Errorf("out[2] = %v, want event %d", out[2], ids[0])
	}
	for _, i := range []int{1, 3, 4} {
		if out[i] != nil {
			t.Errorf("out[%d] = %v, want nil", i, out[i])
		}
	}
}

func TestGetEvents_ManyIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	events := make([]*ir.Event, factChunk+25)
	for i := range events {
		events[i] = openEvent(int64(i + 1))
	}
	ids := mustInsert(t, s, events...)

	out, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if len(out) != len(ids) {
		t.Fatalf("len(GetEvents()) = %d, want %d", len(out), len(ids))
	}
	for i, ev := range out {
		if ev == nil || ev.ID != ids[i] {
			t.Fatalf("out[%d] = %v, want event %d", i, ev, ids[i])
		}
	}
}

func TestPayloads(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	blob := []byte("opaque\x00blob")
	in := testutil.NewEvent(100).Subject("file:///a").Payload(blob).Build()
	ids := mustInsert(t, s, in, openEvent(200))

	got, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if !bytes.Equal(got[0].Payload, blob) {
		t.Errorf("Payload = %q, want %q", got[0].Payload, blob)
	}
	if !got[0].HasPayload() || got[1].HasPayload() {
		t.Errorf("HasPayload() = %v, %v; want true, false", got[0].HasPayload(), got[1].HasPayload())
	}

	q := queryir.NewQuery()
	q.ResultType = ir.LeastRecentEvents
	found, err := s.FindEvents(ctx, q)
	if err != nil {
		t.Fatalf("FindEvents() failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("len(FindEvents()) = %d, want 2", len(found))
	}
	if found[0].Payload != nil {
		t.Errorf("Payload without IncludePayload = %q, want nil", found[0].Payload)
	}
	if found[0].PayloadID != got[0].PayloadID {
		t.Errorf("PayloadID = %d, want %d", found[0].PayloadID, got[0].PayloadID)
	}

	q.IncludePayload = true
	found, err = s.FindEvents(ctx, q)
	if err != nil {
		t.Fatalf("FindEvents() failed: %v", err)
	}
	if !bytes.Equal(found[0].Payload, blob) {
		t.Errorf("Payload with IncludePayload = %q, want %q", found[0].Payload, blob)
	}
}

func TestDeleteEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := mustInsert(t, s, openEvent(100), openEvent(200), openEvent(300))

	n, err := s.DeleteEvents(ctx, []int64{ids[0], ids[2], 999})
	if err != nil {
		t.Fatalf("DeleteEvents() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteEvents() = %d, want 2", n)
	}

	out, err := s.GetEvents(ctx, ids)
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if out[0] != nil || out[1] == nil || out[2] != nil {
		t.Errorf("GetEvents() after delete = %v, want [nil event nil]", out)
	}

	// Interned values outlive the events that referenced them.
	if _, ok, err := s.Table(TableActor).Lookup(ctx, "application://gedit.desktop"); err != nil || !ok {
		t.Errorf("Lookup(actor) = _, %v, %v; want found", ok, err)
	}

	if n, err = s.DeleteEvents(ctx, []int64{ids[0]}); err != nil || n != 0 {
		t.Errorf("DeleteEvents(deleted) = %d, %v; want 0, nil", n, err)
	}
	if n, err = s.DeleteEvents(ctx, nil); err != nil || n != 0 {
		t.Errorf("DeleteEvents(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestNotifier(t *testing.T) {
	n := &recordingNotifier{}
	s := createTestStore(t, WithNotifier(n))
	ctx := context.Background()

	ids := mustInsert(t, s, openEvent(100), openEvent(200))
	if len(n.inserted) != 1 || len(n.inserted[0]) != 2 {
		t.Fatalf("inserted notifications = %v, want one batch of 2", n.inserted)
	}
	if n.inserted[0][0].ID != ids[0] {
		t.Errorf("notified id = %d, want %d", n.inserted[0][0].ID, ids[0])
	}
	if got := n.inserted[0][1].Actor.Value; got != "application://gedit.desktop" {
		t.Errorf("notified actor = %q, want interned value", got)
	}

	if _, err := s.DeleteEvents(ctx, []int64{ids[1], ids[0]}); err != nil {
		t.Fatalf("DeleteEvents() failed: %v", err)
	}
	if len(n.deleted) != 1 {
		t.Fatalf("len(deleted) = %d, want 1", len(n.deleted))
	}
	if want := (ir.TimeRange{Start: 100, End: 200}); n.deleted[0].span != want {
		t.Errorf("delete span = %+v, want %+v", n.deleted[0].span, want)
	}
	got := slices.Clone(n.deleted[0].ids)
	slices.Sort(got)
	if !slices.Equal(got, ids) {
		t.Errorf("deleted ids = %v, want %v", got, ids)
	}

	// Deleting nothing notifies nothing.
	if _, err := s.DeleteEvents(ctx, []int64{ids[0]}); err != nil {
		t.Fatalf("DeleteEvents() failed: %v", err)
	}
	if len(n.deleted) != 1 {
		t.Errorf("len(deleted) = %d, want 1", len(n.deleted))
	}
}

func TestNotifier_ConcurrentInsertsArriveInCommitOrder(t *testing.T) {
	n := &recordingNotifier{}
	s := createTestStore(t, WithNotifier(n))
	ctx := context.Background()

	const writers, batches = 8, 10
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range batches {
				ts := int64(w*batches + b + 1)
				if _, err := s.InsertEvents(ctx, []*ir.Event{openEvent(ts), openEvent(ts)}); err != nil {
					t.Errorf("InsertEvents() failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var seen []int64
	for _, batch := range n.inserted {
		for _, ev := range batch {
			seen = append(seen, ev.ID)
		}
	}
	if len(seen) != writers*batches*2 {
		t.Fatalf("notified %d events, want %d", len(seen), writers*batches*2)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("notification %d has id %d after %d, want commit order", i, seen[i], seen[i-1])
		}
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := createTestStore(t, WithMetrics(reg))
	ctx := context.Background()

	ids := mustInsert(t, s, openEvent(100), openEvent(200))
	if _, err := s.DeleteEvents(ctx, ids[:1]); err != nil {
		t.Fatalf("DeleteEvents() failed: %v", err)
	}
	if _, err := s.FindEventIDs(ctx, queryir.NewQuery()); err != nil {
		t.Fatalf("FindEventIDs() failed: %v", err)
	}

	if got := promtestutil.ToFloat64(s.metrics.inserted); got != 2 {
		t.Errorf("inserted = %v, want 2", got)
	}
	if got := promtestutil.ToFloat64(s.metrics.deleted); got != 1 {
		t.Errorf("deleted = %v, want 1", got)
	}
	if got := promtestutil.CollectAndCount(s.metrics.queryDuration); got != 1 {
		t.Errorf("query duration series = %d, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"activitylog_cache_hits_total", "activitylog_store_events_inserted_total"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestReconstruct_MissingEntityIsCorrupt(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ids := mustInsert(t, s, openEvent(100))

	for _, stmt := range []string{"PRAGMA foreign_keys = OFF", "DELETE FROM mimetype"} {
		if _, err := s.DB().Exec(stmt); err != nil {
			t.Fatalf("%s failed: %v", stmt, err)
		}
	}
	s.ClearCaches()

	if _, err := s.GetEvents(ctx, ids); !ir.IsCorruptState(err) {
		t.Errorf("GetEvents() error = %v, want CORRUPT_STATE", err)
	}
}
