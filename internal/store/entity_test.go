package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/roach88/activitylog/internal/ir"
)

func TestEntityTable_LookupOrCreateIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	uris := s.Table(TableURI)

	first, err := uris.LookupOrCreate(ctx, "file:///a")
	if err != nil {
		t.Fatalf("LookupOrCreate() failed: %v", err)
	}
	if first.ID <= 0 {
		t.Errorf("first.ID = %d, want positive", first.ID)
	}

	again, err := uris.LookupOrCreate(ctx, "file:///a")
	if err != nil {
		t.Fatalf("LookupOrCreate() again failed: %v", err)
	}
	if again != first {
		t.Errorf("second LookupOrCreate() = %+v, want %+v", again, first)
	}

	// The table, not the cache, is the source of truth.
	s.ClearCaches()
	afterClear, err := uris.LookupOrCreate(ctx, "file:///a")
	if err != nil {
		t.Fatalf("LookupOrCreate() after clear failed: %v", err)
	}
	if afterClear != first {
		t.Errorf("LookupOrCreate() after clear = %+v, want %+v", afterClear, first)
	}

	n, err := uris.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestEntityTable_LookupBothDirections(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	actors := s.Table(TableActor)

	created, err := actors.LookupOrCreate(ctx, "application://gedit.desktop")
	if err != nil {
		t.Fatalf("LookupOrCreate() failed: %v", err)
	}
	actors.ClearCache()

	byID, ok, err := actors.LookupByID(ctx, created.ID)
	if err != nil || !ok {
		t.Fatalf("LookupByID(%d) = _, %v, %v; want found", created.ID, ok, err)
	}
	if byID != created {
		t.Errorf("LookupByID() = %+v, want %+v", byID, created)
	}

	byValue, ok, err := actors.Lookup(ctx, "application://gedit.desktop")
	if err != nil || !ok {
		t.Fatalf("Lookup() = _, %v, %v; want found", ok, err)
	}
	if byValue != created {
		t.Errorf("Lookup() = %+v, want %+v", byValue, created)
	}

	if _, ok, err = actors.Lookup(ctx, "application://never-seen.desktop"); err != nil || ok {
		t.Errorf("Lookup(unknown) = _, %v, %v; want not found", ok, err)
	}
	if _, ok, err = actors.LookupByID(ctx, created.ID+1000); err != nil || ok {
		t.Errorf("LookupByID(unknown) = _, %v, %v; want not found", ok, err)
	}
}

func TestEntityTable_InvalidArguments(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	uris := s.Table(TableURI)

	if _, err := uris.LookupOrCreate(ctx, ""); !ir.IsInvalidArgument(err) {
		t.Errorf("LookupOrCreate(\"\") error = %v, want INVALID_ARGUMENT", err)
	}
	if _, _, err := uris.Lookup(ctx, ""); !ir.IsInvalidArgument(err) {
		t.Errorf("Lookup(\"\") error = %v, want INVALID_ARGUMENT", err)
	}
	for _, id := range []int64{0, -3} {
		if _, _, err := uris.LookupByID(ctx, id); !ir.IsInvalidArgument(err) {
			t.Errorf("LookupByID(%d) error = %v, want INVALID_ARGUMENT", id, err)
		}
	}
}

func TestEntityTable_NormalizesValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	texts := s.Table(TableText)

	composed, err := texts.LookupOrCreate(ctx, "caf\u00e9")
	if err != nil {
		t.Fatalf("LookupOrCreate(composed) failed: %v", err)
	}
	decomposed, err := texts.LookupOrCreate(ctx, "cafe\u0301")
	if err != nil {
		t.Fatalf("LookupOrCreate(decomposed) failed: %v", err)
	}
	if decomposed.ID != composed.ID {
		t.Errorf("decomposed.ID = %d, want %d", decomposed.ID, composed.ID)
	}
	if decomposed.Value != "caf\u00e9" {
		t.Errorf("decomposed.Value = %q, want NFC form", decomposed.Value)
	}
}

func TestEntityTable_SmallCacheStaysConsistent(t *testing.T) {
	s := createTestStore(t, WithCacheSize(2))
	ctx := context.Background()
	uris := s.Table(TableURI)

	ids := make(map[string]int64)
	for i := 0; i < 10; i++ {
		v := fmt.Sprintf("file:///%d", i)
		e, err := uris.LookupOrCreate(ctx, v)
		if err != nil {
			t.Fatalf("LookupOrCreate(%q) failed: %v", v, err)
		}
		ids[v] = e.ID
	}
	if n := uris.CacheLen(); n > 2 {
		t.Errorf("CacheLen() = %d, want <= 2", n)
	}

	for v, id := range ids {
		e, ok, err := uris.Lookup(ctx, v)
		if err != nil || !ok {
			t.Fatalf("Lookup(%q) = _, %v, %v; want found", v, ok, err)
		}
		if e.ID != id {
			t.Errorf("Lookup(%q).ID = %d, want %d", v, e.ID, id)
		}

		back, ok, err := uris.LookupByID(ctx, id)
		if err != nil || !ok {
			t.Fatalf("LookupByID(%d) = _, %v, %v; want found", id, ok, err)
		}
		if back.Value != v {
			t.Errorf("LookupByID(%d).Value = %q, want %q", id, back.Value, v)
		}
	}
	if ev := uris.CacheStats().Evictions; ev == 0 {
		t.Error("CacheStats().Evictions = 0, want evictions")
	}
}

func TestEntityTable_ConcurrentLookupOrCreate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mimetypes := s.Table(TableMimetype)

	const goroutines = 16
	got := make([]int64, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := mimetypes.LookupOrCreate(ctx, "text/plain")
			if err == nil {
				got[i] = e.ID
			}
		}()
	}
	wg.Wait()

	for i, id := range got {
		if id != got[0] {
			t.Errorf("goroutine %d got id %d, want %d", i, id, got[0])
		}
	}
	n, err := mimetypes.Count(ctx)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestEntityTable_SharedLookupOutlivesCancelledCaller(t *testing.T) {
	s := createTestStore(t)
	uris := s.Table(TableURI)
	want := ir.Entity{ID: 7, Value: "file:///a"}

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	queryErrs := make(chan error, 2)
	query := func(ctx context.Context) (any, error) {
		once.Do(func() { close(started) })
		<-release
		queryErrs <- ctx.Err()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return want, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := uris.shared(firstCtx, "value:file:///a", query)
		firstErr <- err
	}()
	<-started

	// The query is still in flight, so the live caller joins it.
	type result struct {
		v   any
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := uris.shared(context.Background(), "value:file:///a", query)
		second <- result{v, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("live caller error = %v, want nil", got.err)
	}
	if got.v != want {
		t.Errorf("live caller got %v, want %v", got.v, want)
	}
	if err := <-queryErrs; err != nil {
		t.Errorf("shared query saw ctx error %v, want it detached from the cancelled caller", err)
	}
}

func TestEntityTable_RowsWrittenOutsideStoreAfterClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.DB().Exec("INSERT INTO uri (value) VALUES ('file:///external')"); err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	s.ClearCaches()

	e, ok, err := s.Table(TableURI).Lookup(ctx, "file:///external")
	if err != nil || !ok {
		t.Fatalf("Lookup() = _, %v, %v; want found", ok, err)
	}
	if e.ID <= 0 {
		t.Errorf("e.ID = %d, want positive", e.ID)
	}
}
