package store

import (
	"context"
	"slices"
	"testing"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/queryir"
	"github.com/roach88/activitylog/internal/testutil"
)

func findIDs(t *testing.T, s *EventStore, q queryir.Query) []int64 {
	t.Helper()
	ids, err := s.FindEventIDs(context.Background(), q)
	if err != nil {
		t.Fatalf("FindEventIDs() failed: %v", err)
	}
	return ids
}

// expectIDs fails unless q finds exactly want, in order.
func expectIDs(t *testing.T, s *EventStore, q queryir.Query, want ...int64) {
	t.Helper()
	if got := findIDs(t, s, q); !slices.Equal(got, want) {
		t.Errorf("FindEventIDs() = %v, want %v", got, want)
	}
}

func TestFindEventIDs_TimeOrderingAndRange(t *testing.T) {
	s := createTestStore(t)
	ids := mustInsert(t, s, openEvent(100), openEvent(200), openEvent(300))

	q := queryir.NewQuery()
	expectIDs(t, s, q, ids[2], ids[1], ids[0])

	q.ResultType = ir.LeastRecentEvents
	expectIDs(t, s, q, ids...)

	// Both ends of the range are inclusive.
	q.TimeRange = ir.TimeRange{Start: 100, End: 200}
	expectIDs(t, s, q, ids[:2]...)

	q = queryir.NewQuery()
	q.Limit = 2
	expectIDs(t, s, q, ids[2], ids[1])
}

func TestFindEventIDs_ZeroValueQueryMatchesEverything(t *testing.T) {
	s := createTestStore(t)
	removable := testutil.NewEvent(300).Subject("file:///media/usb/a", testutil.WithStorage("usb-1")).Build()
	ids := mustInsert(t, s, openEvent(100), removable)

	if _, err := s.SetStorageState(context.Background(), "usb-1", ir.StorageNotAvailable); err != nil {
		t.Fatalf("SetStorageState() failed: %v", err)
	}

	// Without NewQuery the storage filter and result type take their zero
	// values: no storage restriction, most recent first.
	expectIDs(t, s, queryir.Query{TimeRange: ir.Always()}, ids[1], ids[0])
}

func TestFindEventIDs_EqualTimestampsOrderByID(t *testing.T) {
	s := createTestStore(t)
	ids := mustInsert(t, s, openEvent(100), openEvent(100))

	expectIDs(t, s, queryir.NewQuery(), ids[1], ids[0])
}

func TestFindEventIDs_NegationIsPerSubject(t *testing.T) {
	s := createTestStore(t)
	both := testutil.NewEvent(100).Subject("file:///a").Subject("file:///b").Build()
	onlyA := testutil.NewEvent(200).Subject("file:///a").Build()
	ids := mustInsert(t, s, both, onlyA)

	positive := queryir.NewQuery(queryir.EventTemplate{
		Subjects: []queryir.SubjectTemplate{{URI: queryir.Eq("file:///a")}},
	})
	expectIDs(t, s, positive, ids[1], ids[0])

	// An event matches a negation when any of its subjects differs.
	negative := queryir.NewQuery(queryir.EventTemplate{
		Subjects: []queryir.SubjectTemplate{{URI: queryir.Not("file:///a")}},
	})
	expectIDs(t, s, negative, ids[0])
}

func TestFindEventIDs_SubjectFieldsHoldForOneSubject(t *testing.T) {
	s := createTestStore(t)
	ev := testutil.NewEvent(100).
		Subject("file:///a.go", testutil.WithMimetype("text/x-go")).
		Subject("file:///b.png", testutil.WithMimetype("image/png")).
		Build()
	ids := mustInsert(t, s, ev)

	mixed := queryir.NewQuery(queryir.EventTemplate{
		Subjects: []queryir.SubjectTemplate{{
			URI:      queryir.Eq("file:///a.go"),
			Mimetype: queryir.Eq("image/png"),
		}},
	})
	expectIDs(t, s, mixed)

	same := queryir.NewQuery(queryir.EventTemplate{
		Subjects: []queryir.SubjectTemplate{{
			URI:      queryir.Eq("file:///b.png"),
			Mimetype: queryir.Eq("image/png"),
		}},
	})
	expectIDs(t, s, same, ids[0])
}

func TestFindEventIDs_TemplatesAreOred(t *testing.T) {
	s := createTestStore(t)
	ids := mustInsert(t, s,
		testutil.NewEvent(100).Actor("app://x").Subject("file:///a").Build(),
		testutil.NewEvent(200).Actor("app://y").Subject("file:///b").Build(),
		testutil.NewEvent(300).Actor("app://z").Subject("file:///c").Build(),
	)

	q := queryir.NewQuery(
		queryir.EventTemplate{Actor: queryir.Eq("app://x")},
		queryir.EventTemplate{Subjects: []queryir.SubjectTemplate{{URI: queryir.Eq("file:///b")}}},
		queryir.EventTemplate{Actor: queryir.Eq("app://never-seen")},
	)
	expectIDs(t, s, q, ids[1], ids[0])
}

func TestFindEventIDs_UnknownLiteralMatchesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := mustInsert(t, s, openEvent(100))

	before, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}

	expectIDs(t, s, queryir.NewQuery(queryir.EventTemplate{Actor: queryir.Eq("app://never-seen")}))

	// Queries never intern.
	after, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	for i := range before.Tables {
		if before.Tables[i].Rows != after.Tables[i].Rows {
			t.Errorf("%s rows = %d after query, want %d", before.Tables[i].Name, after.Tables[i].Rows, before.Tables[i].Rows)
		}
	}

	// A negated unknown value only requires the field to be present.
	expectIDs(t, s, queryir.NewQuery(queryir.EventTemplate{Actor: queryir.Not("app://never-seen")}), ids[0])
}

func TestFindEventIDs_Hierarchy(t *testing.T) {
	s := createTestStore(t, WithHierarchy(builtinHierarchy(t)))
	code := testutil.NewEvent(100).
		Subject("file:///main.go", testutil.WithInterpretation(ontology.NFO+"SourceCode")).
		Build()
	image := testutil.NewEvent(200).
		Subject("file:///cat.png", testutil.WithInterpretation(ontology.NFO+"RasterImage")).
		Build()
	ids := mustInsert(t, s, code, image)

	under := func(v string) queryir.Query {
		return queryir.NewQuery(queryir.EventTemplate{
			Subjects: []queryir.SubjectTemplate{{Interpretation: queryir.Under(v)}},
		})
	}
	expectIDs(t, s, under(ontology.NFO+"Document"), ids[0])
	expectIDs(t, s, under(ontology.NFO+"Visual"), ids[1])
	expectIDs(t, s, under(ontology.NFO+"SourceCode"), ids[0])
	expectIDs(t, s, under(ontology.NFO+"Audio"))

	exact := queryir.NewQuery(queryir.EventTemplate{
		Subjects: []queryir.SubjectTemplate{{Interpretation: queryir.Eq(ontology.NFO + "Document")}},
	})
	expectIDs(t, s, exact)
}

func TestFindEventIDs_StorageFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	removable := testutil.NewEvent(100).Subject("file:///media/usb/a", testutil.WithStorage("usb-1")).Build()
	local := testutil.NewEvent(200).Subject("file:///home/b").Build()
	ids := mustInsert(t, s, removable, local)

	q := queryir.NewQuery()
	q.Storage = queryir.StorageFilterAvailable
	expectIDs(t, s, q, ids[1], ids[0])

	if _, err := s.SetStorageState(ctx, "usb-1", ir.StorageNotAvailable); err != nil {
		t.Fatalf("SetStorageState() failed: %v", err)
	}
	expectIDs(t, s, q, ids[1])

	q.Storage = queryir.StorageFilterNotAvailable
	expectIDs(t, s, q, ids[0])

	q.Storage = queryir.StorageFilterAny
	expectIDs(t, s, q, ids[1], ids[0])

	out, err := s.GetEvents(ctx, ids[:1])
	if err != nil {
		t.Fatalf("GetEvents() failed: %v", err)
	}
	if st := out[0].Subjects[0].StorageState; st != ir.StorageNotAvailable {
		t.Errorf("StorageState = %v, want not-available", st)
	}
}

func TestFindEventIDs_ResultTypes(t *testing.T) {
	s := createTestStore(t)
	ids := mustInsert(t, s,
		testutil.NewEvent(100).Actor("app://x").Subject("file:///a").Build(),
		testutil.NewEvent(200).Actor("app://y").Subject("file:///b").Build(),
		testutil.NewEvent(300).Actor("app://x").Subject("file:///a").Build(),
	)

	tests := []struct {
		resultType ir.ResultType
		want       []int64
	}{
		{ir.MostRecentEvents, []int64{ids[2], ids[1], ids[0]}},
		{ir.LeastRecentEvents, []int64{ids[0], ids[1], ids[2]}},
		{ir.MostRecentSubjects, []int64{ids[2], ids[1]}},
		{ir.LeastRecentSubjects, []int64{ids[0], ids[1]}},
		{ir.MostPopularSubjects, []int64{ids[2], ids[1]}},
		{ir.LeastPopularSubjects, []int64{ids[1], ids[2]}},
		{ir.MostPopularActor, []int64{ids[2], ids[1]}},
		{ir.LeastPopularActor, []int64{ids[1], ids[2]}},
	}
	for _, tt := range tests {
		t.Run(tt.resultType.String(), func(t *testing.T) {
			q := queryir.NewQuery()
			q.ResultType = tt.resultType
			expectIDs(t, s, q, tt.want...)
		})
	}
}

func TestFindEventIDs_GroupedLimitAppliesAfterDedup(t *testing.T) {
	s := createTestStore(t)
	// One event touching two subjects is the most recent for both.
	ids := mustInsert(t, s,
		testutil.NewEvent(100).Subject("file:///c").Build(),
		testutil.NewEvent(200).Subject("file:///a").Subject("file:///b").Build(),
	)

	q := queryir.NewQuery()
	q.ResultType = ir.MostRecentSubjects
	q.Limit = 2
	expectIDs(t, s, q, ids[1], ids[0])
}

func TestFindEventIDs_InvalidQuery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inverted := queryir.NewQuery()
	inverted.TimeRange = ir.TimeRange{Start: 10, End: 5}
	hierarchicalActor := queryir.NewQuery(queryir.EventTemplate{Actor: queryir.Under("app://x")})
	badStorage := queryir.NewQuery()
	badStorage.Storage = queryir.StorageFilter(9)

	for name, q := range map[string]queryir.Query{
		"inverted range":     inverted,
		"hierarchical actor": hierarchicalActor,
		"unknown storage":    badStorage,
	} {
		if _, err := s.FindEventIDs(ctx, q); !ir.IsInvalidArgument(err) {
			t.Errorf("%s: FindEventIDs() error = %v, want INVALID_ARGUMENT", name, err)
		}
	}
}

func TestFindEvents(t *testing.T) {
	s := createTestStore(t)
	ids := mustInsert(t, s, openEvent(100), openEvent(200))

	events, err := s.FindEvents(context.Background(), queryir.NewQuery())
	if err != nil {
		t.Fatalf("FindEvents() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(FindEvents()) = %d, want 2", len(events))
	}
	if events[0].ID != ids[1] || events[1].ID != ids[0] {
		t.Errorf("FindEvents() ids = [%d %d], want [%d %d]", events[0].ID, events[1].ID, ids[1], ids[0])
	}
	if got := events[0].Subjects[0].Mimetype.Value; got != "text/plain" {
		t.Errorf("Mimetype = %q, want text/plain", got)
	}
}
