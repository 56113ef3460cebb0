package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/store"
	"github.com/roach88/activitylog/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s ids=%v count=%d", ev.Step, ev.Op, ev.IDs, ev.Count)
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%s", ev.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, st *store.EventStore, result *Result, assertions []Assertion) []string {
	var errs []string
	var stats *store.Stats
	loadStats := func() (*store.Stats, error) {
		if stats != nil {
			return stats, nil
		}
		s, err := st.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats = &s
		return stats, nil
	}

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEvents:
			err = assertEvents(loadStats, a)
		case AssertTableRows:
			err = assertTableRows(loadStats, a)
		case AssertStorageState:
			err = assertStorageState(ctx, st, a)
		case AssertEvent:
			err = assertEvent(ctx, st, a)
		case AssertOpCount:
			err = assertOpCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

type statsFunc func() (*store.Stats, error)

func assertEvents(stats statsFunc, a Assertion) error {
	s, err := stats()
	if err != nil {
		return err
	}
	if s.Events != int64(a.Count) {
		return &AssertionError{
			Type:     AssertEvents,
			Expected: fmt.Sprintf("%d events", a.Count),
			Actual:   fmt.Sprintf("%d events", s.Events),
		}
	}
	return nil
}

func assertTableRows(stats statsFunc, a Assertion) error {
	s, err := stats()
	if err != nil {
		return err
	}
	for _, t := range s.Tables {
		if t.Name != a.Table {
			continue
		}
		if t.Rows != int64(a.Count) {
			return &AssertionError{
				Type:     AssertTableRows,
				Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
				Actual:   fmt.Sprintf("%d rows", t.Rows),
			}
		}
		return nil
	}
	return fmt.Errorf("unknown table %q", a.Table)
}

func assertStorageState(ctx context.Context, st *store.EventStore, a Assertion) error {
	want, err := ir.ParseStorageState(a.State)
	if err != nil {
		return err
	}
	medium, ok, err := st.Storage().Lookup(ctx, a.Medium)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertStorageState,
			Expected: fmt.Sprintf("medium %s is %s", a.Medium, want),
			Actual:   "medium not found",
		}
	}
	if got := ir.StorageState(medium.State); got != want {
		return &AssertionError{
			Type:     AssertStorageState,
			Expected: fmt.Sprintf("medium %s is %s", a.Medium, want),
			Actual:   got.String(),
		}
	}
	return nil
}

func assertEvent(ctx context.Context, st *store.EventStore, a Assertion) error {
	events, err := st.GetEvents(ctx, []int64{a.ID})
	if err != nil {
		return err
	}
	if events[0] == nil {
		return &AssertionError{
			Type:     AssertEvent,
			Expected: fmt.Sprintf("event %d exists", a.ID),
			Actual:   "not found",
		}
	}
	if mismatch := matchValues(testutil.Values(events[0]), a.Expect); mismatch != "" {
		return &AssertionError{
			Type:     AssertEvent,
			Expected: fmt.Sprintf("event %d with %v", a.ID, a.Expect),
			Actual:   mismatch,
		}
	}
	return nil
}

// assertOpCount checks that the flow ran the op exactly Count times.
func assertOpCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertOpCount,
			Expected: fmt.Sprintf("%s %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("%d times", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchValues checks expected against actual with subset semantics: only
// the keys present in expected are compared. "subjects" is a list of
// subject maps matched position by position. It returns a description of
// the first mismatch, or "".
func matchValues(actual, expected map[string]any) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		want := expected[k]
		got, ok := actual[k]
		if !ok {
			return fmt.Sprintf("unknown field %q", k)
		}
		if k == "subjects" {
			if msg := matchSubjects(got.([]map[string]string), want); msg != "" {
				return msg
			}
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return fmt.Sprintf("%s = %v, want %v", k, got, want)
		}
	}
	return ""
}

func matchSubjects(actual []map[string]string, expected any) string {
	list, ok := expected.([]any)
	if !ok {
		return fmt.Sprintf("subjects: want a list, got %T", expected)
	}
	if len(list) != len(actual) {
		return fmt.Sprintf("subjects: %d subjects, want %d", len(actual), len(list))
	}
	for i, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			return fmt.Sprintf("subjects[%d]: want a map, got %T", i, item)
		}
		for k, want := range fields {
			got, ok := actual[i][k]
			if !ok {
				return fmt.Sprintf("subjects[%d]: unknown field %q", i, k)
			}
			if got != fmt.Sprint(want) {
				return fmt.Sprintf("subjects[%d].%s = %q, want %v", i, k, got, want)
			}
		}
	}
	return ""
}
