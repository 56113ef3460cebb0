package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/queryir"
	"github.com/roach88/activitylog/internal/store"
	"github.com/roach88/activitylog/internal/testutil"
)

// ClockStart is the first timestamp the harness clock hands out:
// 2024-01-01T00:00:00Z. Each reading advances it by one second.
const ClockStart int64 = 1704067200000

// Harness executes scenario flows against one store.
type Harness struct {
	store  *store.EventStore
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger    *slog.Logger
	hierarchy ontology.Hierarchy
}

// WithLogger sets the logger passed to the store. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithHierarchy replaces the built-in symbol hierarchy.
func WithHierarchy(h ontology.Hierarchy) Option {
	return func(c *runConfig) { c.hierarchy = h }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Open an in-memory store with a deterministic clock
//  2. Insert setup events
//  3. Execute flow steps, checking each expect clause
//  4. Evaluate assertions
//
// The returned error reports a harness failure (the store could not be
// opened or setup failed). Scenario failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.hierarchy == nil {
		reg, err := ontology.Builtin()
		if err != nil {
			return nil, fmt.Errorf("failed to load hierarchy: %w", err)
		}
		cfg.hierarchy = reg
	}

	clock := testutil.NewDeterministicClock(ClockStart)
	st, err := store.Open(ctx, ":memory:",
		store.WithLogger(cfg.logger),
		store.WithClock(clock.Now),
		store.WithHierarchy(cfg.hierarchy))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{store: st, logger: cfg.logger}

	if len(scenario.Setup) > 0 {
		if _, err := st.InsertEvents(ctx, ir.Events(scenario.Setup)); err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		ev := h.execute(ctx, i, step)
		result.AddTrace(ev)
		for _, msg := range checkExpect(i, step, ev) {
			result.AddError(msg)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"steps", len(scenario.Flow),
		"pass", result.Pass)
	return result, nil
}

// execute runs one step and returns its trace entry.
func (h *Harness) execute(ctx context.Context, index int, step Step) TraceEvent {
	ev := TraceEvent{Step: index, Op: step.Op}

	var err error
	switch step.Op {
	case OpInsert:
		ev.IDs, err = h.store.InsertEvents(ctx, ir.Events(step.Events))
		ev.Count = len(ev.IDs)

	case OpGet:
		var events []*ir.Event
		if events, err = h.store.GetEvents(ctx, step.IDs); err == nil {
			ev.IDs = make([]int64, len(events))
			for i, e := range events {
				if e != nil {
					ev.IDs[i] = e.ID
					ev.Count++
				}
			}
		}

	case OpFind:
		spec := queryir.QuerySpec{}
		if step.Query != nil {
			spec = *step.Query
		}
		var q queryir.Query
		if q, err = spec.Query(); err == nil {
			ev.IDs, err = h.store.FindEventIDs(ctx, q)
			ev.Count = len(ev.IDs)
		}

	case OpDelete:
		ev.Count, err = h.store.DeleteEvents(ctx, step.IDs)

	case OpSetStorage:
		var state ir.StorageState
		if state, err = ir.ParseStorageState(step.State); err == nil {
			var medium ir.StatefulEntity
			if medium, err = h.store.SetStorageState(ctx, step.Medium, state); err == nil {
				ev.IDs = []int64{medium.ID}
				ev.Count = 1
			}
		}

	case OpClearCaches:
		h.store.ClearCaches()
	}

	if err != nil {
		ev.Error = errorCode(err)
		h.logger.Debug("flow step failed", "step", index, "op", step.Op, "error", err)
	} else {
		h.logger.Debug("flow step completed", "step", index, "op", step.Op, "count", ev.Count)
	}
	return ev
}

// checkExpect compares a traced step with its expect clause.
func checkExpect(index int, step Step, ev TraceEvent) []string {
	var errs []string
	want := step.Expect
	if want == nil {
		want = &Expect{}
	}

	if ev.Error != want.Error {
		switch {
		case want.Error == "":
			errs = append(errs, fmt.Sprintf("flow[%d] %s: unexpected error %s", index, step.Op, ev.Error))
		case ev.Error == "":
			errs = append(errs, fmt.Sprintf("flow[%d] %s: expected error %s, got success", index, step.Op, want.Error))
		default:
			errs = append(errs, fmt.Sprintf("flow[%d] %s: expected error %s, got %s", index, step.Op, want.Error, ev.Error))
		}
		return errs
	}

	if want.IDs != nil && !slices.Equal(want.IDs, ev.IDs) {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: expected ids %v, got %v", index, step.Op, want.IDs, ev.IDs))
	}
	if want.Count != nil && *want.Count != ev.Count {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: expected count %d, got %d", index, step.Op, *want.Count, ev.Count))
	}
	return errs
}

func errorCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return "UNKNOWN"
}
