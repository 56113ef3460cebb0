package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/queryir"
)

// InsertEvents stores events and returns their ids in input order.
//
// Every event must carry at least one subject. A zero timestamp is replaced
// with the store clock. The whole call is one pass of the write sequence:
// either every event is committed or none is.
func (s *EventStore) InsertEvents(ctx context.Context, events []*ir.Event) ([]int64, error) {
	const op = "insert events"
	for i, ev := range events {
		switch {
		case ev == nil:
			return nil, ir.NewInvalidArgument(op, "event %d is nil", i)
		case len(ev.Subjects) == 0:
			return nil, ir.NewInvalidArgument(op, "event %d has no subjects", i)
		case ev.Timestamp < 0:
			return nil, ir.NewInvalidArgument(op, "event %d has negative timestamp %d", i, ev.Timestamp)
		}
	}
	if len(events) == 0 {
		return []int64{}, nil
	}

	stored, err := s.insert(ctx, events)
	if err != nil {
		s.logger.Debug("insert failed", "events", len(events), "error", err)
		return nil, err
	}

	ids := make([]int64, len(stored))
	for i, ev := range stored {
		ids[i] = ev.ID
	}
	s.metrics.recordInsert(len(ids))
	s.logger.Debug("events inserted", "count", len(ids), "first_id", ids[0], "last_id", ids[len(ids)-1])
	return ids, nil
}

func (s *EventStore) insert(ctx context.Context, events []*ir.Event) ([]*ir.Event, error) {
	w, release, err := s.seq.begin(ctx, "insert events")
	if err != nil {
		return nil, err
	}
	defer release()

	stored := make([]*ir.Event, len(events))
	for i, ev := range events {
		if stored[i], err = s.appendEvent(ctx, w, ev); err != nil {
			return nil, err
		}
	}
	if err := s.facts.bumpWatermark(ctx, w, stored[len(stored)-1].ID); err != nil {
		return nil, err
	}
	if err := w.commit(); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NotifyInsert(ctx, stored)
	}
	return stored, nil
}

// appendEvent interns every field of ev, allocates its id and appends one
// row per subject. It returns the event as stored.
func (s *EventStore) appendEvent(ctx context.Context, w *writeTx, ev *ir.Event) (*ir.Event, error) {
	out := &ir.Event{
		Timestamp: ev.Timestamp,
		Subjects:  make([]ir.Subject, len(ev.Subjects)),
	}
	if out.Timestamp == 0 {
		out.Timestamp = s.now().UnixMilli()
	}

	var err error
	intern := func(table string, in ir.Entity, dst *ir.Entity) sql.NullInt64 {
		if err != nil || in.Value == "" {
			return sql.NullInt64{}
		}
		var e ir.Entity
		if e, err = s.tables[table].lookupOrCreate(ctx, w, in.Value); err != nil {
			return sql.NullInt64{}
		}
		*dst = e
		return sql.NullInt64{Int64: e.ID, Valid: true}
	}

	base := factRow{timestamp: out.Timestamp}
	base.interpretation = intern(TableInterpretation, ev.Interpretation, &out.Interpretation)
	base.manifestation = intern(TableManifestation, ev.Manifestation, &out.Manifestation)
	base.actor = intern(TableActor, ev.Actor, &out.Actor)
	base.origin = intern(TableURI, ev.Origin, &out.Origin)

	rows := make([]factRow, len(ev.Subjects))
	for i := range ev.Subjects {
		in, dst := &ev.Subjects[i], &out.Subjects[i]
		row := base
		row.subjURI = intern(TableURI, in.URI, &dst.URI)
		row.subjInterpretation = intern(TableInterpretation, in.Interpretation, &dst.Interpretation)
		row.subjManifestation = intern(TableManifestation, in.Manifestation, &dst.Manifestation)
		row.subjOrigin = intern(TableURI, in.Origin, &dst.Origin)
		row.subjMimetype = intern(TableMimetype, in.Mimetype, &dst.Mimetype)
		row.subjText = intern(TableText, in.Text, &dst.Text)
		if err != nil {
			return nil, err
		}
		if in.Storage.Value != "" {
			// New media start out available; state changes go through
			// SetStorageState.
			st, err := s.storage.lookupOrCreate(ctx, w, in.Storage.Value, ir.StorageAvailable)
			if err != nil {
				return nil, err
			}
			dst.Storage = ir.Entity{ID: st.ID, Value: st.Value}
			dst.StorageState = ir.StorageState(st.State)
			row.subjStorage = sql.NullInt64{Int64: st.ID, Valid: true}
		}
		rows[i] = row
	}
	if err != nil {
		return nil, err
	}

	if len(ev.Payload) > 0 {
		pid, err := s.payloads.insert(ctx, w, ev.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = ev.Payload
		out.PayloadID = pid
		for i := range rows {
			rows[i].payload = sql.NullInt64{Int64: pid, Valid: true}
		}
	}

	out.ID = s.ids.Next()
	for i := range rows {
		rows[i].eventID = out.ID
	}
	if err := s.facts.append(ctx, w, rows); err != nil {
		return nil, err
	}
	return out, nil
}

// GetEvents returns the events with the given ids, in input order. Ids
// with no stored event yield nil at their position. Payloads are included.
func (s *EventStore) GetEvents(ctx context.Context, ids []int64) ([]*ir.Event, error) {
	lookup := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			lookup = append(lookup, id)
		}
	}

	byID, err := s.rebuild.events(ctx, lookup, true)
	if err != nil {
		return nil, err
	}

	out := make([]*ir.Event, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

// FindEventIDs returns the ids of events matching q, in the order its
// result type defines.
func (s *EventStore) FindEventIDs(ctx context.Context, q queryir.Query) ([]int64, error) {
	start := time.Now()
	plan, err := s.compiler.Compile(ctx, q)
	if err != nil {
		return nil, err
	}
	ids, err := s.facts.matchIDs(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.metrics.observeQuery(q.ResultType.String(), start)
	s.logger.Debug("find event ids",
		"result_type", q.ResultType,
		"templates", len(q.Templates),
		"empty_plan", plan.Empty,
		"matches", len(ids),
		"elapsed", time.Since(start))
	return ids, nil
}

// FindEvents returns the events matching q, in the order its result type
// defines. Payloads are resolved only when q.IncludePayload is set.
func (s *EventStore) FindEvents(ctx context.Context, q queryir.Query) ([]*ir.Event, error) {
	ids, err := s.FindEventIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	byID, err := s.rebuild.events(ctx, ids, q.IncludePayload)
	if err != nil {
		return nil, err
	}

	out := make([]*ir.Event, 0, len(ids))
	for _, id := range ids {
		// An event deleted between the two reads is dropped.
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// DeleteEvents removes every row of the given events and returns how many
// events existed. Interned entities are kept.
func (s *EventStore) DeleteEvents(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	found, err := s.delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.metrics.recordDelete(len(found))
	s.logger.Debug("events deleted", "requested", len(ids), "deleted", len(found))
	return len(found), nil
}

func (s *EventStore) delete(ctx context.Context, ids []int64) ([]int64, error) {
	w, release, err := s.seq.begin(ctx, "delete events")
	if err != nil {
		return nil, err
	}
	defer release()

	found, span, err := s.facts.deleteIDs(ctx, w, ids)
	if err != nil {
		return nil, err
	}
	if err := w.commit(); err != nil {
		return nil, err
	}
	if s.notifier != nil && len(found) > 0 {
		s.notifier.NotifyDelete(ctx, span, found)
	}
	return found, nil
}

// SetStorageState records whether a storage medium is available. Unknown
// media are created.
func (s *EventStore) SetStorageState(ctx context.Context, medium string, state ir.StorageState) (ir.StatefulEntity, error) {
	return s.storage.SetState(ctx, medium, state)
}
