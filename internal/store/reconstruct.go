package store

import (
	"context"
	"database/sql"

	"github.com/roach88/activitylog/internal/ir"
)

// reconstructor turns row groups back into events. It resolves every
// interned id of a chunk with one query per table before assembling.
type reconstructor struct {
	s *EventStore
}

// resolvedChunk holds the entity lookups for one chunk.
type resolvedChunk struct {
	entities map[string]map[int64]ir.Entity
	storage  map[int64]ir.StatefulEntity
}

func (r reconstructor) resolve(ctx context.Context, chunk []factGroup) (*resolvedChunk, error) {
	want := make(map[string][]int64, len(entityTableNames))
	var storage []int64
	add := func(table string, v sql.NullInt64) {
		if v.Valid {
			want[table] = append(want[table], v.Int64)
		}
	}
	for _, g := range chunk {
		head := &g[0]
		add(TableInterpretation, head.interpretation)
		add(TableManifestation, head.manifestation)
		add(TableActor, head.actor)
		add(TableURI, head.origin)
		for i := range g {
			row := &g[i]
			add(TableURI, row.subjURI)
			add(TableInterpretation, row.subjInterpretation)
			add(TableManifestation, row.subjManifestation)
			add(TableURI, row.subjOrigin)
			add(TableMimetype, row.subjMimetype)
			add(TableText, row.subjText)
			if row.subjStorage.Valid {
				storage = append(storage, row.subjStorage.Int64)
			}
		}
	}

	out := &resolvedChunk{entities: make(map[string]map[int64]ir.Entity, len(want))}
	for table, ids := range want {
		m, err := r.s.tables[table].resolveIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		out.entities[table] = m
	}
	if len(storage) > 0 {
		m, err := r.s.storage.resolveIDs(ctx, storage)
		if err != nil {
			return nil, err
		}
		out.storage = m
	}
	return out, nil
}

// build assembles one event. A row referencing an id missing from its
// table is CORRUPT_STATE: the write path never stores such a row.
func (r reconstructor) build(ctx context.Context, g factGroup, res *resolvedChunk, withPayload bool) (*ir.Event, error) {
	const op = "reconstruct event"
	head := &g[0]

	var missing error
	entity := func(table string, v sql.NullInt64) ir.Entity {
		if !v.Valid || missing != nil {
			return ir.Entity{}
		}
		e, ok := res.entities[table][v.Int64]
		if !ok {
			missing = ir.NewCorruptState(op, "event %d references missing %s id %d", head.eventID, table, v.Int64)
		}
		return e
	}

	ev := &ir.Event{
		ID:             head.eventID,
		Timestamp:      head.timestamp,
		Interpretation: entity(TableInterpretation, head.interpretation),
		Manifestation:  entity(TableManifestation, head.manifestation),
		Actor:          entity(TableActor, head.actor),
		Origin:         entity(TableURI, head.origin),
		Subjects:       make([]ir.Subject, 0, len(g)),
	}

	for i := range g {
		row := &g[i]
		subj := ir.Subject{
			URI:            entity(TableURI, row.subjURI),
			Interpretation: entity(TableInterpretation, row.subjInterpretation),
			Manifestation:  entity(TableManifestation, row.subjManifestation),
			Mimetype:       entity(TableMimetype, row.subjMimetype),
			Origin:         entity(TableURI, row.subjOrigin),
			Text:           entity(TableText, row.subjText),
		}
		if row.subjStorage.Valid && missing == nil {
			st, ok := res.storage[row.subjStorage.Int64]
			if !ok {
				missing = ir.NewCorruptState(op, "event %d references missing storage id %d", head.eventID, row.subjStorage.Int64)
			}
			subj.Storage = ir.Entity{ID: st.ID, Value: st.Value}
			subj.StorageState = ir.StorageState(st.State)
		}
		ev.Subjects = append(ev.Subjects, subj)
	}
	if missing != nil {
		r.s.logger.Error("event references missing entity", "event_id", head.eventID, "error", missing)
		return nil, missing
	}

	if head.payload.Valid {
		ev.PayloadID = head.payload.Int64
		if withPayload {
			blob, ok, err := r.s.payloads.get(ctx, head.payload.Int64)
			if err != nil {
				return nil, err
			}
			if !ok {
				err := ir.NewCorruptState(op, "event %d references missing payload id %d", head.eventID, head.payload.Int64)
				r.s.logger.Error("event references missing payload", "event_id", head.eventID, "error", err)
				return nil, err
			}
			ev.Payload = blob
		}
	}
	return ev, nil
}

// events reconstructs the events for ids, keyed by event id. Ids with
// no rows are skipped.
func (r reconstructor) events(ctx context.Context, ids []int64, withPayload bool) (map[int64]*ir.Event, error) {
	out := make(map[int64]*ir.Event, len(ids))
	for chunk, err := range r.s.facts.chunks(ctx, ids) {
		if err != nil {
			return nil, err
		}
		res, err := r.resolve(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for _, g := range chunk {
			ev, err := r.build(ctx, g, res, withPayload)
			if err != nil {
				return nil, err
			}
			out[ev.ID] = ev
		}
	}
	return out, nil
}
