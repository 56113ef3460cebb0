package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/querysql"
)

// factChunk bounds the number of ids bound into one IN (...) list.
const factChunk = 500

// factRow is one (event, subject) row of the event table. Absent fields
// are NULL.
type factRow struct {
	eventID   int64
	timestamp int64

	interpretation sql.NullInt64
	manifestation  sql.NullInt64
	actor          sql.NullInt64
	origin         sql.NullInt64
	payload        sql.NullInt64

	subjURI            sql.NullInt64
	subjInterpretation sql.NullInt64
	subjManifestation  sql.NullInt64
	subjOrigin         sql.NullInt64
	subjMimetype       sql.NullInt64
	subjText           sql.NullInt64
	subjStorage        sql.NullInt64
}

func (r *factRow) args() []any {
	return []any{
		r.eventID, r.timestamp,
		r.interpretation, r.manifestation, r.actor, r.origin, r.payload,
		r.subjURI, r.subjInterpretation, r.subjManifestation, r.subjOrigin,
		r.subjMimetype, r.subjText, r.subjStorage,
	}
}

func (r *factRow) dest() []any {
	return []any{
		&r.eventID, &r.timestamp,
		&r.interpretation, &r.manifestation, &r.actor, &r.origin, &r.payload,
		&r.subjURI, &r.subjInterpretation, &r.subjManifestation, &r.subjOrigin,
		&r.subjMimetype, &r.subjText, &r.subjStorage,
	}
}

// factGroup is every row of one event, in insertion order.
type factGroup []factRow

func (g factGroup) id() int64 { return g[0].eventID }

// factStore is the append-only event table.
type factStore struct {
	db *sql.DB
}

// append writes every row of one event inside the write pass. The pass
// commits or rolls back all of them together.
func (f *factStore) append(ctx context.Context, w *writeTx, rows []factRow) error {
	stmt, err := w.tx.PrepareContext(ctx, queryInsertFact)
	if err != nil {
		return ir.NewStorageUnavailable("append event", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i].args()...); err != nil {
			return ir.NewStorageUnavailable("append event", fmt.Errorf("event %d row %d: %w", rows[i].eventID, i, err))
		}
	}
	return nil
}

// bumpWatermark records last as the highest committed event id.
func (f *factStore) bumpWatermark(ctx context.Context, w *writeTx, last int64) error {
	if _, err := w.tx.ExecContext(ctx, queryBumpWatermark, last); err != nil {
		return ir.NewStorageUnavailable("bump event watermark", err)
	}
	return nil
}

// maxID returns the highest event id ever committed, 0 for a new store.
func (f *factStore) maxID(ctx context.Context) (int64, error) {
	var id int64
	if err := f.db.QueryRowContext(ctx, queryMaxEventID).Scan(&id); err != nil {
		return 0, ir.NewStorageUnavailable("read max event id", err)
	}
	return id, nil
}

// chunks yields the row groups of the given events a chunk of ids at a
// time, each chunk ordered by event id. Ids with no rows are skipped. Each
// chunk's result set is closed before the chunk is yielded, so the consumer
// may issue its own queries.
func (f *factStore) chunks(ctx context.Context, ids []int64) iter.Seq2[[]factGroup, error] {
	return func(yield func([]factGroup, error) bool) {
		for start := 0; start < len(ids); start += factChunk {
			end := min(start+factChunk, len(ids))
			chunk, err := f.readChunk(ctx, ids[start:end])
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (f *factStore) readChunk(ctx context.Context, ids []int64) ([]factGroup, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := f.db.QueryContext(ctx, queryFactsInIDs+placeholders(len(ids))+queryFactsOrder, args...)
	if err != nil {
		return nil, ir.NewStorageUnavailable("read events", err)
	}
	defer rows.Close()

	var out []factGroup
	for rows.Next() {
		var r factRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, ir.NewStorageUnavailable("read events", err)
		}
		if n := len(out); n > 0 && out[n-1].id() == r.eventID {
			out[n-1] = append(out[n-1], r)
		} else {
			out = append(out, factGroup{r})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageUnavailable("read events", err)
	}
	return out, nil
}

// matchIDs runs a compiled plan and returns distinct event ids in result
// order, capped at the plan limit.
func (f *factStore) matchIDs(ctx context.Context, plan *querysql.Plan) ([]int64, error) {
	if plan.Empty {
		return nil, nil
	}

	rows, err := f.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, ir.NewStorageUnavailable("find events", err)
	}
	defer rows.Close()

	ids := []int64{}
	seen := make(map[int64]struct{})
	for rows.Next() {
		id, err := plan.ScanID(rows)
		if err != nil {
			return nil, ir.NewStorageUnavailable("find events", err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if plan.Limit > 0 && len(ids) == plan.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, ir.NewStorageUnavailable("find events", err)
	}
	return ids, nil
}

// deleteIDs removes every row of the given events inside the write pass.
// It returns the ids that existed and the time span they covered.
func (f *factStore) deleteIDs(ctx context.Context, w *writeTx, ids []int64) ([]int64, ir.TimeRange, error) {
	const op = "delete events"

	var found []int64
	span := ir.TimeRange{}
	for start := 0; start < len(ids); start += factChunk {
		end := min(start+factChunk, len(ids))
		args := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		in := placeholders(len(args))

		rows, err := w.tx.QueryContext(ctx, queryTimestampsInIDs+in+queryGroupByID, args...)
		if err != nil {
			return nil, ir.TimeRange{}, ir.NewStorageUnavailable(op, err)
		}
		for rows.Next() {
			var id, ts int64
			if err := rows.Scan(&id, &ts); err != nil {
				rows.Close()
				return nil, ir.TimeRange{}, ir.NewStorageUnavailable(op, err)
			}
			if len(found) == 0 {
				span = ir.TimeRange{Start: ts, End: ts}
			} else {
				span.Start = min(span.Start, ts)
				span.End = max(span.End, ts)
			}
			found = append(found, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, ir.TimeRange{}, ir.NewStorageUnavailable(op, err)
		}

		if _, err := w.tx.ExecContext(ctx, queryDeleteInIDs+in+")", args...); err != nil {
			return nil, ir.TimeRange{}, ir.NewStorageUnavailable(op, err)
		}
	}
	return found, span, nil
}

// counts returns the number of distinct events and of rows.
func (f *factStore) counts(ctx context.Context) (events, rows int64, err error) {
	if err := f.db.QueryRowContext(ctx, queryCountEvents).Scan(&events, &rows); err != nil {
		return 0, 0, ir.NewStorageUnavailable("count events", err)
	}
	return events, rows, nil
}
