package store

import "fmt"

// Entity tables share one layout, so their statements are built per table
// name once at open time. Table names come from a fixed list, never from
// callers.
type entityQueries struct {
	byID    string
	byValue string
	insert  string
	inIDs   string // prefix; the caller appends placeholders and ")"
	count   string
}

func newEntityQueries(table string) entityQueries {
	return entityQueries{
		byID:    fmt.Sprintf("SELECT value FROM %s WHERE id = ?", table),
		byValue: fmt.Sprintf("SELECT id FROM %s WHERE value = ?", table),
		insert:  fmt.Sprintf("INSERT INTO %s (value) VALUES (?)", table),
		inIDs:   fmt.Sprintf("SELECT id, value FROM %s WHERE id IN (", table),
		count:   fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
	}
}

const (
	queryStorageByID    = `SELECT value, state FROM storage WHERE id = ?`
	queryStorageByValue = `SELECT id, state FROM storage WHERE value = ?`
	queryStorageInsert  = `INSERT INTO storage (value, state) VALUES (?, ?)`
	queryStorageInIDs   = `SELECT id, value, state FROM storage WHERE id IN (`
	queryStorageUpsert  = `INSERT INTO storage (value, state) VALUES (?, ?)
		ON CONFLICT(value) DO UPDATE SET state = excluded.state
		RETURNING id`
	queryStorageCount = `SELECT COUNT(*) FROM storage`

	queryPayloadInsert = `INSERT INTO payload (value) VALUES (?)`
	queryPayloadByID   = `SELECT value FROM payload WHERE id = ?`

	queryMaxEventID = `SELECT MAX(
		COALESCE((SELECT MAX(id) FROM event), 0),
		COALESCE((SELECT last_id FROM event_watermark WHERE id = 1), 0))`
	queryBumpWatermark = `INSERT INTO event_watermark (id, last_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_id = MAX(last_id, excluded.last_id)`

	queryInsertFact = `INSERT INTO event (
		id, timestamp, interpretation, manifestation, actor, origin, payload,
		subj_id, subj_interpretation, subj_manifestation, subj_origin,
		subj_mimetype, subj_text, subj_storage
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// queryFactsInIDs is a prefix; the caller appends placeholders and
	// queryFactsOrder.
	queryFactsInIDs = `SELECT id, timestamp, interpretation, manifestation, actor, origin, payload,
		subj_id, subj_interpretation, subj_manifestation, subj_origin,
		subj_mimetype, subj_text, subj_storage
		FROM event WHERE id IN (`
	queryFactsOrder = `) ORDER BY id, row_id`

	queryTimestampsInIDs = `SELECT id, MIN(timestamp) FROM event WHERE id IN (`
	queryGroupByID       = `) GROUP BY id ORDER BY id`
	queryDeleteInIDs     = `DELETE FROM event WHERE id IN (`

	queryCountEvents = `SELECT COUNT(DISTINCT id), COUNT(*) FROM event`
)
