package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/activitylog/internal/ir"
)

// payloadStore keeps opaque event payloads, addressed by id only.
type payloadStore struct {
	db *sql.DB
}

// insert appends a payload inside the write pass and returns its id.
func (p *payloadStore) insert(ctx context.Context, w *writeTx, blob []byte) (int64, error) {
	res, err := w.tx.ExecContext(ctx, queryPayloadInsert, blob)
	if err != nil {
		return 0, ir.NewStorageUnavailable("insert payload", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ir.NewStorageUnavailable("insert payload", fmt.Errorf("last insert id: %w", err))
	}
	return id, nil
}

// get returns the payload with the given id. ok is false when absent.
func (p *payloadStore) get(ctx context.Context, id int64) ([]byte, bool, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, queryPayloadByID, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ir.NewStorageUnavailable("get payload", err)
	}
	return blob, true, nil
}
