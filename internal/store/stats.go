package store

import (
	"context"

	"github.com/roach88/activitylog/internal/cache"
)

// TableStats describes one entity table.
type TableStats struct {
	Name  string      `json:"name"`
	Rows  int64       `json:"rows"`
	Cache cache.Stats `json:"cache"`
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Events      int64        `json:"events"`
	Rows        int64        `json:"rows"`
	LastEventID int64        `json:"last_event_id"`
	Tables      []TableStats `json:"tables"`
}

// Stats reports row counts per table and cache statistics. Tables are
// listed in a fixed order with storage last.
func (s *EventStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Events, st.Rows, err = s.facts.counts(ctx); err != nil {
		return Stats{}, err
	}
	st.LastEventID = s.ids.Current()

	for _, name := range entityTableNames {
		t := s.tables[name]
		n, err := t.Count(ctx)
		if err != nil {
			return Stats{}, err
		}
		st.Tables = append(st.Tables, TableStats{Name: name, Rows: n, Cache: t.CacheStats()})
	}
	n, err := s.storage.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Tables = append(st.Tables, TableStats{Name: TableStorage, Rows: n, Cache: s.storage.CacheStats()})
	return st, nil
}
