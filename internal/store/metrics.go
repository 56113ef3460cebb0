package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics holds Prometheus metrics for the write and query paths.
type storeMetrics struct {
	inserted      prometheus.Counter
	deleted       prometheus.Counter
	queryDuration *prometheus.HistogramVec
}

func newStoreMetrics(reg prometheus.Registerer) (*storeMetrics, error) {
	m := &storeMetrics{
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activitylog",
			Subsystem: "store",
			Name:      "events_inserted_total",
			Help:      "Total number of events committed",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "activitylog",
			Subsystem: "store",
			Name:      "events_deleted_total",
			Help:      "Total number of events deleted",
		}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "activitylog",
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Time spent running find queries",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"result_type"}),
	}

	for _, c := range []prometheus.Collector{m.inserted, m.deleted, m.queryDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The record methods are no-ops on a nil receiver so call sites need no
// metrics-enabled check.

func (m *storeMetrics) recordInsert(n int) {
	if m != nil {
		m.inserted.Add(float64(n))
	}
}

func (m *storeMetrics) recordDelete(n int) {
	if m != nil {
		m.deleted.Add(float64(n))
	}
}

func (m *storeMetrics) observeQuery(resultType string, since time.Time) {
	if m != nil {
		m.queryDuration.WithLabelValues(resultType).Observe(time.Since(since).Seconds())
	}
}
