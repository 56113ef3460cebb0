package ir

import (
	"math"
	"time"
)

// TimeRange is an inclusive [Start, End] interval of millisecond timestamps.
type TimeRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Always returns the range covering every representable timestamp.
func Always() TimeRange {
	return TimeRange{Start: 0, End: math.MaxInt64}
}

// Until returns the range from the epoch up to and including t.
func Until(t time.Time) TimeRange {
	return TimeRange{Start: 0, End: t.UnixMilli()}
}

// FromNow returns the range starting at now and extending to the end of time.
func FromNow(now time.Time) TimeRange {
	return TimeRange{Start: now.UnixMilli(), End: math.MaxInt64}
}

// Contains reports whether ts lies within the range, bounds included.
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.Start && ts <= r.End
}

// Valid reports whether Start does not exceed End.
func (r TimeRange) Valid() bool {
	return r.Start <= r.End && r.Start >= 0
}

// Overlaps reports whether r and o share at least one timestamp.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

// Span returns the smallest range containing both r and ts.
func (r TimeRange) Span(ts int64) TimeRange {
	if ts < r.Start {
		r.Start = ts
	}
	if ts > r.End {
		r.End = ts
	}
	return r
}

// ResultType selects the ordering and grouping of query results.
type ResultType int

const (
	// MostRecentEvents orders events newest first.
	MostRecentEvents ResultType = iota
	// LeastRecentEvents orders events oldest first.
	LeastRecentEvents
	// MostRecentSubjects returns the newest event per subject URI, newest first.
	MostRecentSubjects
	// LeastRecentSubjects returns the newest event per subject URI, oldest first.
	LeastRecentSubjects
	// MostPopularSubjects returns the newest event per subject URI, ordered
	// by how many events reference the subject, most first.
	MostPopularSubjects
	// LeastPopularSubjects is MostPopularSubjects with the fewest first.
	LeastPopularSubjects
	// MostPopularActor returns the newest event per actor, most active first.
	MostPopularActor
	// LeastPopularActor returns the newest event per actor, least active first.
	LeastPopularActor
)

var resultTypeNames = map[ResultType]string{
	MostRecentEvents:     "most-recent-events",
	LeastRecentEvents:    "least-recent-events",
	MostRecentSubjects:   "most-recent-subjects",
	LeastRecentSubjects:  "least-recent-subjects",
	MostPopularSubjects:  "most-popular-subjects",
	LeastPopularSubjects: "least-popular-subjects",
	MostPopularActor:     "most-popular-actor",
	LeastPopularActor:    "least-popular-actor",
}

// String returns the kebab-case name of the result type.
func (r ResultType) String() string {
	if name, ok := resultTypeNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is a known result type.
func (r ResultType) Valid() bool {
	_, ok := resultTypeNames[r]
	return ok
}

// ParseResultType parses the names produced by ResultType.String.
func ParseResultType(s string) (ResultType, error) {
	for rt, name := range resultTypeNames {
		if name == s {
			return rt, nil
		}
	}
	return 0, NewInvalidArgument("parse result type", "unknown result type %q", s)
}
