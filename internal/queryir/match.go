package queryir

import (
	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
)

// Matches evaluates the filter against one field value. Absent fields
// (empty values) only satisfy MatchAny.
func (f Filter) Matches(value string, h ontology.Hierarchy) bool {
	switch f.Op {
	case MatchAny:
		return true
	case Equals:
		return value != "" && value == f.Value
	case NotEquals:
		return value != "" && value != f.Value
	case EqualsOrDescendantOf:
		return value != "" && h.IsA(value, f.Value)
	default:
		return false
	}
}

// Matcher evaluates queries against in-memory events with the same
// semantics the SQL compiler produces. Monitors use it to filter freshly
// inserted events without a round trip to the store.
type Matcher struct {
	hierarchy ontology.Hierarchy
}

// NewMatcher creates a Matcher consulting h for hierarchical filters.
// A nil h behaves like ontology.Flat.
func NewMatcher(h ontology.Hierarchy) *Matcher {
	if h == nil {
		h = ontology.Flat{}
	}
	return &Matcher{hierarchy: h}
}

// MatchAny reports whether ev satisfies any of the templates under the
// storage filter. An empty template list matches every event that has a
// subject satisfying the storage filter.
func (m *Matcher) MatchAny(ev *ir.Event, templates []EventTemplate, storage StorageFilter) bool {
	if len(templates) == 0 {
		return m.MatchTemplate(ev, EventTemplate{}, storage)
	}
	for _, t := range templates {
		if m.MatchTemplate(ev, t, storage) {
			return true
		}
	}
	return false
}

// MatchTemplate reports whether ev satisfies t: the event-level filters hold
// and at least one subject satisfies the storage filter and at least one
// subject template (any subject when t has none).
func (m *Matcher) MatchTemplate(ev *ir.Event, t EventTemplate, storage StorageFilter) bool {
	if !t.Interpretation.Matches(ev.Interpretation.Value, m.hierarchy) ||
		!t.Manifestation.Matches(ev.Manifestation.Value, m.hierarchy) ||
		!t.Actor.Matches(ev.Actor.Value, m.hierarchy) ||
		!t.Origin.Matches(ev.Origin.Value, m.hierarchy) {
		return false
	}

	for i := range ev.Subjects {
		subj := &ev.Subjects[i]
		if !storageMatches(subj, storage) {
			continue
		}
		if len(t.Subjects) == 0 {
			return true
		}
		for _, st := range t.Subjects {
			if m.matchSubject(subj, st) {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) matchSubject(s *ir.Subject, t SubjectTemplate) bool {
	return t.URI.Matches(s.URI.Value, m.hierarchy) &&
		t.Interpretation.Matches(s.Interpretation.Value, m.hierarchy) &&
		t.Manifestation.Matches(s.Manifestation.Value, m.hierarchy) &&
		t.Mimetype.Matches(s.Mimetype.Value, m.hierarchy) &&
		t.Origin.Matches(s.Origin.Value, m.hierarchy) &&
		t.Text.Matches(s.Text.Value, m.hierarchy) &&
		t.Storage.Matches(s.Storage.Value, m.hierarchy)
}

// storageMatches applies the storage-state filter to one subject. Subjects
// without a storage medium count as available.
func storageMatches(s *ir.Subject, f StorageFilter) bool {
	switch f {
	case StorageFilterAvailable:
		return s.Storage.Value == "" || s.StorageState == ir.StorageAvailable
	case StorageFilterNotAvailable:
		return s.Storage.Value != "" && s.StorageState == ir.StorageNotAvailable
	default:
		return true
	}
}
