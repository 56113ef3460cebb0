// Package queryir provides the event-template query representation.
//
// A query is a set of event templates plus a time range, a storage-state
// filter, a result type and a cap. Templates are the abstraction boundary
// between callers (CLI files, monitors, service adapters) and the SQL
// backend in package querysql.
//
// TEMPLATES:
//
// An EventTemplate filters the event-level fields (interpretation,
// manifestation, actor, origin) and carries a list of SubjectTemplates.
//
//	[]EventTemplate      OR   - an event qualifies if any template matches
//	EventTemplate fields AND  - event-level and subject-level filters
//	Subjects             OR   - any subject matching any subject template
//	SubjectTemplate      AND  - all fields hold for the same subject
//
// An empty template list matches every event. A template with no subject
// templates places no constraint on subjects.
//
// FILTERS:
//
// Every field holds a Filter, a tagged variant:
//
//	MatchAny               ""          matches anything, including absent fields
//	Equals(v)              "v"         field is present and equal to v
//	NotEquals(v)           "!v"        field is present and differs from v
//	EqualsOrDescendantOf   "v"         (hierarchical fields) v or any symbol below v
//
// Literal values on interpretation and manifestation fields parse to
// EqualsOrDescendantOf; on every other field they parse to Equals. Filters
// are parsed once per query, never per row.
//
// EXISTENTIAL SEMANTICS:
//
// Subject filters, negated or not, are evaluated per subject and combined
// existentially. An event with subjects "a" and "b" matches both {uri: "a"}
// and {uri: "!a"}, because subject "b" satisfies the negation. Matcher and the
// SQL compiler implement the same rule.
package queryir
