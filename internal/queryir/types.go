package queryir

import "github.com/roach88/activitylog/internal/ir"

// EventTemplate filters events. Event-level filters and the subject
// constraint are AND-combined; Subjects are OR-combined.
type EventTemplate struct {
	Interpretation Filter
	Manifestation  Filter
	Actor          Filter
	Origin         Filter
	Subjects       []SubjectTemplate
}

// SubjectTemplate filters one subject. All fields must hold for the same
// subject.
type SubjectTemplate struct {
	URI            Filter
	Interpretation Filter
	Manifestation  Filter
	Mimetype       Filter
	Origin         Filter
	Text           Filter
	Storage        Filter
}

// FieldFilter pairs a field with its filter.
type FieldFilter struct {
	Field  Field
	Filter Filter
}

// EventFilters returns the event-level filters in a fixed order, skipping
// MatchAny fields.
func (t EventTemplate) EventFilters() []FieldFilter {
	return constrained([]FieldFilter{
		{FieldInterpretation, t.Interpretation},
		{FieldManifestation, t.Manifestation},
		{FieldActor, t.Actor},
		{FieldOrigin, t.Origin},
	})
}

// Filters returns the subject filters in a fixed order, skipping MatchAny
// fields.
func (s SubjectTemplate) Filters() []FieldFilter {
	return constrained([]FieldFilter{
		{FieldSubjectURI, s.URI},
		{FieldSubjectInterpretation, s.Interpretation},
		{FieldSubjectManifestation, s.Manifestation},
		{FieldSubjectMimetype, s.Mimetype},
		{FieldSubjectOrigin, s.Origin},
		{FieldSubjectText, s.Text},
		{FieldSubjectStorage, s.Storage},
	})
}

func constrained(all []FieldFilter) []FieldFilter {
	out := all[:0]
	for _, ff := range all {
		if !ff.Filter.IsAny() {
			out = append(out, ff)
		}
	}
	return out
}

// Query is a complete find request.
type Query struct {
	// TimeRange bounds event timestamps, both ends inclusive.
	TimeRange ir.TimeRange

	// Templates are OR-combined. Empty matches every event.
	Templates []EventTemplate

	// Storage restricts subjects by medium availability. The zero value
	// admits every subject.
	Storage StorageFilter

	// Limit caps the number of results. 0 means unlimited.
	Limit int

	// ResultType selects ordering and grouping.
	ResultType ir.ResultType

	// IncludePayload resolves payload blobs when events are reconstructed.
	IncludePayload bool
}

// NewQuery returns a query over all time with no templates, no storage
// filter, no limit and most-recent-first ordering.
func NewQuery(templates ...EventTemplate) Query {
	return Query{
		TimeRange:  ir.Always(),
		Templates:  templates,
		ResultType: ir.MostRecentEvents,
	}
}

// StorageFilter restricts a query to subjects by the availability of their
// storage medium. The zero value admits every subject.
type StorageFilter int

const (
	// StorageFilterAny admits every subject.
	StorageFilterAny StorageFilter = iota

	// StorageFilterAvailable admits subjects with no medium or with an
	// available one.
	StorageFilterAvailable

	// StorageFilterNotAvailable admits only subjects on an unavailable
	// medium.
	StorageFilterNotAvailable
)

func (f StorageFilter) String() string {
	switch f {
	case StorageFilterAny:
		return "any"
	case StorageFilterAvailable:
		return "available"
	case StorageFilterNotAvailable:
		return "not-available"
	default:
		return "unknown"
	}
}

// Valid reports whether f is a known filter.
func (f StorageFilter) Valid() bool {
	return f >= StorageFilterAny && f <= StorageFilterNotAvailable
}

// State returns the medium state the filter selects. ok is false for
// StorageFilterAny.
func (f StorageFilter) State() (state ir.StorageState, ok bool) {
	switch f {
	case StorageFilterAvailable:
		return ir.StorageAvailable, true
	case StorageFilterNotAvailable:
		return ir.StorageNotAvailable, true
	default:
		return 0, false
	}
}

// ParseStorageFilter parses the names produced by StorageFilter.String. The
// empty string is StorageFilterAny.
func ParseStorageFilter(s string) (StorageFilter, error) {
	switch s {
	case "", "any":
		return StorageFilterAny, nil
	case "available":
		return StorageFilterAvailable, nil
	case "not-available", "unavailable":
		return StorageFilterNotAvailable, nil
	default:
		return 0, ir.NewInvalidArgument("parse storage filter", "unknown storage filter %q", s)
	}
}

// TemplateSpec is the textual form of an EventTemplate, as written in YAML
// or JSON query files. Fields use the filter mini-language.
type TemplateSpec struct {
	Interpretation string        `yaml:"interpretation,omitempty" json:"interpretation,omitempty"`
	Manifestation  string        `yaml:"manifestation,omitempty" json:"manifestation,omitempty"`
	Actor          string        `yaml:"actor,omitempty" json:"actor,omitempty"`
	Origin         string        `yaml:"origin,omitempty" json:"origin,omitempty"`
	Subjects       []SubjectSpec `yaml:"subjects,omitempty" json:"subjects,omitempty"`
}

// SubjectSpec is the textual form of a SubjectTemplate.
type SubjectSpec struct {
	URI            string `yaml:"uri,omitempty" json:"uri,omitempty"`
	Interpretation string `yaml:"interpretation,omitempty" json:"interpretation,omitempty"`
	Manifestation  string `yaml:"manifestation,omitempty" json:"manifestation,omitempty"`
	Mimetype       string `yaml:"mimetype,omitempty" json:"mimetype,omitempty"`
	Origin         string `yaml:"origin,omitempty" json:"origin,omitempty"`
	Text           string `yaml:"text,omitempty" json:"text,omitempty"`
	Storage        string `yaml:"storage,omitempty" json:"storage,omitempty"`
}

// Template parses s into an EventTemplate.
func (s TemplateSpec) Template() (EventTemplate, error) {
	var t EventTemplate
	var err error
	fields := []struct {
		field Field
		src   string
		dst   *Filter
	}{
		{FieldInterpretation, s.Interpretation, &t.Interpretation},
		{FieldManifestation, s.Manifestation, &t.Manifestation},
		{FieldActor, s.Actor, &t.Actor},
		{FieldOrigin, s.Origin, &t.Origin},
	}
	for _, f := range fields {
		if *f.dst, err = Parse(f.field, f.src); err != nil {
			return EventTemplate{}, err
		}
	}
	for _, ss := range s.Subjects {
		st, err := ss.Template()
		if err != nil {
			return EventTemplate{}, err
		}
		t.Subjects = append(t.Subjects, st)
	}
	return t, nil
}

// Template parses s into a SubjectTemplate.
func (s SubjectSpec) Template() (SubjectTemplate, error) {
	var t SubjectTemplate
	var err error
	fields := []struct {
		field Field
		src   string
		dst   *Filter
	}{
		{FieldSubjectURI, s.URI, &t.URI},
		{FieldSubjectInterpretation, s.Interpretation, &t.Interpretation},
		{FieldSubjectManifestation, s.Manifestation, &t.Manifestation},
		{FieldSubjectMimetype, s.Mimetype, &t.Mimetype},
		{FieldSubjectOrigin, s.Origin, &t.Origin},
		{FieldSubjectText, s.Text, &t.Text},
		{FieldSubjectStorage, s.Storage, &t.Storage},
	}
	for _, f := range fields {
		if *f.dst, err = Parse(f.field, f.src); err != nil {
			return SubjectTemplate{}, err
		}
	}
	return t, nil
}

// ParseTemplates parses every spec, failing on the first malformed one.
func ParseTemplates(specs []TemplateSpec) ([]EventTemplate, error) {
	out := make([]EventTemplate, 0, len(specs))
	for _, s := range specs {
		t, err := s.Template()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// QuerySpec is the textual form of a Query. A zero End means no upper
// bound; an empty Storage or Order takes the NewQuery default.
type QuerySpec struct {
	Templates []TemplateSpec `yaml:"templates,omitempty" json:"templates,omitempty"`
	Start     int64          `yaml:"start,omitempty" json:"start,omitempty"`
	End       int64          `yaml:"end,omitempty" json:"end,omitempty"`
	Storage   string         `yaml:"storage,omitempty" json:"storage,omitempty"`
	Limit     int            `yaml:"limit,omitempty" json:"limit,omitempty"`
	Order     string         `yaml:"order,omitempty" json:"order,omitempty"`
	Payload   bool           `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Query parses and validates s.
func (s QuerySpec) Query() (Query, error) {
	templates, err := ParseTemplates(s.Templates)
	if err != nil {
		return Query{}, err
	}
	q := NewQuery(templates...)
	q.TimeRange.Start = s.Start
	if s.End != 0 {
		q.TimeRange.End = s.End
	}
	q.Limit = s.Limit
	q.IncludePayload = s.Payload
	if s.Order != "" {
		if q.ResultType, err = ir.ParseResultType(s.Order); err != nil {
			return Query{}, err
		}
	}
	if q.Storage, err = ParseStorageFilter(s.Storage); err != nil {
		return Query{}, err
	}
	return q, Validate(q)
}
