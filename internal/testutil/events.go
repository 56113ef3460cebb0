package testutil

import "github.com/roach88/activitylog/internal/ir"

// EventBuilder assembles ir.Event values for tests.
type EventBuilder struct {
	ev ir.Event
}

// NewEvent starts an event at timestamp ts (milliseconds).
func NewEvent(ts int64) *EventBuilder {
	return &EventBuilder{ev: ir.Event{Timestamp: ts}}
}

func (b *EventBuilder) Interpretation(v string) *EventBuilder {
	b.ev.Interpretation = ir.E(v)
	return b
}

func (b *EventBuilder) Manifestation(v string) *EventBuilder {
	b.ev.Manifestation = ir.E(v)
	return b
}

func (b *EventBuilder) Actor(v string) *EventBuilder {
	b.ev.Actor = ir.E(v)
	return b
}

func (b *EventBuilder) Origin(v string) *EventBuilder {
	b.ev.Origin = ir.E(v)
	return b
}

func (b *EventBuilder) Payload(p []byte) *EventBuilder {
	b.ev.Payload = p
	return b
}

// Subject appends a subject with the given URI.
func (b *EventBuilder) Subject(uri string, opts ...SubjectOption) *EventBuilder {
	s := ir.Subject{URI: ir.E(uri)}
	for _, opt := range opts {
		opt(&s)
	}
	b.ev.Subjects = append(b.ev.Subjects, s)
	return b
}

// Build returns a copy of the event.
func (b *EventBuilder) Build() *ir.Event {
	ev := b.ev
	ev.Subjects = append([]ir.Subject(nil), b.ev.Subjects...)
	return &ev
}

// SubjectOption sets a subject field.
type SubjectOption func(*ir.Subject)

func WithInterpretation(v string) SubjectOption {
	return func(s *ir.Subject) { s.Interpretation = ir.E(v) }
}

func WithManifestation(v string) SubjectOption {
	return func(s *ir.Subject) { s.Manifestation = ir.E(v) }
}

func WithMimetype(v string) SubjectOption {
	return func(s *ir.Subject) { s.Mimetype = ir.E(v) }
}

func WithOrigin(v string) SubjectOption {
	return func(s *ir.Subject) { s.Origin = ir.E(v) }
}

func WithText(v string) SubjectOption {
	return func(s *ir.Subject) { s.Text = ir.E(v) }
}

func WithStorage(v string) SubjectOption {
	return func(s *ir.Subject) { s.Storage = ir.E(v) }
}

// Values flattens an event into comparable strings, ignoring ids. Useful
// for asserting a round trip.
func Values(ev *ir.Event) map[string]any {
	subjects := make([]map[string]string, len(ev.Subjects))
	for i, s := range ev.Subjects {
		subjects[i] = map[string]string{
			"uri":            s.URI.Value,
			"interpretation": s.Interpretation.Value,
			"manifestation":  s.Manifestation.Value,
			"mimetype":       s.Mimetype.Value,
			"origin":         s.Origin.Value,
			"text":           s.Text.Value,
			"storage":        s.Storage.Value,
		}
	}
	return map[string]any{
		"timestamp":      ev.Timestamp,
		"interpretation": ev.Interpretation.Value,
		"manifestation":  ev.Manifestation.Value,
		"actor":          ev.Actor.Value,
		"origin":         ev.Origin.Value,
		"subjects":       subjects,
	}
}
