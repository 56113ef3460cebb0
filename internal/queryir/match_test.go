package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
)

func builtin(t *testing.T) *ontology.Registry {
	t.Helper()
	r, err := ontology.Builtin()
	require.NoError(t, err)
	return r
}

func twoSubjectEvent() *ir.Event {
	return &ir.Event{
		Timestamp:      100,
		Interpretation: ir.E(ontology.ZG + "AccessEvent"),
		Manifestation:  ir.E(ontology.ZG + "UserActivity"),
		Actor:          ir.E("application://gedit.desktop"),
		Subjects: []ir.Subject{
			{URI: ir.E("a"), Interpretation: ir.E(ontology.NFO + "SourceCode"), Mimetype: ir.E("text/x-go")},
			{URI: ir.E("b"), Interpretation: ir.E(ontology.NFO + "Image"), Storage: ir.E("usb-1"), StorageState: ir.StorageNotAvailable},
		},
	}
}

func TestMatcher_NegationIsExistential(t *testing.T) {
	m := NewMatcher(builtin(t))
	ev := twoSubjectEvent()

	pos := EventTemplate{Subjects: []SubjectTemplate{{URI: Eq("a")}}}
	neg := EventTemplate{Subjects: []SubjectTemplate{{URI: Not("a")}}}

	assert.True(t, m.MatchTemplate(ev, pos, StorageFilterAny))
	assert.True(t, m.MatchTemplate(ev, neg, StorageFilterAny), "subject b satisfies !a")

	only := &ir.Event{Subjects: []ir.Subject{{URI: ir.E("a")}}}
	assert.False(t, m.MatchTemplate(only, neg, StorageFilterAny))
}

func TestMatcher_SubjectFieldsBindToSameSubject(t *testing.T) {
	m := NewMatcher(builtin(t))
	ev := twoSubjectEvent()

	// uri a is source code, uri b is an image; no single subject is both.
	cross := EventTemplate{Subjects: []SubjectTemplate{{URI: Eq("a"), Interpretation: Under(ontology.NFO + "Image")}}}
	assert.False(t, m.MatchTemplate(ev, cross, StorageFilterAny))

	// Subject templates are OR-combined.
	either := EventTemplate{Subjects: []SubjectTemplate{
		{URI: Eq("z")},
		{URI: Eq("b"), Interpretation: Under(ontology.NFO + "Image")},
	}}
	assert.True(t, m.MatchTemplate(ev, either, StorageFilterAny))
}

func TestMatcher_HierarchyExpansion(t *testing.T) {
	ev := twoSubjectEvent()
	tmpl := EventTemplate{Subjects: []SubjectTemplate{{Interpretation: Under(ontology.NFO + "Document")}}}

	assert.True(t, NewMatcher(builtin(t)).MatchTemplate(ev, tmpl, StorageFilterAny))
	assert.False(t, NewMatcher(nil).MatchTemplate(ev, tmpl, StorageFilterAny), "flat hierarchy only matches exact symbols")
}

func TestMatcher_EventLevelFilters(t *testing.T) {
	m := NewMatcher(builtin(t))
	ev := twoSubjectEvent()

	assert.True(t, m.MatchTemplate(ev, EventTemplate{Actor: Eq("application://gedit.desktop")}, StorageFilterAny))
	assert.False(t, m.MatchTemplate(ev, EventTemplate{Actor: Not("application://gedit.desktop")}, StorageFilterAny))
	assert.False(t, m.MatchTemplate(ev, EventTemplate{Origin: Not("x")}, StorageFilterAny), "absent field fails negation")
	assert.True(t, m.MatchTemplate(ev, EventTemplate{Interpretation: Under(ontology.ZG + "EventInterpretation")}, StorageFilterAny))
}

func TestMatcher_StorageState(t *testing.T) {
	m := NewMatcher(nil)
	ev := twoSubjectEvent()

	imageOnly := EventTemplate{Subjects: []SubjectTemplate{{URI: Eq("b")}}}
	assert.False(t, m.MatchTemplate(ev, imageOnly, StorageFilterAvailable))
	assert.True(t, m.MatchTemplate(ev, imageOnly, StorageFilterNotAvailable))

	codeOnly := EventTemplate{Subjects: []SubjectTemplate{{URI: Eq("a")}}}
	assert.True(t, m.MatchTemplate(ev, codeOnly, StorageFilterAvailable), "no storage medium counts as available")
	assert.False(t, m.MatchTemplate(ev, codeOnly, StorageFilterNotAvailable))
}

func TestMatcher_MatchAny(t *testing.T) {
	m := NewMatcher(nil)
	ev := twoSubjectEvent()

	assert.True(t, m.MatchAny(ev, nil, StorageFilterAny))
	assert.False(t, m.MatchAny(ev, []EventTemplate{{Actor: Eq("x")}, {Origin: Eq("y")}}, StorageFilterAny))
	assert.True(t, m.MatchAny(ev, []EventTemplate{{Actor: Eq("x")}, {}}, StorageFilterAny))
	assert.False(t, m.MatchAny(&ir.Event{}, nil, StorageFilterAny), "an event without subjects has no rows")
}
