package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/activitylog/internal/ir"
)

// NegationPrefix marks a negative match in the template mini-language.
const NegationPrefix = "!"

// FilterOp tags the Filter variant.
type FilterOp int

const (
	// MatchAny places no constraint on the field.
	MatchAny FilterOp = iota
	// Equals requires the field to be present and equal to Value.
	Equals
	// NotEquals requires the field to be present and different from Value.
	NotEquals
	// EqualsOrDescendantOf requires the field to be Value or any symbol
	// registered below Value in the hierarchy.
	EqualsOrDescendantOf
)

// String returns the name of the operator.
func (op FilterOp) String() string {
	switch op {
	case MatchAny:
		return "any"
	case Equals:
		return "equals"
	case NotEquals:
		return "not-equals"
	case EqualsOrDescendantOf:
		return "equals-or-descendant-of"
	default:
		return fmt.Sprintf("FilterOp(%d)", int(op))
	}
}

// Filter is one field constraint. The zero Filter matches anything.
type Filter struct {
	Op    FilterOp
	Value string
}

// Any returns the MatchAny filter.
func Any() Filter { return Filter{} }

// Eq returns an Equals filter.
func Eq(v string) Filter { return Filter{Op: Equals, Value: v} }

// Not returns a NotEquals filter.
func Not(v string) Filter { return Filter{Op: NotEquals, Value: v} }

// Under returns an EqualsOrDescendantOf filter.
func Under(v string) Filter { return Filter{Op: EqualsOrDescendantOf, Value: v} }

// IsAny reports whether the filter places no constraint.
func (f Filter) IsAny() bool { return f.Op == MatchAny }

// String renders the filter back into the mini-language. Hierarchical and
// plain literals render the same way.
func (f Filter) String() string {
	switch f.Op {
	case MatchAny:
		return ""
	case NotEquals:
		return NegationPrefix + f.Value
	default:
		return f.Value
	}
}

// Normalized returns the filter with its value NFC normalized, matching
// the form values are interned in.
func (f Filter) Normalized() Filter {
	if f.Op != MatchAny {
		f.Value = ir.NormalizeValue(f.Value)
	}
	return f
}

// Field identifies a filterable template field.
type Field int

const (
	FieldInterpretation Field = iota
	FieldManifestation
	FieldActor
	FieldOrigin
	FieldSubjectURI
	FieldSubjectInterpretation
	FieldSubjectManifestation
	FieldSubjectMimetype
	FieldSubjectOrigin
	FieldSubjectText
	FieldSubjectStorage
)

var fieldNames = [...]string{
	FieldInterpretation:        "interpretation",
	FieldManifestation:         "manifestation",
	FieldActor:                 "actor",
	FieldOrigin:                "origin",
	FieldSubjectURI:            "subject.uri",
	FieldSubjectInterpretation: "subject.interpretation",
	FieldSubjectManifestation:  "subject.manifestation",
	FieldSubjectMimetype:       "subject.mimetype",
	FieldSubjectOrigin:         "subject.origin",
	FieldSubjectText:           "subject.text",
	FieldSubjectStorage:        "subject.storage",
}

// String returns the dotted field name.
func (f Field) String() string {
	if int(f) >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// Hierarchical reports whether literals on the field expand to descendants.
func (f Field) Hierarchical() bool {
	switch f {
	case FieldInterpretation, FieldManifestation,
		FieldSubjectInterpretation, FieldSubjectManifestation:
		return true
	default:
		return false
	}
}

// IsSubject reports whether the field lives on a subject row.
func (f Field) IsSubject() bool {
	return f >= FieldSubjectURI
}

// Parse turns a mini-language string into a Filter for the given field.
//
//	""      MatchAny
//	"!v"    NotEquals(v)
//	"v"     EqualsOrDescendantOf(v) on hierarchical fields, Equals(v) otherwise
//
// A lone "!" is rejected: negating nothing has no meaning.
func Parse(field Field, s string) (Filter, error) {
	if s == "" {
		return Any(), nil
	}
	if strings.HasPrefix(s, NegationPrefix) {
		v := strings.TrimPrefix(s, NegationPrefix)
		if v == "" {
			return Filter{}, ir.NewInvalidArgument("parse filter", "%s: negation without a value", field)
		}
		return Not(ir.NormalizeValue(v)), nil
	}
	if field.Hierarchical() {
		return Under(ir.NormalizeValue(s)), nil
	}
	return Eq(ir.NormalizeValue(s)), nil
}
