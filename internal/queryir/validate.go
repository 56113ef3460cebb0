package queryir

import "github.com/roach88/activitylog/internal/ir"

// Validate checks a query before compilation. Errors are INVALID_ARGUMENT.
//
// Validation is structural only. Whether literal values are interned is a
// question for the compiler, which treats unknown literals as unsatisfiable
// rather than as errors.
func Validate(q Query) error {
	const op = "validate query"

	if !q.TimeRange.Valid() {
		return ir.NewInvalidArgument(op, "invalid time range [%d, %d]", q.TimeRange.Start, q.TimeRange.End)
	}
	if q.Limit < 0 {
		return ir.NewInvalidArgument(op, "limit must be >= 0, got %d", q.Limit)
	}
	if !q.ResultType.Valid() {
		return ir.NewInvalidArgument(op, "unknown result type %d", int(q.ResultType))
	}
	if !q.Storage.Valid() {
		return ir.NewInvalidArgument(op, "unknown storage filter %d", int(q.Storage))
	}

	for i, t := range q.Templates {
		if err := validateTemplate(t); err != nil {
			return ir.NewInvalidArgument(op, "template %d: %v", i, err)
		}
	}
	return nil
}

func validateTemplate(t EventTemplate) error {
	for _, ff := range t.EventFilters() {
		if err := validateFilter(ff); err != nil {
			return err
		}
	}
	for j, s := range t.Subjects {
		for _, ff := range s.Filters() {
			if err := validateFilter(ff); err != nil {
				return ir.NewInvalidArgument("subject", "%d: %v", j, err)
			}
		}
	}
	return nil
}

func validateFilter(ff FieldFilter) error {
	switch ff.Filter.Op {
	case Equals, NotEquals:
	case EqualsOrDescendantOf:
		if !ff.Field.Hierarchical() {
			return ir.NewInvalidArgument(ff.Field.String(), "field is not hierarchical")
		}
	default:
		return ir.NewInvalidArgument(ff.Field.String(), "unknown filter op %s", ff.Filter.Op)
	}
	if ff.Filter.Value == "" {
		return ir.NewInvalidArgument(ff.Field.String(), "%s filter requires a value", ff.Filter.Op)
	}
	return nil
}
