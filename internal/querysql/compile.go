package querysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/ontology"
	"github.com/roach88/activitylog/internal/queryir"
)

// Resolver maps literal template values to interned ids. ok is false when
// the value has never been interned in table.
type Resolver interface {
	ResolveID(ctx context.Context, table, value string) (id int64, ok bool, err error)
}

type column struct {
	name  string
	table string
}

var columns = map[queryir.Field]column{
	queryir.FieldInterpretation:        {"e.interpretation", "interpretation"},
	queryir.FieldManifestation:         {"e.manifestation", "manifestation"},
	queryir.FieldActor:                 {"e.actor", "actor"},
	queryir.FieldOrigin:                {"e.origin", "uri"},
	queryir.FieldSubjectURI:            {"e.subj_id", "uri"},
	queryir.FieldSubjectInterpretation: {"e.subj_interpretation", "interpretation"},
	queryir.FieldSubjectManifestation:  {"e.subj_manifestation", "manifestation"},
	queryir.FieldSubjectMimetype:       {"e.subj_mimetype", "mimetype"},
	queryir.FieldSubjectOrigin:         {"e.subj_origin", "uri"},
	queryir.FieldSubjectText:           {"e.subj_text", "text"},
	queryir.FieldSubjectStorage:        {"e.subj_storage", "storage"},
}

// TableFor returns the name of the entity table that interns values of f.
func TableFor(f queryir.Field) string {
	return columns[f].table
}

// shape is the grouping and ordering for one result type.
type shape struct {
	groupBy    string
	agg        string // MAX or MIN; selects the representative row of a group
	popularity bool
	orderBy    string
}

var shapes = map[ir.ResultType]shape{
	ir.MostRecentEvents:     {groupBy: "e.id", agg: "MAX", orderBy: "ts DESC, e.id DESC"},
	ir.LeastRecentEvents:    {groupBy: "e.id", agg: "MAX", orderBy: "ts ASC, e.id ASC"},
	ir.MostRecentSubjects:   {groupBy: "e.subj_id", agg: "MAX", orderBy: "ts DESC, e.id DESC"},
	ir.LeastRecentSubjects:  {groupBy: "e.subj_id", agg: "MIN", orderBy: "ts ASC, e.id ASC"},
	ir.MostPopularSubjects:  {groupBy: "e.subj_id", agg: "MAX", popularity: true, orderBy: "n DESC, ts DESC, e.id DESC"},
	ir.LeastPopularSubjects: {groupBy: "e.subj_id", agg: "MAX", popularity: true, orderBy: "n ASC, ts ASC, e.id ASC"},
	ir.MostPopularActor:     {groupBy: "e.actor", agg: "MAX", popularity: true, orderBy: "n DESC, ts DESC, e.id DESC"},
	ir.LeastPopularActor:    {groupBy: "e.actor", agg: "MAX", popularity: true, orderBy: "n ASC, ts ASC, e.id ASC"},
}

// Plan is a compiled query, ready to run against the event table.
type Plan struct {
	// SQL selects event ids in result order. Empty when the plan is Empty.
	SQL  string
	Args []any

	// Empty is set when no template can match any stored event, for example
	// because every template names a value that was never interned. The
	// result is empty without a scan.
	Empty bool

	// Limit is the result cap applied after duplicate ids are dropped.
	// 0 means unlimited.
	Limit int

	ResultType ir.ResultType

	columns int
}

// ScanID reads the event id from the current row of rows produced by SQL.
func (p *Plan) ScanID(rows *sql.Rows) (int64, error) {
	var id int64
	var ts, n sql.NullInt64
	dest := []any{&id, &ts, &n}
	if err := rows.Scan(dest[:p.columns]...); err != nil {
		return 0, err
	}
	return id, nil
}

// String renders the plan for logs and golden tests.
func (p *Plan) String() string {
	if p.Empty {
		return "-- empty\n"
	}
	return fmt.Sprintf("%s\n-- args: %v\n", p.SQL, p.Args)
}

// Compiler turns template queries into parameterized SQL over the event
// table. Literal values are resolved to interned ids once, at compile time,
// so the generated SQL compares integer columns only.
//
// Every plan carries a complete ORDER BY with the event id as tiebreaker,
// and all values are parameterized, never interpolated.
type Compiler struct {
	resolver  Resolver
	hierarchy ontology.Hierarchy
}

// NewCompiler creates a Compiler. A nil hierarchy behaves like ontology.Flat.
func NewCompiler(r Resolver, h ontology.Hierarchy) *Compiler {
	if h == nil {
		h = ontology.Flat{}
	}
	return &Compiler{resolver: r, hierarchy: h}
}

// Compile validates q and produces its plan.
func (c *Compiler) Compile(ctx context.Context, q queryir.Query) (*Plan, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, err
	}

	res := &resolution{ctx: ctx, c: c, memo: make(map[string]resolved)}
	where, args, ok, err := res.predicate(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	plan := &Plan{Limit: q.Limit, ResultType: q.ResultType}
	if !ok {
		plan.Empty = true
		return plan, nil
	}

	sh := shapes[q.ResultType]
	if sh.groupBy != "e.id" {
		where += " AND " + sh.groupBy + " IS NOT NULL"
	}

	var b strings.Builder
	b.WriteString("SELECT e.id, ")
	b.WriteString(sh.agg)
	b.WriteString("(e.timestamp) AS ts")
	plan.columns = 2
	if sh.popularity {
		b.WriteString(", COUNT(DISTINCT e.id) AS n")
		plan.columns = 3
	}
	b.WriteString(" FROM event e WHERE ")
	b.WriteString(where)
	b.WriteString(" GROUP BY ")
	b.WriteString(sh.groupBy)
	b.WriteString(" ORDER BY ")
	b.WriteString(sh.orderBy)

	// Grouping by subject or actor can yield the same event more than once;
	// those plans are capped by the caller after de-duplication.
	if q.Limit > 0 && sh.groupBy == "e.id" {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	plan.SQL = b.String()
	plan.Args = args
	return plan, nil
}

type resolved struct {
	id int64
	ok bool
}

// resolution holds the per-compile memo of literal lookups.
type resolution struct {
	ctx  context.Context
	c    *Compiler
	memo map[string]resolved
}

func (r *resolution) resolve(table, value string) (int64, bool, error) {
	key := table + "\x00" + value
	if v, ok := r.memo[key]; ok {
		return v.id, v.ok, nil
	}
	id, ok, err := r.c.resolver.ResolveID(r.ctx, table, value)
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s %q: %w", table, value, err)
	}
	r.memo[key] = resolved{id: id, ok: ok}
	return id, ok, nil
}

// predicate builds the row-level WHERE clause. ok is false when no template
// is satisfiable. Rows match per subject; the GROUP BY collapses matching
// rows to events, which makes subject filters existential.
func (r *resolution) predicate(q queryir.Query) (string, []any, bool, error) {
	parts := []string{"e.timestamp BETWEEN ? AND ?"}
	args := []any{q.TimeRange.Start, q.TimeRange.End}

	if state, ok := q.Storage.State(); ok {
		if q.Storage == queryir.StorageFilterAvailable {
			parts = append(parts, "(e.subj_storage IS NULL OR e.subj_storage IN (SELECT id FROM storage WHERE state = ?))")
		} else {
			parts = append(parts, "e.subj_storage IN (SELECT id FROM storage WHERE state = ?)")
		}
		args = append(args, int(state))
	}

	if len(q.Templates) == 0 {
		return strings.Join(parts, " AND "), args, true, nil
	}

	var alts []string
	var altArgs []any
	for _, t := range q.Templates {
		frag, targs, ok, err := r.template(t)
		if err != nil {
			return "", nil, false, err
		}
		if !ok {
			continue
		}
		if frag == "" {
			// An unconstrained template matches every row.
			return strings.Join(parts, " AND "), args, true, nil
		}
		alts = append(alts, frag)
		altArgs = append(altArgs, targs...)
	}
	if len(alts) == 0 {
		return "", nil, false, nil
	}

	parts = append(parts, group("OR", alts))
	args = append(args, altArgs...)
	return strings.Join(parts, " AND "), args, true, nil
}

// template compiles one event template. An empty fragment with ok set means
// the template places no constraint.
func (r *resolution) template(t queryir.EventTemplate) (string, []any, bool, error) {
	var parts []string
	var args []any

	for _, ff := range t.EventFilters() {
		frag, fargs, ok, err := r.filter(ff)
		if err != nil || !ok {
			return "", nil, false, err
		}
		parts = append(parts, frag)
		args = append(args, fargs...)
	}

	if len(t.Subjects) > 0 {
		frag, sargs, ok, err := r.subjects(t.Subjects)
		if err != nil || !ok {
			return "", nil, false, err
		}
		if frag != "" {
			parts = append(parts, frag)
			args = append(args, sargs...)
		}
	}

	if len(parts) == 0 {
		return "", nil, true, nil
	}
	return group("AND", parts), args, true, nil
}

func (r *resolution) subjects(subjects []queryir.SubjectTemplate) (string, []any, bool, error) {
	var alts []string
	var args []any

next:
	for _, st := range subjects {
		var conj []string
		var cargs []any
		for _, ff := range st.Filters() {
			frag, fargs, ok, err := r.filter(ff)
			if err != nil {
				return "", nil, false, err
			}
			if !ok {
				continue next
			}
			conj = append(conj, frag)
			cargs = append(cargs, fargs...)
		}
		if len(conj) == 0 {
			return "", nil, true, nil
		}
		alts = append(alts, group("AND", conj))
		args = append(args, cargs...)
	}

	if len(alts) == 0 {
		return "", nil, false, nil
	}
	return group("OR", alts), args, true, nil
}

// filter compiles one field filter. ok is false when the filter cannot match
// any stored row.
func (r *resolution) filter(ff queryir.FieldFilter) (string, []any, bool, error) {
	col, known := columns[ff.Field]
	if !known {
		return "", nil, false, ir.NewInvalidArgument("compile filter", "unknown field %s", ff.Field)
	}

	switch ff.Filter.Op {
	case queryir.Equals:
		id, ok, err := r.resolve(col.table, ff.Filter.Value)
		if err != nil || !ok {
			return "", nil, false, err
		}
		return col.name + " = ?", []any{id}, true, nil

	case queryir.NotEquals:
		id, ok, err := r.resolve(col.table, ff.Filter.Value)
		if err != nil {
			return "", nil, false, err
		}
		if !ok {
			// Every present value differs from one never interned.
			return col.name + " IS NOT NULL", nil, true, nil
		}
		return "(" + col.name + " IS NOT NULL AND " + col.name + " <> ?)", []any{id}, true, nil

	case queryir.EqualsOrDescendantOf:
		var ids []any
		for _, v := range r.c.hierarchy.Expand(ff.Filter.Value) {
			id, ok, err := r.resolve(col.table, v)
			if err != nil {
				return "", nil, false, err
			}
			if ok {
				ids = append(ids, id)
			}
		}
		switch len(ids) {
		case 0:
			return "", nil, false, nil
		case 1:
			return col.name + " = ?", ids, true, nil
		default:
			return col.name + " IN (" + placeholders(len(ids)) + ")", ids, true, nil
		}

	default:
		return "", nil, false, ir.NewInvalidArgument("compile filter", "%s: unsupported op %s", ff.Field, ff.Filter.Op)
	}
}

// group joins parts with op, parenthesizing when there is more than one.
func group(op string, parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
