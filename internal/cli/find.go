package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/queryir"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Template string
	Start    string
	End      string
	Storage  string
	Limit    int
	Order    string
	Payload  bool
	IDsOnly  bool
}

// FindResult is the JSON output of find.
type FindResult struct {
	ResultType string      `json:"result_type"`
	IDs        []int64     `json:"ids"`
	Events     []*ir.Event `json:"events,omitempty"`
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find events matching templates",
		Long: `Find events matching any of the templates in a YAML file.

Template fields use the filter language: a value matches exactly, or also
any narrower symbol for interpretation and manifestation; a leading "!"
negates; an empty field matches anything. All fields of one subject
template must hold for the same subject.

Example template file:
  - actor: application://gedit.desktop
    subjects:
      - interpretation: http://www.semanticdesktop.org/ontologies/2007/03/22/nfo#Document
      - uri: "!file:///tmp/scratch.txt"

Orders: most-recent-events, least-recent-events, most-recent-subjects,
least-recent-subjects, most-popular-subjects, least-popular-subjects,
most-popular-actor, least-popular-actor.

Examples:
  activitylog find --db ./activity.db --limit 20
  activitylog find --template docs.yaml --start 2024-01-01T00:00:00Z --order most-popular-subjects
  activitylog find --storage available --ids-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Template, "template", "t", "", "YAML template file, - for stdin")
	cmd.Flags().StringVar(&opts.Start, "start", "", "earliest timestamp, RFC 3339 or milliseconds")
	cmd.Flags().StringVar(&opts.End, "end", "", "latest timestamp, RFC 3339 or milliseconds")
	cmd.Flags().StringVar(&opts.Storage, "storage", queryir.StorageFilterAny.String(), "storage state (any|available|not-available)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of results (0 = unlimited)")
	cmd.Flags().StringVar(&opts.Order, "order", ir.MostRecentEvents.String(), "result type")
	cmd.Flags().BoolVar(&opts.Payload, "payload", false, "include payloads")
	cmd.Flags().BoolVar(&opts.IDsOnly, "ids-only", false, "print event ids only")

	return cmd
}

func runFind(opts *FindOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	q, err := opts.query(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	env, err := openStore(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	result := FindResult{ResultType: q.ResultType.String()}
	if opts.IDsOnly {
		result.IDs, err = env.store.FindEventIDs(ctx, q)
	} else {
		result.Events, err = env.store.FindEvents(ctx, q)
		result.IDs = make([]int64, len(result.Events))
		for i, ev := range result.Events {
			result.IDs[i] = ev.ID
		}
	}
	if err != nil {
		return WrapStoreError("failed to find events", err)
	}
	if result.IDs == nil {
		result.IDs = []int64{}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}
	w := cmd.OutOrStdout()
	if opts.IDsOnly {
		for _, id := range result.IDs {
			fmt.Fprintln(w, id)
		}
		return nil
	}
	for _, ev := range result.Events {
		writeEvent(w, ev)
	}
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No matching events")
	}
	return nil
}

// query builds the store query from the flags.
func (o *FindOptions) query(cmd *cobra.Command) (queryir.Query, error) {
	q := queryir.NewQuery()
	q.Limit = o.Limit
	q.IncludePayload = o.Payload

	var err error
	if q.ResultType, err = ir.ParseResultType(o.Order); err != nil {
		return queryir.Query{}, err
	}
	if q.Storage, err = queryir.ParseStorageFilter(o.Storage); err != nil {
		return queryir.Query{}, err
	}
	if o.Start != "" {
		if q.TimeRange.Start, err = parseTime(o.Start); err != nil {
			return queryir.Query{}, err
		}
	}
	if o.End != "" {
		if q.TimeRange.End, err = parseTime(o.End); err != nil {
			return queryir.Query{}, err
		}
	}
	if o.Template != "" {
		data, err := readInput(o.Template, cmd.InOrStdin())
		if err != nil {
			return queryir.Query{}, err
		}
		if q.Templates, err = parseTemplates(data); err != nil {
			return queryir.Query{}, err
		}
	}
	return q, queryir.Validate(q)
}
