package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/activitylog/internal/store"
)

// StatsResult is the JSON output of stats.
type StatsResult struct {
	store.Stats
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show table sizes and cache statistics",
		Long: `Show event and row counts, the size of every interning table and the
hit/miss counts of its cache for this process.

Examples:
  activitylog stats --db ./activity.db
  activitylog stats --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, cmd)
		},
	}
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	env, err := openStore(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	st, err := env.store.Stats(ctx)
	if err != nil {
		return WrapStoreError("failed to read stats", err)
	}
	result := StatsResult{Stats: st}
	if env.registry != nil {
		if result.Metrics, err = gatherMetrics(env); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "events: %d  rows: %d  last id: %d\n\n", st.Events, st.Rows, st.LastEventID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tCACHE HITS\tCACHE MISSES")
	for _, t := range st.Tables {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", t.Name, t.Rows, t.Cache.Hits, t.Cache.Misses)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(result.Metrics) > 0 {
		names := make([]string, 0, len(result.Metrics))
		for name := range result.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w)
		for _, name := range names {
			fmt.Fprintf(w, "%s %g\n", name, result.Metrics[name])
		}
	}
	return nil
}

// gatherMetrics flattens counters and gauges into name{labels} keys.
func gatherMetrics(env *storeEnv) (map[string]float64, error) {
	families, err := env.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, lp := range m.GetLabel() {
				key += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
