package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/activitylog/internal/ir"
)

// GetResult is the JSON output of get. Missing ids have a null entry.
type GetResult struct {
	Events  []*ir.Event `json:"events"`
	Missing []int64     `json:"missing,omitempty"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get ID...",
		Short: "Print events by id",
		Long: `Print the events with the given ids, in argument order, payloads included.

Exits with status 1 when any id has no event.

Examples:
  activitylog get --db ./activity.db 12 40 41
  activitylog get 12 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runGet(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ids, err := parseIDs(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	env, err := openStore(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	events, err := env.store.GetEvents(ctx, ids)
	if err != nil {
		return WrapStoreError("failed to get events", err)
	}

	result := GetResult{Events: events}
	for i, ev := range events {
		if ev == nil {
			result.Missing = append(result.Missing, ids[i])
		}
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		for i, ev := range events {
			if ev == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d  not found\n", ids[i])
				continue
			}
			writeEvent(cmd.OutOrStdout(), ev)
		}
	}

	if len(result.Missing) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d events not found", len(result.Missing), len(ids)))
	}
	return nil
}
