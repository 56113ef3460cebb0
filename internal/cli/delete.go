package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DeleteResult is the JSON output of delete.
type DeleteResult struct {
	Requested int `json:"requested"`
	Deleted   int `json:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete events by id",
		Long: `Delete the events with the given ids. Unknown ids are ignored.

Interned values (URIs, actors, mimetypes...) are kept.

Examples:
  activitylog delete --db ./activity.db 12 40`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, cmd *cobra.Command, args []string) error {
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

	n, err := env.store.DeleteEvents(ctx, ids)
	if err != nil {
		return WrapStoreError("failed to delete events", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(DeleteResult{Requested: len(ids), Deleted: n})
	}
	return out.Success(fmt.Sprintf("%d events deleted", n))
}
