package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/activitylog/internal/ir"
)

// NewStorageCommand creates the storage command group.
func NewStorageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Manage storage media",
	}
	cmd.AddCommand(newStorageSetCommand(rootOpts))
	return cmd
}

func newStorageSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set MEDIUM available|not-available",
		Short: "Record whether a storage medium is reachable",
		Long: `Record whether a storage medium is reachable. Queries filtering on
storage state see the change immediately. Unknown media are created.

Examples:
  activitylog storage set usb-4F2A not-available`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorageSet(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runStorageSet(opts *RootOptions, cmd *cobra.Command, medium, stateName string) error {
	ctx := cmd.Context()
	state, err := ir.ParseStorageState(stateName)
	if err != nil {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid state %q: must be available or not-available", stateName))
	}

	env, err := openStore(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	e, err := env.store.SetStorageState(ctx, medium, state)
	if err != nil {
		return WrapStoreError("failed to set storage state", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(e)
	}
	return out.Success(fmt.Sprintf("%s (#%d) is %s", e.Value, e.ID, state))
}
