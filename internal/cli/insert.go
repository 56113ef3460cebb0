package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	File string
}

// InsertResult is the JSON output of insert.
type InsertResult struct {
	IDs []int64 `json:"ids"`
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert events from a YAML file",
		Long: `Insert a YAML list of events. All events are stored or none are.

A zero or missing timestamp is replaced with the current time.

Example file:
  - timestamp: 1700000000000
    interpretation: http://www.zeitgeist-project.com/ontologies/2010/01/27/zg#AccessEvent
    actor: application://gedit.desktop
    subjects:
      - uri: file:///home/user/notes.txt
        mimetype: text/plain

Examples:
  activitylog insert --db ./activity.db --file events.yaml
  cat events.yaml | activitylog insert --file -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML events file, - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runInsert(opts *InsertOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	data, err := readInput(opts.File, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	events, err := parseEvents(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid events file", err)
	}
	out.VerboseLog("Read %d events from %s", len(events), opts.File)

	env, err := openStore(ctx, cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	ids, err := env.store.InsertEvents(ctx, events)
	if err != nil {
		return WrapStoreError("failed to insert events", err)
	}

	if opts.Format == "json" {
		return out.Success(InsertResult{IDs: ids})
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
