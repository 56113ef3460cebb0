package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/activitylog/internal/harness"
)

// ScenarioResult is the outcome of one scenario in verify output.
type ScenarioResult struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Steps  int                  `json:"steps"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace,omitempty"`
}

// VerifyResult is the JSON output of verify.
type VerifyResult struct {
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioResult `json:"scenarios"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify PATH...",
		Short: "Run conformance scenarios against a scratch store",
		Long: `Run YAML conformance scenarios. Each path is a scenario file or a
directory of *.yaml scenarios. Every scenario runs against its own
in-memory store; --db is ignored.

Exits with status 1 when any scenario fails.

Examples:
  activitylog verify internal/harness/testdata/scenarios
  activitylog verify my_scenario.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd, args)
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	ctx := cmd.Context()
	out := opts.formatter(cmd)

	var scenarios []*harness.Scenario
	for _, p := range paths {
		loaded, err := loadScenarios(p)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenarios", err)
		}
		scenarios = append(scenarios, loaded...)
	}
	out.VerboseLog("Loaded %d scenarios", len(scenarios))

	result := VerifyResult{Scenarios: make([]ScenarioResult, 0, len(scenarios))}
	for _, s := range scenarios {
		r, err := harness.Run(ctx, s)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s", s.Name), err)
		}
		sr := ScenarioResult{Name: s.Name, Pass: r.Pass, Steps: len(r.Trace), Errors: r.Errors}
		if opts.Verbose {
			sr.Trace = r.Trace
		}
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, sr := range result.Scenarios {
			status := "PASS"
			if !sr.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%s  %s (%d steps)\n", status, sr.Name, sr.Steps)
			for _, e := range sr.Errors {
				fmt.Fprintf(w, "      %s\n", e)
			}
		}
		fmt.Fprintf(w, "\n%d passed, %d failed\n", result.Passed, result.Failed)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, len(scenarios)))
	}
	return nil
}

// loadScenarios loads a single file or every scenario in a directory.
func loadScenarios(path string) ([]*harness.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return harness.LoadScenarios(path)
	}
	s, err := harness.LoadScenario(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []*harness.Scenario{s}, nil
}
