package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/activitylog/internal/ir"
	"github.com/roach88/activitylog/internal/queryir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup events are inserted before the flow and are assumed to
	// succeed. They receive ids 1..len(Setup).
	Setup []ir.EventSpec `yaml:"setup,omitempty"`

	// Flow contains the store operations under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and store contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one store operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Events are inserted by insert.
	Events []ir.EventSpec `yaml:"events,omitempty"`

	// IDs are read by get and removed by delete.
	IDs []int64 `yaml:"ids,omitempty"`

	// Query is run by find. Nil runs the default query.
	Query *queryir.QuerySpec `yaml:"query,omitempty"`

	// Medium and State are used by set_storage.
	Medium string `yaml:"medium,omitempty"`
	State  string `yaml:"state,omitempty"`

	// Expect validates the step. If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// IDs must equal the traced ids exactly.
	IDs []int64 `yaml:"ids,omitempty"`

	// Count must equal the traced count.
	Count *int `yaml:"count,omitempty"`

	// Error is the expected error code, e.g. INVALID_ARGUMENT. Empty
	// means the step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the store after the flow.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected number (events, table_rows, op_count).
	Count int `yaml:"count,omitempty"`

	// Table names the interning table (table_rows).
	Table string `yaml:"table,omitempty"`

	// Medium and State name the storage medium and its expected state
	// (storage_state).
	Medium string `yaml:"medium,omitempty"`
	State  string `yaml:"state,omitempty"`

	// ID and Expect select an event and its expected fields (event).
	ID     int64          `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Op names the operation counted by op_count.
	Op string `yaml:"op,omitempty"`
}

// Flow operations.
const (
	OpInsert      = "insert"
	OpGet         = "get"
	OpFind        = "find"
	OpDelete      = "delete"
	OpSetStorage  = "set_storage"
	OpClearCaches = "clear_caches"
)

var validOps = []string{OpInsert, OpGet, OpFind, OpDelete, OpSetStorage, OpClearCaches}

// Assertion type constants.
const (
	AssertEvents       = "events"
	AssertTableRows    = "table_rows"
	AssertStorageState = "storage_state"
	AssertEvent        = "event"
	AssertOpCount      = "op_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario from YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	if !slices.Contains(validOps, step.Op) {
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}
	switch step.Op {
	case OpInsert:
		if len(step.Events) == 0 {
			return fmt.Errorf("flow[%d]: events are required for insert", index)
		}
	case OpGet, OpDelete:
		if len(step.IDs) == 0 {
			return fmt.Errorf("flow[%d]: ids are required for %s", index, step.Op)
		}
	case OpSetStorage:
		if step.Medium == "" || step.State == "" {
			return fmt.Errorf("flow[%d]: medium and state are required for set_storage", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEvents:
	case AssertTableRows:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_rows", index)
		}
	case AssertStorageState:
		if a.Medium == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: medium and state are required for storage_state", index)
		}
	case AssertEvent:
		if a.ID <= 0 {
			return fmt.Errorf("assertions[%d]: positive id is required for event", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for event", index)
		}
	case AssertOpCount:
		if !slices.Contains(validOps, a.Op) {
			return fmt.Errorf("assertions[%d]: unknown op %q for op_count", index, a.Op)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
