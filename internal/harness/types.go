package harness

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Step int    `json:"step"`
	Op   string `json:"op"`

	// IDs holds the ids returned by insert and find, the ids of the events
	// returned by get (0 for a missing event) and the medium id for
	// set_storage.
	IDs []int64 `json:"ids,omitempty"`

	// Count is the number of ids returned, of events found by get or of
	// events removed by delete.
	Count int `json:"count"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one entry per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
