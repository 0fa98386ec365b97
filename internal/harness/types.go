package harness

import (
	"github.com/roach88/storekeeper/internal/value"
)

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	Seq    int64
	Step   string      // e.g. "open app v2", "read notes 1"
	Result value.Value // nil when the step failed
	Error  string      // error code; empty on success
}

// Value renders the event for golden comparison.
func (e TraceEvent) Value() value.Value {
	obj := value.NewObject(
		value.O("seq", value.Int(e.Seq)),
		value.O("step", value.String(e.Step)),
	)
	if e.Error != "" {
		obj["error"] = value.String(e.Error)
	} else {
		obj["result"] = orNull(e.Result)
	}
	return obj
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation and assertion held.
	Pass bool

	// Trace contains one event per step, in order.
	Trace []TraceEvent

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
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

// AddTrace appends an event with the next sequence number.
func (r *Result) AddTrace(step string, result value.Value, errCode string) TraceEvent {
	ev := TraceEvent{
		Seq:    int64(len(r.Trace) + 1),
		Step:   step,
		Result: result,
		Error:  errCode,
	}
	r.Trace = append(r.Trace, ev)
	return ev
}
