package harness

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storekeeper/internal/database"
	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/schema"
	"github.com/roach88/storekeeper/internal/value"
)

// Harness is the test execution engine. It drives one factory and at
// most one open connection at a time.
type Harness struct {
	f      *engine.Factory
	conn   *database.Connection
	result *Result
}

// Run executes a scenario against databases stored under dir and returns
// the result. A scenario that runs but whose expectations fail returns a
// result with Pass false; an error means the scenario could not run.
//
// Execution flow:
//  1. Create a factory over dir
//  2. Execute the steps, flushing the loop after each one
//  3. Evaluate the assertions against the connection left open
//  4. Close the connection and the factory
func Run(scenario *Scenario, dir string) (*Result, error) {
	var opts []engine.Option
	if scenario.Legacy {
		opts = append(opts, engine.WithLegacyVersioning())
	}
	h := &Harness{
		f:      engine.NewFactory(dir, opts...),
		result: NewResult(),
	}
	defer func() {
		h.closeConn()
		_ = h.f.Close()
	}()

	for i, step := range scenario.Steps {
		if err := h.execute(i, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, msg := range h.evaluate(scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) execute(i int, step Step) error {
	switch {
	case step.Open != nil:
		ev := h.open(step.Open)
		h.check(i, ev, step.Expect)
		return nil
	case step.Close:
		h.closeConn()
		h.result.AddTrace("close", nil, "")
		return nil
	}

	if h.conn == nil {
		return fmt.Errorf("%s: no open connection", step.Op)
	}
	label, result, err := h.operate(step)
	if err != nil {
		return err
	}
	h.check(i, h.record(label, result), step.Expect)
	return nil
}

func (h *Harness) closeConn() {
	if h.conn == nil {
		return
	}
	h.conn.Close()
	h.f.Flush()
	h.conn = nil
}

// open opens the database and reports its version and collections.
func (h *Harness) open(o *OpenStep) TraceEvent {
	h.closeConn()

	var (
		done    bool
		openErr error
	)
	h.conn = database.Open(h.f, o.Name, o.Version, o.Collections,
		database.WithStrictGate(),
		database.WithOpening(func() { done = true }),
		database.WithUpgrade(func(*engine.VersionChangeEvent) { done = true }),
		database.WithOpenFailed(func(err error) {
			done = true
			openErr = err
		}),
	)
	h.f.Flush()

	label := fmt.Sprintf("open %s v%d", orDefault(o.Name, schema.DefaultName), orInitial(o.Version))
	switch {
	case openErr != nil:
		return h.result.AddTrace(label, nil, errorCode(openErr))
	case !done:
		return h.result.AddTrace(label, nil, "Pending")
	}

	names := make(value.Array, 0)
	for _, name := range h.conn.Collections() {
		names = append(names, value.String(name))
	}
	return h.result.AddTrace(label, value.NewObject(
		value.O("collections", names),
		value.O("version", value.Int(h.conn.Version())),
	), "")
}

// outcome is what one operation delivered through its callbacks.
type outcome struct {
	done   bool
	result value.Value
	err    error
}

func (o *outcome) fail(err error) {
	o.done = true
	o.err = err
}

// operate runs one operation to completion.
func (h *Harness) operate(step Step) (string, *outcome, error) {
	c := h.conn
	out := &outcome{}
	single := func(get func(*engine.Request) value.Value) database.Callbacks {
		return database.Callbacks{
			OnSuccess: func(r *engine.Request) {
				out.done = true
				out.result = get(r)
			},
			OnError: out.fail,
		}
	}
	none := func(*engine.Request) value.Value { return nil }
	key := func(r *engine.Request) value.Value { return r.Key() }

	label := step.Op + " " + step.Collection
	switch step.Op {
	case "create", "update":
		rec, err := decode(&step.Record)
		if err != nil {
			return "", nil, fmt.Errorf("%s record: %w", step.Op, err)
		}
		if step.Op == "create" {
			c.Create(step.Collection, rec, single(key))
		} else {
			c.Update(step.Collection, rec, single(key))
		}
	case "read":
		k, err := decode(&step.Key)
		if err != nil {
			return "", nil, fmt.Errorf("read key: %w", err)
		}
		label += " " + value.Format(k)
		c.Read(step.Collection, k, single(func(r *engine.Request) value.Value { return r.Value() }))
	case "remove":
		k, err := decode(&step.Key)
		if err != nil {
			return "", nil, fmt.Errorf("remove key: %w", err)
		}
		label += " " + value.Format(k)
		c.Remove(step.Collection, k, single(none))
	case "empty":
		c.Empty(step.Collection, single(none))
	case "readAll":
		c.ReadAll(step.Collection, walk(out))
	case "find":
		term, err := decode(&step.Term)
		if err != nil {
			return "", nil, fmt.Errorf("find term: %w", err)
		}
		label += " " + step.Index + " " + value.Format(term)
		c.Find(step.Collection, step.Index, term, walk(out))
	}
	h.f.Flush()

	if !out.done {
		return "", nil, fmt.Errorf("%s did not complete", label)
	}
	return label, out, nil
}

// walk collects the records a cursor visits.
func walk(out *outcome) database.Callbacks {
	records := make(value.Array, 0)
	return database.Callbacks{
		OnSuccess: func(r *engine.Request) {
			cur := r.Cursor()
			if cur == nil {
				out.done = true
				out.result = records
				return
			}
			records = append(records, cur.Value())
			if err := cur.Continue(); err != nil {
				out.fail(err)
			}
		},
		OnError: out.fail,
	}
}

func (h *Harness) record(label string, out *outcome) TraceEvent {
	if out.err != nil {
		return h.result.AddTrace(label, nil, errorCode(out.err))
	}
	return h.result.AddTrace(label, out.result, "")
}

// check compares a step's event with its expectation.
func (h *Harness) check(i int, ev TraceEvent, want *Expect) {
	if want == nil {
		if ev.Error != "" {
			h.result.AddError(fmt.Sprintf("step %d (%s): unexpected error %s", i, ev.Step, ev.Error))
		}
		return
	}

	if ev.Error != want.Error {
		switch {
		case want.Error == "":
			h.result.AddError(fmt.Sprintf("step %d (%s): unexpected error %s", i, ev.Step, ev.Error))
		case ev.Error == "":
			h.result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got success", i, ev.Step, want.Error))
		default:
			h.result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %s", i, ev.Step, want.Error, ev.Error))
		}
		return
	}

	if want.Result.Kind == 0 || ev.Error != "" {
		return
	}
	expected, err := decode(&want.Result)
	if err != nil {
		h.result.AddError(fmt.Sprintf("step %d (%s): bad expected result: %v", i, ev.Step, err))
		return
	}
	if msg := diff(expected, ev.Result); msg != "" {
		h.result.AddError(fmt.Sprintf("step %d (%s): %s", i, ev.Step, msg))
	}
}

// decode converts a YAML node into a value.
func decode(node *yaml.Node) (value.Value, error) {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	return value.FromGo(raw)
}

// diff compares values by their canonical encoding.
func diff(expected, actual value.Value) string {
	want := value.Format(orNull(expected))
	got := value.Format(orNull(actual))
	if want == got {
		return ""
	}
	return fmt.Sprintf("expected %s, got %s", want, got)
}

// errorCode names err for traces and expectations.
func errorCode(err error) string {
	switch {
	case errors.Is(err, database.ErrNotReady):
		return "NotReady"
	case errors.Is(err, database.ErrUnknownCollection):
		return "UnknownCollection"
	}
	if code := engine.CauseOf(err); code != "" {
		return string(code)
	}
	return err.Error()
}

func orDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}

func orInitial(version int64) int64 {
	if version == 0 {
		return schema.InitialVersion
	}
	return version
}
