package harness

import (
	"fmt"
	"slices"
)

// evaluate checks the assertions against the open connection and returns
// one message per failed assertion.
func (h *Harness) evaluate(assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if msg := h.assert(a); msg != "" {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %s", i, a.Type, msg))
		}
	}
	return errs
}

func (h *Harness) assert(a Assertion) string {
	if h.conn == nil {
		return "no open connection"
	}

	switch a.Type {
	case AssertVersion:
		if got := h.conn.Version(); got != a.Version {
			return fmt.Sprintf("expected version %d, got %d", a.Version, got)
		}

	case AssertCollections:
		got := h.conn.Collections()
		want := a.Collections
		if want == nil {
			want = []string{}
		}
		if got == nil {
			got = []string{}
		}
		if !slices.Equal(want, got) {
			return fmt.Sprintf("expected collections %v, got %v", want, got)
		}

	case AssertState:
		if got := h.conn.State().String(); got != a.State {
			return fmt.Sprintf("expected state %s, got %s", a.State, got)
		}

	case AssertRecords:
		want, err := decode(&a.Records)
		if err != nil {
			return fmt.Sprintf("bad expected records: %v", err)
		}
		_, out, err := h.operate(Step{Op: "readAll", Collection: a.Collection})
		if err != nil {
			return err.Error()
		}
		if out.err != nil {
			return fmt.Sprintf("readAll %s failed: %s", a.Collection, errorCode(out.err))
		}
		return diff(want, out.result)
	}
	return ""
}
