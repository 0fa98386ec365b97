package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storekeeper/internal/schema"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Legacy runs the scenario on an engine with legacy versioning.
	Legacy bool `yaml:"legacy,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one open, close or operation. Exactly one of Open, Close and Op
// is set.
type Step struct {
	Open  *OpenStep `yaml:"open,omitempty"`
	Close bool      `yaml:"close,omitempty"`

	// Op is create, update, read, readAll, remove, empty or find.
	Op         string    `yaml:"op,omitempty"`
	Collection string    `yaml:"collection,omitempty"`
	Index      string    `yaml:"index,omitempty"`
	Record     yaml.Node `yaml:"record,omitempty"`
	Key        yaml.Node `yaml:"key,omitempty"`
	Term       yaml.Node `yaml:"term,omitempty"`

	// Expect is checked against the step's outcome when set.
	Expect *Expect `yaml:"expect,omitempty"`
}

// OpenStep opens the database, closing any connection the scenario holds.
// Zero values take the connection defaults.
type OpenStep struct {
	Name        string            `yaml:"name,omitempty"`
	Version     int64             `yaml:"version,omitempty"`
	Collections schema.Descriptor `yaml:"collections,omitempty"`
}

// Expect specifies a step's expected outcome.
type Expect struct {
	// Error is the expected error code. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is compared with the step's result when present; an explicit
	// null expects a null result.
	Result yaml.Node `yaml:"result,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is version, collections, records or state.
	Type string `yaml:"type"`

	Version     int64     `yaml:"version,omitempty"`
	Collections []string  `yaml:"collections,omitempty"`
	Collection  string    `yaml:"collection,omitempty"`
	Records     yaml.Node `yaml:"records,omitempty"`
	State       string    `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertVersion     = "version"
	AssertCollections = "collections"
	AssertRecords     = "records"
	AssertState       = "state"
)

var validOps = map[string]bool{
	"create": true, "update": true, "read": true, "readAll": true,
	"remove": true, "empty": true, "find": true,
}

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

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Steps[0].Open == nil {
		return fmt.Errorf("step 0: the first step must open the database")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	kinds := 0
	if step.Open != nil {
		kinds++
		if err := step.Open.Collections.Validate(); err != nil {
			return fmt.Errorf("open: %w", err)
		}
	}
	if step.Close {
		kinds++
	}
	if step.Op != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of open, close and op must be set")
	}
	if step.Op == "" {
		return nil
	}

	if !validOps[step.Op] {
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Collection == "" {
		return fmt.Errorf("%s: collection is required", step.Op)
	}
	switch step.Op {
	case "create", "update":
		if step.Record.Kind == 0 {
			return fmt.Errorf("%s: record is required", step.Op)
		}
	case "read", "remove":
		if step.Key.Kind == 0 {
			return fmt.Errorf("%s: key is required", step.Op)
		}
	case "find":
		if step.Index == "" || step.Term.Kind == 0 {
			return fmt.Errorf("find: index and term are required")
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertVersion:
		if a.Version < 1 {
			return fmt.Errorf("version: version must be at least 1")
		}
	case AssertCollections:
	case AssertRecords:
		if a.Collection == "" || a.Records.Kind == 0 {
			return fmt.Errorf("records: collection and records are required")
		}
	case AssertState:
		if a.State == "" {
			return fmt.Errorf("state: state is required")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
