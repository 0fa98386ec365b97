package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storekeeper/internal/value"
)

// IndexList is an ordered list of index declarations. Documents may give a
// single index object in place of a list.
type IndexList []IndexSpec

// UnmarshalYAML accepts a mapping or a sequence of mappings.
func (l *IndexList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var one IndexSpec
		if err := node.Decode(&one); err != nil {
			return err
		}
		*l = IndexList{one}
		return nil
	case yaml.SequenceNode:
		var many []IndexSpec
		if err := node.Decode(&many); err != nil {
			return err
		}
		*l = many
		return nil
	default:
		return fmt.Errorf("line %d: indexes must be an object or a list", node.Line)
	}
}

// UnmarshalJSON accepts an object or an array of objects.
func (l *IndexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("{")) {
		var one IndexSpec
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*l = IndexList{one}
		return nil
	}
	var many []IndexSpec
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("indexes must be an object or a list: %w", err)
	}
	*l = many
	return nil
}

// RecordList holds seed records. Documents may give a single record in
// place of a list.
type RecordList []value.Value

// UnmarshalYAML accepts one record or a sequence of records.
func (l *RecordList) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := value.FromGo(raw)
	if err != nil {
		return fmt.Errorf("line %d: seed: %w", node.Line, err)
	}
	*l = toRecords(v)
	return nil
}

// UnmarshalJSON accepts one record or an array of records.
func (l *RecordList) UnmarshalJSON(data []byte) error {
	v, err := value.Parse(data)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	*l = toRecords(v)
	return nil
}

// MarshalJSON writes the records as a JSON array.
func (l RecordList) MarshalJSON() ([]byte, error) {
	return value.Marshal(value.Array(l))
}

func toRecords(v value.Value) RecordList {
	switch val := v.(type) {
	case value.Null:
		return nil
	case value.Array:
		return RecordList(val)
	default:
		return RecordList{val}
	}
}
