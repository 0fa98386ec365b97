package store

import (
	"fmt"

	"github.com/roach88/storekeeper/internal/value"
)

// marshalRecord converts a value to JSON TEXT for storage.
// Object keys are sorted so identical records store identical text.
func marshalRecord(v value.Value) (string, error) {
	data, err := value.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses JSON TEXT back into a value.
// Integral numbers come back as value.Int.
func unmarshalRecord(data string) (value.Value, error) {
	v, err := value.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return v, nil
}
