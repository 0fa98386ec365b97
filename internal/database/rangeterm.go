package database

import (
	"github.com/roach88/storekeeper/internal/keyrange"
	"github.com/roach88/storekeeper/internal/value"
)

// BuildRange turns a find term into a key range.
//
// A two-element array [low, high] selects low..high inclusive, where a
// numeric 0 stands for "no bound": [0, high] selects keys up to high and
// [low, 0] selects keys from low. Any other term selects exactly that key.
//
// Because 0 is the sentinel, a pair cannot express a range that starts or
// ends at 0 itself; [0, 0] selects keys up to 0.
func BuildRange(term value.Value) (*keyrange.Range, error) {
	if pair, ok := term.(value.Array); ok && len(pair) == 2 {
		low, high := pair[0], pair[1]
		switch {
		case isZero(low):
			return keyrange.UpperBound(high, false)
		case isZero(high):
			return keyrange.LowerBound(low, false)
		default:
			return keyrange.Bound(low, high, false, false)
		}
	}
	return keyrange.Only(term)
}

func isZero(v value.Value) bool {
	n, ok := value.AsNumber(v)
	return ok && n == 0
}
