// Package keyrange provides the range predicate understood by the storage
// engine: a contiguous interval of keys with optional, optionally open,
// lower and upper bounds.
package keyrange

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/roach88/storekeeper/internal/value"
)

// ErrInvalidBound is returned when a bound is not a valid key or the
// bounds describe an empty interval.
var ErrInvalidBound = errors.New("invalid key range bound")

// Range is an interval over encoded keys. A nil *Range matches every key.
// Lower and Upper are nil when the side is unbounded.
type Range struct {
	Lower     value.Value
	Upper     value.Value
	LowerOpen bool
	UpperOpen bool

	lower []byte
	upper []byte
}

// Only matches exactly one key.
func Only(key value.Value) (*Range, error) {
	enc, err := encodeBound(key)
	if err != nil {
		return nil, err
	}
	return &Range{Lower: key, Upper: key, lower: enc, upper: enc}, nil
}

// LowerBound matches keys >= key, or > key when open.
func LowerBound(key value.Value, open bool) (*Range, error) {
	enc, err := encodeBound(key)
	if err != nil {
		return nil, err
	}
	return &Range{Lower: key, LowerOpen: open, lower: enc}, nil
}

// UpperBound matches keys <= key, or < key when open.
func UpperBound(key value.Value, open bool) (*Range, error) {
	enc, err := encodeBound(key)
	if err != nil {
		return nil, err
	}
	return &Range{Upper: key, UpperOpen: open, upper: enc}, nil
}

// Bound matches keys between lower and upper.
// Fails if lower > upper, or lower == upper with either side open.
func Bound(lower, upper value.Value, lowerOpen, upperOpen bool) (*Range, error) {
	lo, err := encodeBound(lower)
	if err != nil {
		return nil, err
	}
	hi, err := encodeBound(upper)
	if err != nil {
		return nil, err
	}
	switch cmp := bytes.Compare(lo, hi); {
	case cmp > 0:
		return nil, fmt.Errorf("%w: lower %s is greater than upper %s", ErrInvalidBound, value.Format(lower), value.Format(upper))
	case cmp == 0 && (lowerOpen || upperOpen):
		return nil, fmt.Errorf("%w: equal bounds with an open side", ErrInvalidBound)
	}
	return &Range{
		Lower:     lower,
		Upper:     upper,
		LowerOpen: lowerOpen,
		UpperOpen: upperOpen,
		lower:     lo,
		upper:     hi,
	}, nil
}

func encodeBound(key value.Value) ([]byte, error) {
	enc, err := value.EncodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBound, err)
	}
	return enc, nil
}

// Includes reports whether key lies within r.
// Invalid keys are never included.
func (r *Range) Includes(key value.Value) bool {
	enc, err := value.EncodeKey(key)
	if err != nil {
		return false
	}
	return r.IncludesEncoded(enc)
}

// IncludesEncoded is Includes for an already-encoded key.
func (r *Range) IncludesEncoded(enc []byte) bool {
	if r == nil {
		return true
	}
	if r.lower != nil {
		cmp := bytes.Compare(enc, r.lower)
		if cmp < 0 || (cmp == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.upper != nil {
		cmp := bytes.Compare(enc, r.upper)
		if cmp > 0 || (cmp == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// EncodedLower returns the encoded lower bound, or nil when unbounded.
func (r *Range) EncodedLower() []byte {
	if r == nil {
		return nil
	}
	return r.lower
}

// EncodedUpper returns the encoded upper bound, or nil when unbounded.
func (r *Range) EncodedUpper() []byte {
	if r == nil {
		return nil
	}
	return r.upper
}

// IsOpenLower reports whether the lower bound excludes its key.
func (r *Range) IsOpenLower() bool {
	return r != nil && r.LowerOpen
}

// IsOpenUpper reports whether the upper bound excludes its key.
func (r *Range) IsOpenUpper() bool {
	return r != nil && r.UpperOpen
}

// String renders the range in interval notation.
func (r *Range) String() string {
	if r == nil {
		return "(-inf, +inf)"
	}
	lo, hi := "(-inf", "+inf)"
	if r.lower != nil {
		br := "["
		if r.LowerOpen {
			br = "("
		}
		lo = br + value.Format(r.Lower)
	}
	if r.upper != nil {
		br := "]"
		if r.UpperOpen {
			br = ")"
		}
		hi = value.Format(r.Upper) + br
	}
	return lo + ", " + hi
}
