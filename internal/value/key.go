package value

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Key type tags. The tag order defines the cross-type key order:
// numbers sort before strings, strings before arrays.
const (
	tagArrayEnd byte = 0x00
	tagNumber   byte = 0x10
	tagString   byte = 0x30
	tagArray    byte = 0x50
)

// IsKey reports whether v can be used as a primary or index key.
func IsKey(v Value) bool {
	switch val := v.(type) {
	case Int:
		return true
	case Float:
		f := float64(val)
		return !math.IsNaN(f)
	case String:
		return true
	case Array:
		for _, elem := range val {
			if !IsKey(elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EncodeKey returns the order-preserving byte encoding of a key.
// For any two keys a and b, CompareKeys(a, b) equals
// bytes.Compare(EncodeKey(a), EncodeKey(b)).
//
// Numbers share one encoding regardless of Int or Float, so Int(3) and
// Float(3) are the same key. Strings are compared by UTF-8 bytes.
func EncodeKey(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeKey(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeKey(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Int:
		writeNumber(buf, float64(val))
	case Float:
		f := float64(val)
		if math.IsNaN(f) {
			return fmt.Errorf("NaN is not a valid key")
		}
		writeNumber(buf, f)
	case String:
		buf.WriteByte(tagString)
		// 0x00 is escaped as 0x00 0xFF; the terminator 0x00 0x01 sorts
		// below any escaped or literal byte so prefixes come first.
		for i := 0; i < len(val); i++ {
			b := val[i]
			buf.WriteByte(b)
			if b == 0x00 {
				buf.WriteByte(0xFF)
			}
		}
		buf.WriteByte(0x00)
		buf.WriteByte(0x01)
	case Array:
		buf.WriteByte(tagArray)
		for i, elem := range val {
			if err := encodeKey(buf, elem); err != nil {
				return fmt.Errorf("key[%d]: %w", i, err)
			}
		}
		buf.WriteByte(tagArrayEnd)
	default:
		return fmt.Errorf("%s is not a valid key", describe(v))
	}
	return nil
}

// writeNumber writes a float64 so that byte order matches numeric order.
func writeNumber(buf *bytes.Buffer, f float64) {
	if f == 0 {
		f = 0 // folds -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	buf.WriteByte(tagNumber)
	buf.Write(tmp[:])
}

// CompareKeys orders two keys. Invalid keys sort as errors.
func CompareKeys(a, b Value) (int, error) {
	ea, err := EncodeKey(a)
	if err != nil {
		return 0, err
	}
	eb, err := EncodeKey(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}

func describe(v Value) string {
	switch v.(type) {
	case nil:
		return "missing value"
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
