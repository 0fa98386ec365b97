package value

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidKeyPath reports whether path is a dot-separated list of identifiers.
// The empty path is valid and refers to the value itself.
func ValidKeyPath(path string) bool {
	if path == "" {
		return true
	}
	for _, part := range strings.Split(path, ".") {
		if !validIdentifier(part) {
			return false
		}
	}
	return true
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)):
		default:
			return false
		}
	}
	return true
}

// Lookup evaluates a key path against v.
// Returns false if any segment is missing or a non-object is traversed.
func Lookup(v Value, path string) (Value, bool) {
	if path == "" {
		return v, v != nil
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		next, ok := obj[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Inject stores key at path inside obj, creating intermediate objects.
// Fails if a non-object is found on the way.
func Inject(obj Object, path string, key Value) error {
	if path == "" {
		return fmt.Errorf("cannot inject into empty key path")
	}
	parts := strings.Split(path, ".")
	cur := obj
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			child := Object{}
			cur[part] = child
			cur = child
			continue
		}
		child, ok := next.(Object)
		if !ok {
			return fmt.Errorf("key path %q: %q is not an object", path, part)
		}
		cur = child
	}
	cur[parts[len(parts)-1]] = key
	return nil
}
