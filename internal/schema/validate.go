package schema

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/storekeeper/internal/value"
)

// Validate checks the file's version and collections.
func (f *File) Validate() error {
	var result *multierror.Error
	if f.Version < 0 {
		result = multierror.Append(result, fmt.Errorf("version must not be negative, got %d", f.Version))
	}
	if err := f.Collections.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Validate reports every problem in d at once. Names must be non-empty
// and in Unicode normalization form C, index names unique per collection,
// and key paths dot-separated identifiers. Seed records must carry a
// valid key unless the collection generates one.
func (d Descriptor) Validate() error {
	var result *multierror.Error
	for _, name := range d.Names() {
		if err := checkName(name); err != nil {
			result = multierror.Append(result, fmt.Errorf("collection %q: %w", name, err))
		}
		for _, err := range d[name].problems() {
			result = multierror.Append(result, fmt.Errorf("collection %q: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

func (c Collection) problems() []error {
	var errs []error
	if !value.ValidKeyPath(c.PrimaryKeyPath) {
		errs = append(errs, fmt.Errorf("invalid primaryKeyPath %q", c.PrimaryKeyPath))
	}

	seen := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		if err := checkName(idx.Name); err != nil {
			errs = append(errs, fmt.Errorf("indexes[%d]: %w", i, err))
		} else if seen[idx.Name] {
			errs = append(errs, fmt.Errorf("indexes[%d]: duplicate index name %q", i, idx.Name))
		}
		seen[idx.Name] = true

		if idx.KeyPath == "" || !value.ValidKeyPath(idx.KeyPath) {
			errs = append(errs, fmt.Errorf("indexes[%d]: invalid keyPath %q", i, idx.KeyPath))
		}
	}

	for i, rec := range c.Seed {
		if err := c.checkSeed(rec); err != nil {
			errs = append(errs, fmt.Errorf("seed[%d]: %w", i, err))
		}
	}
	return errs
}

func (c Collection) checkSeed(rec value.Value) error {
	if c.PrimaryKeyPath == "" {
		if !c.AutoGenerateKey {
			return fmt.Errorf("collection has no primaryKeyPath or autoGenerateKey, so seed records cannot be keyed")
		}
		return nil
	}

	key, ok := value.Lookup(rec, c.PrimaryKeyPath)
	switch {
	case ok && !value.IsKey(key):
		return fmt.Errorf("%s at %q is not a valid key", value.Format(key), c.PrimaryKeyPath)
	case ok:
		return nil
	case !c.AutoGenerateKey:
		return fmt.Errorf("record has no value at %q", c.PrimaryKeyPath)
	}
	if _, isObj := rec.(value.Object); !isObj {
		return fmt.Errorf("generated key cannot be stored in %s", value.Format(rec))
	}
	return nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !norm.NFC.IsNormalString(name) {
		return fmt.Errorf("name %q is not NFC-normalized", name)
	}
	return nil
}
