package schema

import (
	"sort"

	"github.com/roach88/storekeeper/internal/value"
)

const (
	// DefaultName is the database name used when none is given.
	DefaultName = "default"

	// InitialVersion is the only version at which seed records are inserted.
	InitialVersion int64 = 1
)

// IndexSpec declares a secondary index on a collection.
type IndexSpec struct {
	Name    string `yaml:"name" json:"name"`
	KeyPath string `yaml:"keyPath" json:"keyPath"`
	Unique  bool   `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// Collection declares one collection: how its primary key is produced,
// which indexes it carries, and which records seed it on first creation.
type Collection struct {
	PrimaryKeyPath  string     `yaml:"primaryKeyPath,omitempty" json:"primaryKeyPath,omitempty"`
	AutoGenerateKey bool       `yaml:"autoGenerateKey,omitempty" json:"autoGenerateKey,omitempty"`
	Indexes         IndexList  `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	Seed            RecordList `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Descriptor maps collection names to their declarations.
// Treat it as immutable once handed to a connection.
type Descriptor map[string]Collection

// Names returns the declared collection names in sorted order.
func (d Descriptor) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is declared.
func (d Descriptor) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// File is a schema document: an optional database name and version plus
// the collection declarations.
type File struct {
	Name        string     `yaml:"name,omitempty" json:"name,omitempty"`
	Version     int64      `yaml:"version,omitempty" json:"version,omitempty"`
	Collections Descriptor `yaml:"collections" json:"collections"`
}

// Default returns the descriptor used when the caller declares nothing:
// one auto-keyed "defaultStore" with an "id" index, seeded with an empty
// record.
func Default() Descriptor {
	return Descriptor{
		"defaultStore": {
			PrimaryKeyPath:  "id",
			AutoGenerateKey: true,
			Indexes:         IndexList{{Name: "id", KeyPath: "id"}},
			Seed:            RecordList{value.Object{}},
		},
	}
}
