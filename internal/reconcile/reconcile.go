// Package reconcile brings a database's collections in line with a
// declared schema during a version change.
package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/roach88/storekeeper/internal/schema"
	"github.com/roach88/storekeeper/internal/value"
)

// Target is the structure being reconciled. Implementations apply changes
// inside a single version-change transaction.
type Target interface {
	CollectionNames() []string
	CreateCollection(name string, c schema.Collection) (Collection, error)
	Collection(name string) (Collection, error)
	DeleteCollection(name string) error
}

// Collection is one collection of a Target.
type Collection interface {
	IndexNames() []string
	CreateIndex(spec schema.IndexSpec) error
	Insert(rec value.Value) error
}

// Report lists the changes a reconciliation made.
type Report struct {
	Created []string
	// Seeded counts seed records inserted per created collection.
	Seeded  map[string]int
	Indexes []string // collection.index
	Deleted []string
}

// Changed reports whether anything was created or deleted.
func (r Report) Changed() bool {
	return len(r.Created) > 0 || len(r.Indexes) > 0 || len(r.Deleted) > 0
}

// Reconcile applies declared to t. It creates missing collections (seeding
// them when initial is true), creates indexes missing by name, and finally
// deletes every collection that existed beforehand but is not declared.
// The first failure stops the pass; the caller aborts the transaction.
func Reconcile(t Target, declared schema.Descriptor, initial bool) (Report, error) {
	report := Report{Seeded: map[string]int{}}

	// Captured before any change so created collections are never deleted.
	existing := t.CollectionNames()
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	names := declared.Names()
	for _, name := range names {
		if present[name] {
			continue
		}
		decl := declared[name]
		coll, err := t.CreateCollection(name, decl)
		if err != nil {
			return report, fmt.Errorf("create collection %q: %w", name, err)
		}
		report.Created = append(report.Created, name)
		slog.Debug("collection created", "collection", name)

		if !initial {
			continue
		}
		for i, rec := range decl.Seed {
			if err := coll.Insert(rec); err != nil {
				return report, fmt.Errorf("seed %q record %d: %w", name, i, err)
			}
		}
		if len(decl.Seed) > 0 {
			report.Seeded[name] = len(decl.Seed)
			slog.Debug("collection seeded", "collection", name, "records", len(decl.Seed))
		}
	}

	for _, name := range names {
		decl := declared[name]
		if len(decl.Indexes) == 0 {
			continue
		}
		coll, err := t.Collection(name)
		if err != nil {
			return report, fmt.Errorf("collection %q: %w", name, err)
		}
		have := make(map[string]bool)
		for _, idx := range coll.IndexNames() {
			have[idx] = true
		}
		for _, spec := range decl.Indexes {
			if have[spec.Name] {
				continue
			}
			if err := coll.CreateIndex(spec); err != nil {
				return report, fmt.Errorf("create index %q on %q: %w", spec.Name, name, err)
			}
			have[spec.Name] = true
			report.Indexes = append(report.Indexes, name+"."+spec.Name)
			slog.Debug("index created", "collection", name, "index", spec.Name, "unique", spec.Unique)
		}
	}

	for _, name := range existing {
		if declared.Has(name) {
			continue
		}
		if err := t.DeleteCollection(name); err != nil {
			return report, fmt.Errorf("delete collection %q: %w", name, err)
		}
		report.Deleted = append(report.Deleted, name)
		slog.Debug("collection deleted", "collection", name)
	}

	return report, nil
}
