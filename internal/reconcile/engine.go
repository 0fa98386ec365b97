package reconcile

import (
	"github.com/roach88/storekeeper/internal/engine"
	"github.com/roach88/storekeeper/internal/schema"
	"github.com/roach88/storekeeper/internal/value"
)

// EngineTarget adapts a version-change transaction to Target.
// Seed inserts are queued on the transaction; a failing insert aborts it.
func EngineTarget(tx *engine.Transaction) Target {
	return engineTarget{tx: tx}
}

type engineTarget struct {
	tx *engine.Transaction
}

func (t engineTarget) CollectionNames() []string {
	return t.tx.Database().ObjectStoreNames()
}

func (t engineTarget) CreateCollection(name string, c schema.Collection) (Collection, error) {
	s, err := t.tx.Database().CreateObjectStore(name, engine.ObjectStoreOptions{
		KeyPath:       c.PrimaryKeyPath,
		AutoIncrement: c.AutoGenerateKey,
	})
	if err != nil {
		return nil, err
	}
	return engineCollection{s: s}, nil
}

func (t engineTarget) Collection(name string) (Collection, error) {
	s, err := t.tx.ObjectStore(name)
	if err != nil {
		return nil, err
	}
	return engineCollection{s: s}, nil
}

func (t engineTarget) DeleteCollection(name string) error {
	return t.tx.Database().DeleteObjectStore(name)
}

type engineCollection struct {
	s *engine.ObjectStore
}

func (c engineCollection) IndexNames() []string {
	return c.s.IndexNames()
}

func (c engineCollection) CreateIndex(spec schema.IndexSpec) error {
	_, err := c.s.CreateIndex(spec.Name, spec.KeyPath, engine.IndexOptions{Unique: spec.Unique})
	return err
}

func (c engineCollection) Insert(rec value.Value) error {
	_, err := c.s.Put(rec, nil)
	return err
}
