// Package database is the schema-aware access layer over the engine.
//
// Open declares a database name, version and schema. The connection opens
// the database and, whenever the stored version is lower than the declared
// one, reconciles the stored collections with the declaration inside the
// version-change transaction: missing collections and indexes are created,
// undeclared collections are deleted, and seed records are inserted into
// new collections when the declared version is 1. Engines with legacy
// versioning open first and upgrade afterwards; the connection handles both.
//
// Once ready, Create, Read, ReadAll, Update, Remove, Empty and Find each run
// in their own single-collection transaction and report through Callbacks.
// Operations issued before the connection is ready, or on collections the
// schema does not declare, are dropped unless WithStrictGate is set.
//
//	c := database.Open(f, "notes", 2, declared, database.WithOpening(func() {
//		c.Find("notes", "byDate", value.NewArray(value.Int(20240101), value.Int(0)), database.Callbacks{
//			OnSuccess: func(r *engine.Request) { ... },
//		})
//	}))
package database
