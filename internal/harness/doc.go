// Package harness runs conformance scenarios against real connections.
//
// A scenario is a YAML file listing steps: opening the database at a
// version with a set of declared collections, closing it, and operations
// on the open connection. Each step may carry an expectation, and the
// scenario may end with assertions on the final state.
//
// # Scenario Format
//
//	name: seed_on_first_open
//	description: "Seed records are inserted at version 1 only"
//	steps:
//	  - open:
//	      name: app
//	      version: 1
//	      collections:
//	        notes:
//	          primaryKeyPath: id
//	          autoGenerateKey: true
//	          seed: [{text: welcome}]
//	  - op: readAll
//	    collection: notes
//	    expect:
//	      result: [{id: 1, text: welcome}]
//	  - op: read
//	    collection: tasks
//	    key: 1
//	    expect:
//	      error: UnknownCollection
//	assertions:
//	  - type: version
//	    version: 1
//
// # Operations
//
// create, update, read, readAll, remove, empty and find map to the
// connection methods of the same name. The result of a step is the stored
// key (create, update), the record or null (read), the visited records
// (readAll, find) or null (remove, empty). Failures are reported by their
// engine error code, or NotReady and UnknownCollection for operations the
// connection refuses.
//
// # Assertion Types
//
//   - version: the open connection's version
//   - collections: the collections present, in name order
//   - records: every record of a collection, as readAll returns them
//   - state: the connection's migration state (ready, failed, ...)
//
// # Deterministic Testing
//
// Every step is driven to completion by flushing the engine loop on the
// calling goroutine, so a scenario's trace is identical across runs and
// can be compared with a golden file.
package harness
