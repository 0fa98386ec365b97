// Package schema declares the collections a database should contain.
//
// A Descriptor maps collection names to their primary key strategy,
// secondary indexes and seed records. Descriptors are written in code or
// loaded from a schema file:
//
//	name: notes
//	version: 2
//	collections:
//	  notes:
//	    primaryKeyPath: id
//	    autoGenerateKey: true
//	    indexes:
//	      - name: byTag
//	        keyPath: tag
//	    seed:
//	      - { id: 1, text: hi, tag: greeting }
//	  tags:
//	    primaryKeyPath: name
//	    indexes: { name: byCount, keyPath: count }
//
// indexes and seed take either a single object or a list. The same
// document may be written as JSON or CUE; CUE documents must evaluate to
// a concrete value.
package schema
