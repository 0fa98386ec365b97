// Package store provides SQLite-backed durable storage for one storekeeper database.
//
// Each database lives in its own SQLite file with four tables:
//   - object_stores: the collections, their key path and key generator
//   - indexes: secondary indexes per collection
//   - records: the stored values keyed by their encoded primary key
//   - index_entries: one row per (index key, primary key) pair
//
// Keys are stored as order-preserving BLOBs (see value.EncodeKey), so every
// range scan is a plain BLOB comparison and every cursor step is a
// "next key after X" query with ORDER BY ... LIMIT 1.
//
// The caller-visible schema version is PRAGMA user_version. It is written
// inside the version-change transaction, so an aborted upgrade leaves both
// the catalog and the version untouched.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Cascading deletes from stores to records to index entries
//
// The package is synchronous and not safe for concurrent transactions on the
// same Store; the engine serializes transactions above it.
package store
