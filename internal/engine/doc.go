// Package engine implements the asynchronous, transactional object store
// that storekeeper databases run on.
//
// The API follows the browser object-store model: a Factory opens named
// databases at a version, an upgrade-needed callback changes the schema
// inside a version-change transaction, and reads and writes are requests
// inside transactions whose results arrive through callbacks.
//
// ARCHITECTURE:
//
// Single Task Loop:
// Every callback runs on one loop goroutine, driven by Factory.Run (or
// Factory.Flush in tests and tools). Nothing in a callback needs a lock.
//
// Request Processing Flow:
//  1. A caller creates a transaction and issues requests while it is active
//  2. The transaction waits its turn; one transaction per database runs at a time
//  3. Each loop task runs one request against SQLite and fires its callback
//  4. Callbacks may issue more requests; cursors re-queue their request
//  5. A step that finds no pending request commits; a failed request aborts
//
// Open, delete and legacy set-version requests for one database are queued
// and handled in order. Requests that need exclusive access wait for other
// connections to close and report OnBlocked while they wait.
//
// Storage lives in package store; the engine keeps a per-connection cache of
// the catalog that only the connection's own version change can modify.
package engine
