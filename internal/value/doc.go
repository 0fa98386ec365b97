// Package value provides the structured record and key types stored by storekeeper.
//
// Records are trees of Null, String, Int, Float, Bool, Array and Object
// values. A subset of them are valid keys: numbers, strings and arrays of
// keys. Keys have a total order (numbers < strings < arrays) which is
// preserved by their byte encoding, so the storage layer can compare
// encoded keys with memcmp.
//
// This package imports nothing internal. All other internal packages
// import value.
package value
