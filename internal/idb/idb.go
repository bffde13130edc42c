// Package idb provides read-only access to the Chromium IndexedDB snapshot
// that the Linear desktop app keeps on disk. The rest of the codebase only
// depends on the Index/Database/ObjectStore interfaces; the LevelDB-backed
// implementation lives in leveldb.go and tests substitute in-memory fakes.
package idb

import "errors"

// ErrStoreNotFound is returned when a named object store does not exist in
// the database being read.
var ErrStoreNotFound = errors.New("object store not found")

// Record is one decoded entry from an object store. Value is nil when the
// stored payload is not an object (the loaders skip those).
type Record struct {
	Key   []byte
	Value map[string]any
}

// ObjectStore iterates the records of a single IndexedDB object store.
type ObjectStore interface {
	Name() string

	// Records calls fn for each record in store order until fn returns
	// false or the store is exhausted. Decoding failures of individual
	// records are skipped, not surfaced; a non-nil error means the store
	// itself could not be read.
	Records(fn func(Record) bool) error
}

// Database is one logical IndexedDB database inside the snapshot.
type Database interface {
	Name() string
	Origin() string
	ObjectStoreNames() []string
	Store(name string) (ObjectStore, error)
}

// Index is an opened IndexedDB snapshot holding one or more databases.
type Index interface {
	Databases() ([]Database, error)
	Close() error
}
