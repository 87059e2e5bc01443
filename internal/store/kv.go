// Package store provides the indexer's key-value storage abstraction and,
// on top of it, the typed relations that hold rune state (RuneEntry,
// RuneTXO, RuneEvent, Transaction and Block rows, and the Cursor).
package store

// DB is the interface for key-value storage. Implementations must support
// a single writer with any number of concurrent readers.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key; the value is valid only
	// until fn returns and must not be modified. Return a non-nil
	// error from fn to stop iteration early; ForEach returns that error.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batcher is implemented by a DB that can produce an atomic multi-key
// write batch. The rune relations (§4.4's "transactional bundles") require
// this: applying a mint, an etching, or an edict touches several rows and
// indexes that must become visible together or not at all.
type Batcher interface {
	NewBatch() Batch
}

// Batch accumulates Put/Delete operations and applies them atomically on
// Commit. A Batch is not safe for concurrent use.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}
