// Package index implements the four secondary-index engines sharing one
// interface: extendible hashing, a disk-resident AVL tree, an in-memory B+
// tree persisted as a blob, and a 2-D R-tree. None of them store the indexed
// column's value directly — every comparison re-reads it from the heap file
// through a ValueFetcher, trading index-op cost for schema independence.
package index

import "errors"

// ErrNotSupported is returned by RangeSearch on indexes that cannot serve
// range queries (hash) and by spatial operations on non-POINT indexes.
// Callers must treat it as a fatal query error, never a silent fallback.
var ErrNotSupported = errors.New("index: operation not supported")

// ErrDuplicateKey is returned by Insert when the index is enforcing
// uniqueness (is_key) and the value already maps to an existing id.
var ErrDuplicateKey = errors.New("index: duplicate key")

// ValueFetcher returns the indexed column's value for a record id, and
// whether the id currently names a live record at all.
type ValueFetcher func(id int32) (value any, live bool, err error)

// Index is the capability set common to HashIdx, AvlIdx, BPlusIdx, and
// RTreeIdx. Every implementation honors IsKey uniqueness on Insert.
type Index interface {
	// Insert adds id under its fetched column value. If the index enforces
	// uniqueness and the value already maps to an id, nothing changes and
	// ErrDuplicateKey is returned.
	Insert(id int32) error

	// Search returns every id whose column value equals value.
	Search(value any) ([]int32, error)

	// RangeSearch returns every id whose column value falls in [lo, hi].
	// Returns ErrNotSupported on indexes that cannot serve range queries.
	RangeSearch(lo, hi any) ([]int32, error)

	// Delete removes id from the index. found is false if id was absent.
	Delete(id int32) (found bool, err error)

	// Rebuild discards all index state and re-inserts exactly the ids in
	// liveIDs (already filtered to live heap records by the caller).
	Rebuild(liveIDs []int32) error
}
