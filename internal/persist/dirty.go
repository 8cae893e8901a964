// Package persist implements the write-behind persistence pipeline (spec
// component C8): dirty/shadow sets per collection, a periodic flush worker,
// and the abstract repository contract a relational backing store must
// satisfy. The driver registry in repository.go is modeled on the Driver/Conn pattern
// found in the pack's chihaya-chihaya backend package, so alternate SQL
// dialects can register themselves without this package depending on them.
package persist

import "sync"

// Op tags the most recent mutation for a key, used to resolve the
// add/delete ordering guarantee within one flush cycle (spec.md §4.8).
type Op uint8

const (
	OpNone Op = iota
	OpAdd
	OpDelete
)

// DirtySet tracks which keys of one persisted collection have diverged
// from the backing store, plus a last-op tag so a delete that happens
// after an add (or vice versa) wins when both land in the same cycle.
type DirtySet[K comparable] struct {
	mu   sync.Mutex
	ops  map[K]Op
}

// NewDirtySet creates an empty dirty set for key type K.
func NewDirtySet[K comparable]() *DirtySet[K] {
	return &DirtySet[K]{ops: make(map[K]Op)}
}

// MarkAdded records that key has a pending addition/update.
func (d *DirtySet[K]) MarkAdded(key K) {
	d.mu.Lock()
	d.ops[key] = OpAdd
	d.mu.Unlock()
}

// MarkDeleted records that key has a pending deletion (the shadow set in
// spec.md's terms is simply OpDelete entries within the same map).
func (d *DirtySet[K]) MarkDeleted(key K) {
	d.mu.Lock()
	d.ops[key] = OpDelete
	d.mu.Unlock()
}

// Swap atomically takes the current dirty ops and replaces them with an
// empty set, returning the snapshot for the flush worker to drain
// (spec.md §4.8 step 1).
func (d *DirtySet[K]) Swap() map[K]Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.ops
	d.ops = make(map[K]Op)
	return snap
}

// Requeue re-merges keys from a failed flush batch back into the live set
// so the next cycle retries them (spec.md §4.8 step 4). Existing newer
// entries for the same key are not overwritten.
func (d *DirtySet[K]) Requeue(failed map[K]Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, op := range failed {
		if _, already := d.ops[k]; !already {
			d.ops[k] = op
		}
	}
}

// Len reports the number of pending keys, for tests and the empty-after-
// flush invariant.
func (d *DirtySet[K]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ops)
}
