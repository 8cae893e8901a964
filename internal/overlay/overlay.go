// Package overlay implements the access-control overlays named in spec.md
// §4.3: whitelist, blacklist, keys (with expiry), and users (with upload/
// download accumulation). Each is a sharded set/map reusing the same
// 256-way partition as internal/store, generalizing the teacher's
// IPRules (iprules.go) from a pair of plain maps behind one mutex to a
// sharded structure that scales the same way the torrent store does.
package overlay

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 256

// Hash256 is a 20-byte key (an infohash or a hashed access key).
type Hash256 [20]byte

type setShard struct {
	mu   sync.RWMutex
	data map[Hash256]struct{}
}

// Set is a sharded membership set, used for the whitelist and blacklist.
type Set struct {
	enabled bool
	shards  [shardCount]*setShard
}

// NewSet creates a sharded set. enabled mirrors the config feature flag:
// when false, Contains always reports "not enforced" via the Enabled method
// rather than silently behaving as an empty allow-list.
func NewSet(enabled bool) *Set {
	s := &Set{enabled: enabled}
	for i := range s.shards {
		s.shards[i] = &setShard{data: make(map[Hash256]struct{})}
	}
	return s
}

func (s *Set) Enabled() bool { return s.enabled }

func (s *Set) shardFor(k Hash256) *setShard { return s.shards[k[0]] }

func (s *Set) Contains(k Hash256) bool {
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.data[k]
	return ok
}

func (s *Set) Insert(k Hash256) {
	sh := s.shardFor(k)
	sh.mu.Lock()
	sh.data[k] = struct{}{}
	sh.mu.Unlock()
}

func (s *Set) Remove(k Hash256) {
	sh := s.shardFor(k)
	sh.mu.Lock()
	delete(sh.data, k)
	sh.mu.Unlock()
}

// Len reports the total number of entries across all shards, for the
// admin /stats gauges.
func (s *Set) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns every key currently in the set.
func (s *Set) Snapshot() []Hash256 {
	out := make([]Hash256, 0, 1024)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.data {
			out = append(out, k)
		}
		sh.mu.RUnlock()
	}
	return out
}

// IsNonEmptyEnforced reports whether the whitelist is active and should be
// enforced: enabled AND non-empty, per spec.md §4.3 ("if enabled and
// non-empty").
func (s *Set) IsNonEmptyEnforced() bool {
	return s.enabled && s.Len() > 0
}

// KeyEntry is a 40-hex-character access key's expiry, 0 meaning permanent.
type KeyEntry struct {
	Expiry int64 // unix seconds, 0 = permanent
}

type keyShard struct {
	mu   sync.RWMutex
	data map[Hash256]KeyEntry
}

// Keys is the sharded private-key overlay.
type Keys struct {
	enabled bool
	shards  [shardCount]*keyShard
}

func NewKeys(enabled bool) *Keys {
	k := &Keys{enabled: enabled}
	for i := range k.shards {
		k.shards[i] = &keyShard{data: make(map[Hash256]KeyEntry)}
	}
	return k
}

func (k *Keys) Enabled() bool { return k.enabled }

func (k *Keys) shardFor(h Hash256) *keyShard { return k.shards[h[0]] }

// Valid reports whether h is present and unexpired at instant now.
func (k *Keys) Valid(h Hash256, now time.Time) bool {
	sh := k.shardFor(h)
	sh.mu.RLock()
	e, ok := sh.data[h]
	sh.mu.RUnlock()
	if !ok {
		return false
	}
	return e.Expiry == 0 || now.Unix() < e.Expiry
}

// Get returns the raw key entry, for persistence flush batching.
func (k *Keys) Get(h Hash256) (KeyEntry, bool) {
	sh := k.shardFor(h)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.data[h]
	return e, ok
}

func (k *Keys) Insert(h Hash256, expiry int64) {
	sh := k.shardFor(h)
	sh.mu.Lock()
	sh.data[h] = KeyEntry{Expiry: expiry}
	sh.mu.Unlock()
}

func (k *Keys) Remove(h Hash256) {
	sh := k.shardFor(h)
	sh.mu.Lock()
	delete(sh.data, h)
	sh.mu.Unlock()
}

func (k *Keys) Len() int {
	n := 0
	for _, sh := range k.shards {
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

// SweepExpired removes every key whose expiry is non-zero and in the past,
// returning the count removed. Run periodically by the key-expiry sweeper
// (spec.md §4.9).
func (k *Keys) SweepExpired(now time.Time) int {
	removed := 0
	for _, sh := range k.shards {
		sh.mu.Lock()
		for h, e := range sh.data {
			if e.Expiry != 0 && now.Unix() >= e.Expiry {
				delete(sh.data, h)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// UserEntry is one account's accumulated accounting, keyed by UUID per
// original_source/src/structs.rs (see SPEC_FULL.md §3). Uploaded/Downloaded/
// Completed are lifetime totals; the Pending* fields track the amount
// accumulated since the last persistence flush, so a flush can subtract
// what it saved instead of resending the lifetime total every cycle
// (spec.md §9).
type UserEntry struct {
	ID                uuid.UUID
	Key               Hash256
	Uploaded          uint64
	Downloaded        uint64
	Completed         uint64
	PendingUploaded   uint64
	PendingDownloaded uint64
	PendingCompleted  uint64
	Updated           time.Time
	Active            bool
}

type userShard struct {
	mu      sync.RWMutex
	byKey   map[Hash256]*UserEntry
	byID    map[uuid.UUID]*UserEntry
}

// Users is the sharded user-accounting overlay, sharded by access key so
// announce-time lookups stay on the same partitioning scheme as the rest
// of the tracker.
type Users struct {
	enabled bool
	shards  [shardCount]*userShard
}

func NewUsers(enabled bool) *Users {
	u := &Users{enabled: enabled}
	for i := range u.shards {
		u.shards[i] = &userShard{byKey: make(map[Hash256]*UserEntry), byID: make(map[uuid.UUID]*UserEntry)}
	}
	return u
}

func (u *Users) Enabled() bool { return u.enabled }

func (u *Users) shardFor(k Hash256) *userShard { return u.shards[k[0]] }

func (u *Users) Lookup(key Hash256) (*UserEntry, bool) {
	sh := u.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.byKey[key]
	return e, ok
}

func (u *Users) Insert(e *UserEntry) {
	sh := u.shardFor(e.Key)
	sh.mu.Lock()
	sh.byKey[e.Key] = e
	sh.byID[e.ID] = e
	sh.mu.Unlock()
}

func (u *Users) Remove(key Hash256) {
	sh := u.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.byKey[key]; ok {
		delete(sh.byID, e.ID)
	}
	delete(sh.byKey, key)
	sh.mu.Unlock()
}

// AccumulateDeltas adds uploaded/downloaded deltas (since the user's last
// announce) into the in-memory row, per spec.md §9 "User deltas". The
// caller computes the delta; this call is the atomic add.
func (u *Users) AccumulateDeltas(key Hash256, uploadedDelta, downloadedDelta uint64, now time.Time) {
	sh := u.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.byKey[key]; ok {
		e.Uploaded += uploadedDelta
		e.Downloaded += downloadedDelta
		e.PendingUploaded += uploadedDelta
		e.PendingDownloaded += downloadedDelta
		e.Updated = now
	}
	sh.mu.Unlock()
}

func (u *Users) IncrementCompleted(key Hash256) {
	sh := u.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.byKey[key]; ok {
		e.Completed++
		e.PendingCompleted++
	}
	sh.mu.Unlock()
}

// DrainPending atomically reads and zeros the since-last-flush deltas for
// key, returning ok=false if the key has no row. The persistence pipeline
// calls this instead of reading Uploaded/Downloaded/Completed directly, so
// a flush never resends an amount it already saved.
func (u *Users) DrainPending(key Hash256) (uploaded, downloaded, completed uint64, ok bool) {
	sh := u.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, exists := sh.byKey[key]
	if !exists {
		return 0, 0, 0, false
	}
	uploaded, downloaded, completed = e.PendingUploaded, e.PendingDownloaded, e.PendingCompleted
	e.PendingUploaded, e.PendingDownloaded, e.PendingCompleted = 0, 0, 0
	return uploaded, downloaded, completed, true
}

// RestorePending re-adds a drained delta after a failed flush, merging it
// with anything accumulated in the meantime so the amount isn't lost.
func (u *Users) RestorePending(key Hash256, uploaded, downloaded, completed uint64) {
	sh := u.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.byKey[key]; ok {
		e.PendingUploaded += uploaded
		e.PendingDownloaded += downloaded
		e.PendingCompleted += completed
	}
	sh.mu.Unlock()
}

func (u *Users) Len() int {
	n := 0
	for _, sh := range u.shards {
		sh.mu.RLock()
		n += len(sh.byKey)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns a shallow copy of every user entry, for persistence
// flush batching.
func (u *Users) Snapshot() []UserEntry {
	out := make([]UserEntry, 0, 1024)
	for _, sh := range u.shards {
		sh.mu.RLock()
		for _, e := range sh.byKey {
			out = append(out, *e)
		}
		sh.mu.RUnlock()
	}
	return out
}
