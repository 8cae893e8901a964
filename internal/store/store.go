// Package store implements the sharded concurrent infohash -> torrent map
// at the heart of the tracker (spec component C2). It generalizes the
// teacher's single-mutex PeerStore (peers.go) to a 256-way shard partition
// so the timeout sweeper can walk shards in parallel without contending
// with announce traffic on other shards.
package store

import (
	"net"
	"sort"
	"sync"
	"time"
)

// ShardCount is fixed by the spec: the shard index is the first byte of
// the infohash, so there are exactly 256 shards.
const ShardCount = 256

// InfoHash is a 20-byte SHA-1 content identifier.
type InfoHash [20]byte

// PeerID is a 20-byte opaque client identifier.
type PeerID [20]byte

// Family distinguishes IPv4 from IPv6 peer placement.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// Event mirrors the BEP 3 announce event field.
type Event uint8

const (
	EventNone Event = iota
	EventCompleted
	EventStarted
	EventStopped
)

// TorrentPeer is one peer's state within a swarm.
type TorrentPeer struct {
	IP         net.IP
	Port       uint16
	PeerID     PeerID
	Uploaded   uint64
	Downloaded uint64
	Left       uint64
	Event      Event
	Updated    time.Time
}

// IsSeeder reports whether this peer has finished downloading.
func (p *TorrentPeer) IsSeeder() bool { return p.Left == 0 }

// TorrentEntry holds the four peer maps and completed counter for a single
// infohash, per spec.md §3. A PeerID appears in at most one of the four
// maps at any time; placement is (family, seeder) derived.
type TorrentEntry struct {
	mu        sync.RWMutex
	SeedsV4   map[PeerID]*TorrentPeer
	SeedsV6   map[PeerID]*TorrentPeer
	PeersV4   map[PeerID]*TorrentPeer
	PeersV6   map[PeerID]*TorrentPeer
	Completed uint64
}

func newEntry() *TorrentEntry {
	return &TorrentEntry{
		SeedsV4: make(map[PeerID]*TorrentPeer),
		SeedsV6: make(map[PeerID]*TorrentPeer),
		PeersV4: make(map[PeerID]*TorrentPeer),
		PeersV6: make(map[PeerID]*TorrentPeer),
	}
}

func (e *TorrentEntry) mapFor(family Family, seeder bool) map[PeerID]*TorrentPeer {
	switch {
	case family == FamilyV4 && seeder:
		return e.SeedsV4
	case family == FamilyV4 && !seeder:
		return e.PeersV4
	case family == FamilyV6 && seeder:
		return e.SeedsV6
	default:
		return e.PeersV6
	}
}

// Counts returns (seeders, leechers) across both families.
func (e *TorrentEntry) Counts() (seeders, leechers int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.SeedsV4) + len(e.SeedsV6), len(e.PeersV4) + len(e.PeersV6)
}

// Empty reports whether the entry holds no peers in any of the four maps.
func (e *TorrentEntry) Empty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.SeedsV4) == 0 && len(e.SeedsV6) == 0 && len(e.PeersV4) == 0 && len(e.PeersV6) == 0
}

type shard struct {
	mu       sync.RWMutex
	torrents map[InfoHash]*TorrentEntry
}

// Store is the 256-shard concurrent torrent map.
type Store struct {
	shards      [ShardCount]*shard
	insertVacant bool
}

// New creates an empty store. insertVacant controls whether GetOrCreate
// inserts a fresh empty TorrentEntry for unknown infohashes (policy named
// in spec.md §4.2).
func New(insertVacant bool) *Store {
	s := &Store{insertVacant: insertVacant}
	for i := range s.shards {
		s.shards[i] = &shard{torrents: make(map[InfoHash]*TorrentEntry)}
	}
	return s
}

func (s *Store) shardFor(ih InfoHash) *shard { return s.shards[ih[0]] }

// GetOrCreate returns the existing entry for ih, or inserts and returns a
// new empty one if the store's insert_vacant policy allows it. ok is false
// only when the infohash is unknown and insert_vacant is false.
func (s *Store) GetOrCreate(ih InfoHash) (entry *TorrentEntry, ok bool) {
	sh := s.shardFor(ih)
	sh.mu.RLock()
	e, found := sh.torrents[ih]
	sh.mu.RUnlock()
	if found {
		return e, true
	}
	if !s.insertVacant {
		return nil, false
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, found = sh.torrents[ih]; found {
		return e, true
	}
	e = newEntry()
	sh.torrents[ih] = e
	return e, true
}

// Get returns the entry for ih without creating one.
func (s *Store) Get(ih InfoHash) (*TorrentEntry, bool) {
	sh := s.shardFor(ih)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.torrents[ih]
	return e, ok
}

// DeleteTorrent removes an infohash's entry entirely (used by admin API
// deletion and by the sweeper once an entry has been empty and unwanted).
func (s *Store) DeleteTorrent(ih InfoHash) {
	sh := s.shardFor(ih)
	sh.mu.Lock()
	delete(sh.torrents, ih)
	sh.mu.Unlock()
}

// UpsertResult reports what placement change an UpsertPeer call made.
type UpsertResult struct {
	Created             bool // peer id was not previously present anywhere
	MovedFromPeerToSeed bool // prior placement was a peer map, new is a seed map
	Unchanged           bool // peer already occupied the correct map
}

// UpsertPeer ensures peerID occupies exactly the map selected by
// (family, isSeeder), removing any prior placement in the other three maps.
// The second result is false, and nothing is stored, when ih is unknown and
// the store's insert_vacant policy forbids creating its entry.
func (s *Store) UpsertPeer(ih InfoHash, peerID PeerID, peer TorrentPeer, family Family, isSeeder bool) (UpsertResult, bool) {
	entry, ok := s.GetOrCreate(ih)
	if !ok {
		return UpsertResult{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	target := entry.mapFor(family, isSeeder)
	var res UpsertResult
	if _, already := target[peerID]; already {
		res.Unchanged = true
	} else {
		res.Created = true
		// remove any stale placement in the other three maps
		others := [...]struct {
			m        map[PeerID]*TorrentPeer
			wasPeers bool
		}{
			{entry.SeedsV4, false}, {entry.SeedsV6, false},
			{entry.PeersV4, true}, {entry.PeersV6, true},
		}
		for _, o := range others {
			if _, existed := o.m[peerID]; existed {
				delete(o.m, peerID)
				if o.wasPeers && isSeeder {
					res.MovedFromPeerToSeed = true
				}
				res.Created = false
				break
			}
		}
	}
	cp := peer
	target[peerID] = &cp
	return res, true
}

// RemoveResult reports the outcome of a RemovePeer call.
type RemoveResult struct {
	Removed    bool
	EntryEmpty bool
}

// RemovePeer removes peerID from whichever of the four maps held it.
func (s *Store) RemovePeer(ih InfoHash, peerID PeerID) RemoveResult {
	entry, ok := s.Get(ih)
	if !ok {
		return RemoveResult{}
	}
	entry.mu.Lock()
	removed := false
	for _, m := range [...]map[PeerID]*TorrentPeer{entry.SeedsV4, entry.SeedsV6, entry.PeersV4, entry.PeersV6} {
		if _, existed := m[peerID]; existed {
			delete(m, peerID)
			removed = true
			break
		}
	}
	empty := len(entry.SeedsV4) == 0 && len(entry.SeedsV6) == 0 && len(entry.PeersV4) == 0 && len(entry.PeersV6) == 0
	entry.mu.Unlock()
	if empty && !s.insertVacant {
		s.DeleteTorrent(ih)
	}
	return RemoveResult{Removed: removed, EntryEmpty: empty}
}

// PeerAddr is a minimal (ip, port) pair for responses.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

// SamplePeers returns up to requested peers for the swarm at ih, preferring
// the caller's IP family and excluding excludePeerID, plus the swarm's
// total seeder/leecher counts. Iteration halts as soon as requested peers
// have been collected (early exit, per spec.md §4.2). Selection order is
// deterministic: peer ids are sorted before sampling.
func (s *Store) SamplePeers(ih InfoHash, requested int, family Family, excludePeerID PeerID) (seeders, leechers int, peers []PeerAddr) {
	entry, ok := s.Get(ih)
	if !ok {
		return 0, 0, nil
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()

	seeders = len(entry.SeedsV4) + len(entry.SeedsV6)
	leechers = len(entry.PeersV4) + len(entry.PeersV6)
	if requested <= 0 {
		return seeders, leechers, nil
	}

	var seedMap, peerMap map[PeerID]*TorrentPeer
	if family == FamilyV4 {
		seedMap, peerMap = entry.SeedsV4, entry.PeersV4
	} else {
		seedMap, peerMap = entry.SeedsV6, entry.PeersV6
	}

	peers = make([]PeerAddr, 0, requested)
	for _, m := range [...]map[PeerID]*TorrentPeer{seedMap, peerMap} {
		if len(peers) >= requested {
			break
		}
		ids := make([]PeerID, 0, len(m))
		for id := range m {
			if id == excludePeerID {
				continue
			}
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return string(ids[i][:]) < string(ids[j][:]) })
		for _, id := range ids {
			if len(peers) >= requested {
				break
			}
			p := m[id]
			peers = append(peers, PeerAddr{IP: p.IP, Port: p.Port})
		}
	}
	return seeders, leechers, peers
}

// ScrapeResult is one infohash's swarm statistics.
type ScrapeResult struct {
	Seeders   int
	Completed int
	Leechers  int
}

// BulkScrape returns (seeders, completed, leechers) per requested infohash,
// zero-valued for unknown infohashes.
func (s *Store) BulkScrape(ihs []InfoHash) []ScrapeResult {
	out := make([]ScrapeResult, len(ihs))
	for i, ih := range ihs {
		entry, ok := s.Get(ih)
		if !ok {
			continue
		}
		entry.mu.RLock()
		out[i] = ScrapeResult{
			Seeders:   len(entry.SeedsV4) + len(entry.SeedsV6),
			Completed: int(entry.Completed),
			Leechers:  len(entry.PeersV4) + len(entry.PeersV6),
		}
		entry.mu.RUnlock()
	}
	return out
}

// IncrementCompleted bumps the completed counter for ih by one. The caller
// (the announce engine) is responsible for deciding exactly once per peer
// transition, per spec.md §4.5 and §9.
func (s *Store) IncrementCompleted(ih InfoHash) {
	entry, ok := s.Get(ih)
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.Completed++
	entry.mu.Unlock()
}

// ResetSeedsPeers wipes all peer state for ih without touching Completed,
// implementing the admin "reset" operation from spec.md §4.8. Peer-level
// data is never persisted, so this has no DB-side effect of its own.
func (s *Store) ResetSeedsPeers(ih InfoHash) {
	entry, ok := s.Get(ih)
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.SeedsV4 = make(map[PeerID]*TorrentPeer)
	entry.SeedsV6 = make(map[PeerID]*TorrentPeer)
	entry.PeersV4 = make(map[PeerID]*TorrentPeer)
	entry.PeersV6 = make(map[PeerID]*TorrentPeer)
	entry.mu.Unlock()
}

// LoadTorrent inserts an empty entry with a persisted completed counter,
// used during boot-time load (spec.md §4.8). The entry is inserted whatever
// the insert_vacant policy. It overwrites any existing entry's Completed
// value but never touches peer maps.
func (s *Store) LoadTorrent(ih InfoHash, completed uint64) {
	sh := s.shardFor(ih)
	sh.mu.Lock()
	entry, found := sh.torrents[ih]
	if !found {
		entry = newEntry()
		sh.torrents[ih] = entry
	}
	sh.mu.Unlock()
	entry.mu.Lock()
	entry.Completed = completed
	entry.mu.Unlock()
}

// Counts returns aggregate (torrents, peers, seeders, leechers) across all
// shards, for the console-stats emitter and the admin /stats endpoint.
func (s *Store) Counts() (torrents, peers, seeders, leechers int) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.torrents {
			torrents++
			se, le := e.Counts()
			seeders += se
			leechers += le
			peers += se + le
		}
		sh.mu.RUnlock()
	}
	return
}

// ShardCount exposes the raw shard count so sweepers (C9) can fan out one
// goroutine per shard without this package depending on a worker-pool
// library.
func (s *Store) ShardCount() int { return len(s.shards) }

// SweepShard walks shard index i, removing any peer whose Updated predates
// cutoff. Empty entries are removed too unless insertVacant retention is
// set. Returns the count of peers removed. Intended to be called once per
// shard, in parallel, by the peer-timeout sweeper (spec.md §4.9).
func (s *Store) SweepShard(i int, cutoff time.Time) (removedPeers int) {
	sh := s.shards[i]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for ih, e := range sh.torrents {
		e.mu.Lock()
		for _, m := range [...]map[PeerID]*TorrentPeer{e.SeedsV4, e.SeedsV6, e.PeersV4, e.PeersV6} {
			for id, p := range m {
				if p.Updated.Before(cutoff) {
					delete(m, id)
					removedPeers++
				}
			}
		}
		empty := len(e.SeedsV4) == 0 && len(e.SeedsV6) == 0 && len(e.PeersV4) == 0 && len(e.PeersV6) == 0
		e.mu.Unlock()
		if empty && !s.insertVacant {
			delete(sh.torrents, ih)
		}
	}
	return removedPeers
}

// Snapshot returns a shallow copy of every infohash currently known to the
// store, for bulk operations (persistence flush, admin listing) that must
// not hold shard locks during slow I/O.
func (s *Store) Snapshot() []InfoHash {
	out := make([]InfoHash, 0, 1024)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for ih := range sh.torrents {
			out = append(out, ih)
		}
		sh.mu.RUnlock()
	}
	return out
}
