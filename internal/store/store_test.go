package store

import (
	"net"
	"testing"
	"time"
)

func mkIH(b byte) InfoHash {
	var ih InfoHash
	for i := range ih {
		ih[i] = b
	}
	return ih
}

func mkPeer(b byte) PeerID {
	var p PeerID
	for i := range p {
		p[i] = b
	}
	return p
}

func TestUpsertPeerPlacementExclusive(t *testing.T) {
	s := New(true)
	ih := mkIH(0xAA)
	pid := mkPeer(0xBB)

	peer := TorrentPeer{IP: net.ParseIP("1.2.3.4"), Port: 6881, PeerID: pid, Left: 1000, Updated: time.Now()}
	res, ok := s.UpsertPeer(ih, pid, peer, FamilyV4, false)
	if !ok || !res.Created {
		t.Fatalf("expected created leecher, got %+v ok=%v", res, ok)
	}

	entry, _ := s.Get(ih)
	seeders, _ := entry.Counts()
	if seeders != 0 {
		t.Fatalf("expected 0 seeders before transition")
	}

	peer.Left = 0
	peer.Event = EventCompleted
	res, ok = s.UpsertPeer(ih, pid, peer, FamilyV4, true)
	if !ok || !res.MovedFromPeerToSeed {
		t.Fatalf("expected peer->seed transition, got %+v", res)
	}

	seedCount, leechCount := entry.Counts()
	if seedCount != 1 || leechCount != 0 {
		t.Fatalf("expected 1 seeder 0 leechers, got %d/%d", seedCount, leechCount)
	}
}

func TestSamplePeersExcludesSelfAndRespectsLimit(t *testing.T) {
	s := New(true)
	ih := mkIH(0x01)
	for i := 0; i < 5; i++ {
		pid := mkPeer(byte(i))
		s.UpsertPeer(ih, pid, TorrentPeer{PeerID: pid, Left: 1, Updated: time.Now()}, FamilyV4, false)
	}
	self := mkPeer(0)
	seeders, leechers, peers := s.SamplePeers(ih, 3, FamilyV4, self)
	if seeders != 0 || leechers != 5 {
		t.Fatalf("expected 0/5, got %d/%d", seeders, leechers)
	}
	if len(peers) != 3 {
		t.Fatalf("expected 3 sampled peers, got %d", len(peers))
	}
}

func TestRemovePeerLeavesStoreConsistent(t *testing.T) {
	s := New(false)
	ih := mkIH(0x02)
	pid := mkPeer(0x05)
	// insertVacant=false never creates entries on announce; seed it as a boot load would.
	s.LoadTorrent(ih, 0)
	s.UpsertPeer(ih, pid, TorrentPeer{PeerID: pid, Left: 0, Updated: time.Now()}, FamilyV4, true)
	res := s.RemovePeer(ih, pid)
	if !res.Removed || !res.EntryEmpty {
		t.Fatalf("expected removed+empty, got %+v", res)
	}
	if _, ok := s.Get(ih); ok {
		t.Fatalf("expected entry to be deleted when insertVacant=false")
	}
}

func TestShardIndexIsFirstByte(t *testing.T) {
	s := New(true)
	for b := 0; b < 256; b++ {
		ih := mkIH(byte(b))
		if s.shardFor(ih) != s.shards[b] {
			t.Fatalf("shard mismatch for byte %d", b)
		}
	}
}

func TestSweepShardRemovesStalePeers(t *testing.T) {
	s := New(true)
	ih := mkIH(0x03)
	old := mkPeer(0x10)
	fresh := mkPeer(0x11)
	s.UpsertPeer(ih, old, TorrentPeer{PeerID: old, Left: 1, Updated: time.Now().Add(-time.Hour)}, FamilyV4, false)
	s.UpsertPeer(ih, fresh, TorrentPeer{PeerID: fresh, Left: 1, Updated: time.Now()}, FamilyV4, false)

	cutoff := time.Now().Add(-time.Minute)
	removed := s.SweepShard(int(ih[0]), cutoff)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	entry, _ := s.Get(ih)
	_, leechers := entry.Counts()
	if leechers != 1 {
		t.Fatalf("expected 1 remaining leecher, got %d", leechers)
	}
}

func TestBulkScrapeZerosUnknown(t *testing.T) {
	s := New(true)
	known := mkIH(0x04)
	s.LoadTorrent(known, 7)
	unknown := mkIH(0x05)
	res := s.BulkScrape([]InfoHash{known, unknown})
	if res[0].Completed != 7 {
		t.Fatalf("expected completed=7, got %d", res[0].Completed)
	}
	if res[1] != (ScrapeResult{}) {
		t.Fatalf("expected zero result for unknown infohash, got %+v", res[1])
	}
}
