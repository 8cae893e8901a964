package engine

import (
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/store"
)

func newEngine() *Engine {
	return &Engine{
		Store:     store.New(true),
		Whitelist: overlay.NewSet(false),
		Blacklist: overlay.NewSet(false),
		Keys:      overlay.NewKeys(false),
		Users:     overlay.NewUsers(false),
		Config: Config{
			AnnounceInterval: 1800 * time.Second,
			DefaultNumWant:   50,
			MaxNumWant:       200,
		},
	}
}

func ih(b byte) store.InfoHash {
	var h store.InfoHash
	for i := range h {
		h[i] = b
	}
	return h
}

func pid(b byte) store.PeerID {
	var p store.PeerID
	for i := range p {
		p[i] = b
	}
	return p
}

func TestFreshAnnounceExcludesSelf(t *testing.T) {
	e := newEngine()
	now := time.Now()
	res, err := e.Announce(AnnounceInput{
		InfoHash: ih(0xAA), PeerID: pid(0xBB), IP: net.ParseIP("203.0.113.5"),
		Port: 6881, Left: 1000, Event: store.EventStarted, NumWant: 50,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Seeders != 0 || res.Leechers != 1 || len(res.Peers) != 0 {
		t.Fatalf("expected 0 seeders, 1 leecher, 0 peers (self excluded); got %+v", res)
	}
}

func TestCompletionTransitionIncrementsOnce(t *testing.T) {
	e := newEngine()
	now := time.Now()
	in := AnnounceInput{InfoHash: ih(0x01), PeerID: pid(0x02), IP: net.ParseIP("1.2.3.4"), Port: 6881, Left: 1000, Event: store.EventStarted}
	if _, err := e.Announce(in, now); err != nil {
		t.Fatal(err)
	}

	in.Left = 0
	in.Event = store.EventCompleted
	res, err := e.Announce(in, now.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Seeders != 1 || res.Leechers != 0 {
		t.Fatalf("expected 1 seeder 0 leechers, got %+v", res)
	}
	entry, _ := e.Store.Get(in.InfoHash)
	if entry.Completed != 1 {
		t.Fatalf("expected completed=1, got %d", entry.Completed)
	}

	// Re-announcing as seeder again must not double count.
	res, err = e.Announce(in, now.Add(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if entry.Completed != 1 {
		t.Fatalf("expected completed still 1 after repeat seed announce, got %d", entry.Completed)
	}
}

func TestStopRemovesPeer(t *testing.T) {
	e := newEngine()
	now := time.Now()
	in := AnnounceInput{InfoHash: ih(0x03), PeerID: pid(0x04), IP: net.ParseIP("1.2.3.4"), Port: 6881, Left: 5, Event: store.EventStarted}
	e.Announce(in, now)

	in.Event = store.EventStopped
	res, err := e.Announce(in, now.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if res.Seeders != 0 || res.Leechers != 0 {
		t.Fatalf("expected empty swarm after stop, got %+v", res)
	}
}

func TestWhitelistBlocksUnknownInfoHash(t *testing.T) {
	e := newEngine()
	e.Whitelist = overlay.NewSet(true)
	var allowed overlay.Hash256
	allowed[0] = 0x01
	e.Whitelist.Insert(allowed)

	_, err := e.Announce(AnnounceInput{
		InfoHash: ih(0x99), PeerID: pid(0x01), IP: net.ParseIP("1.2.3.4"), Port: 6881, Left: 1,
	}, time.Now())
	if err != ErrNotWhitelisted {
		t.Fatalf("expected ErrNotWhitelisted, got %v", err)
	}
}

func TestAnnounceRejectsZeroPort(t *testing.T) {
	e := newEngine()
	_, err := e.Announce(AnnounceInput{InfoHash: ih(1), PeerID: pid(1), IP: net.ParseIP("1.2.3.4"), Port: 0}, time.Now())
	if err != ErrInvalidPort {
		t.Fatalf("expected ErrInvalidPort, got %v", err)
	}
}

func TestKeyHashDecodesProvisionedHexKey(t *testing.T) {
	const presented = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
	e := newEngine()
	e.Keys = overlay.NewKeys(true)

	var provisioned overlay.Hash256
	raw, err := hex.DecodeString(presented)
	if err != nil || len(raw) != 20 {
		t.Fatalf("test fixture: bad hex %q", presented)
	}
	copy(provisioned[:], raw)
	e.Keys.Insert(provisioned, 0)

	_, err = e.Announce(AnnounceInput{
		InfoHash: ih(0x05), PeerID: pid(0x06), IP: net.ParseIP("1.2.3.4"),
		Port: 6881, Left: 1, Key: presented,
	}, time.Now())
	if err != nil {
		t.Fatalf("expected the presented key to match the provisioned key, got %v", err)
	}
}

func TestKeyHashRejectsMismatchedKey(t *testing.T) {
	e := newEngine()
	e.Keys = overlay.NewKeys(true)
	var provisioned overlay.Hash256
	provisioned[0] = 0xAA
	e.Keys.Insert(provisioned, 0)

	_, err := e.Announce(AnnounceInput{
		InfoHash: ih(0x05), PeerID: pid(0x06), IP: net.ParseIP("1.2.3.4"),
		Port: 6881, Left: 1, Key: "000000000000000000000000000000000000000a",
	}, time.Now())
	if err != ErrUnauthorizedKey {
		t.Fatalf("expected ErrUnauthorizedKey for a non-matching key, got %v", err)
	}
}

func TestScrapeMixedReturnsZerosForFilteredOnly(t *testing.T) {
	e := newEngine()
	e.Whitelist = overlay.NewSet(true)
	allowed := ih(0x01)
	var h overlay.Hash256
	copy(h[:], allowed[:])
	e.Whitelist.Insert(h)
	e.Store.LoadTorrent(allowed, 3)

	blocked := ih(0x02)
	results := e.Scrape([]store.InfoHash{allowed, blocked}, time.Now())
	if results[0].Completed != 3 || results[0].Filtered {
		t.Fatalf("expected allowed hash to scrape normally, got %+v", results[0])
	}
	if !results[1].Filtered {
		t.Fatalf("expected blocked hash to be filtered")
	}
}
