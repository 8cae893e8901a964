// Package engine implements the announce/scrape semantics (spec component
// C5): it runs the access overlays (C3), mutates the sharded store (C2),
// and accounts completions, leaving protocol encoding to the UDP/HTTP
// front-ends.
package engine

import (
	"encoding/hex"
	"net"
	"time"

	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/store"
)

// Config holds the announce/scrape interval knobs from spec.md §6.
type Config struct {
	AnnounceInterval    time.Duration
	AnnounceIntervalMin time.Duration
	DefaultNumWant      int
	MaxNumWant          int
}

// Counters is the subset of C10 the engine updates synchronously on every
// request; satisfied by internal/metrics.Counters.
type Counters interface {
	IncAnnounce(family string)
	IncScrape(family string)
	IncCompleted()
}

// Engine wires the store and overlays together to implement one tracker's
// announce/scrape semantics.
type Engine struct {
	Store      *store.Store
	Whitelist  *overlay.Set
	Blacklist  *overlay.Set
	Keys       *overlay.Keys
	Users      *overlay.Users
	Config     Config
	Counters   Counters
}

// AnnounceInput is one parsed announce request, family-agnostic; the
// front-end is responsible for deriving IP from the socket peer address,
// never from a client-supplied override (spec.md §9, BEP 41 IP spoofing).
type AnnounceInput struct {
	InfoHash store.InfoHash
	PeerID   store.PeerID
	IP       net.IP
	Port     uint16
	Uploaded uint64
	Downloaded uint64
	Left     uint64
	Event    store.Event
	NumWant  int
	Key      string // 40-hex private key, if keys overlay enabled
	UserKey  string // access key identifying a user row, if users overlay enabled
}

// AnnounceResult is what the front-end encodes back to the client.
type AnnounceResult struct {
	Interval    time.Duration
	Seeders     int
	Leechers    int
	Peers       []store.PeerAddr
}

func family(ip net.IP) store.Family {
	if ip.To4() != nil {
		return store.FamilyV4
	}
	return store.FamilyV6
}

// KeyHash hex-decodes a 40-character access key into the Hash256 used by
// the key and user overlays, the same decoding admin.go applies when a key
// is provisioned, so a client presenting a key matches the row an admin
// inserted (spec.md §4.3). ok is false for malformed or wrong-length input,
// and the zero Hash256 never matches a provisioned entry.
func KeyHash(s string) (overlay.Hash256, bool) {
	var h overlay.Hash256
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 20 {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

func keyHash(s string) overlay.Hash256 {
	h, _ := KeyHash(s)
	return h
}

// checkOverlays runs keys -> whitelist -> blacklist -> user tracking, in
// that precedence order (spec.md §4.3).
func (e *Engine) checkOverlays(ih store.InfoHash, key, userKey string, now time.Time) error {
	if e.Keys != nil && e.Keys.Enabled() {
		if len(key) != 40 || !e.Keys.Valid(keyHash(key), now) {
			return ErrUnauthorizedKey
		}
	}
	if e.Whitelist != nil && e.Whitelist.IsNonEmptyEnforced() {
		var h overlay.Hash256
		copy(h[:], ih[:])
		if !e.Whitelist.Contains(h) {
			return ErrNotWhitelisted
		}
	}
	if e.Blacklist != nil && e.Blacklist.Enabled() {
		var h overlay.Hash256
		copy(h[:], ih[:])
		if e.Blacklist.Contains(h) {
			return ErrBlacklisted
		}
	}
	if e.Users != nil && e.Users.Enabled() {
		if _, ok := e.Users.Lookup(keyHash(userKey)); !ok {
			return ErrUnknownUser
		}
	}
	return nil
}

// Announce applies announce semantics per spec.md §4.5.
func (e *Engine) Announce(in AnnounceInput, now time.Time) (AnnounceResult, error) {
	if in.Port == 0 {
		return AnnounceResult{}, ErrInvalidPort
	}
	if err := e.checkOverlays(in.InfoHash, in.Key, in.UserKey, now); err != nil {
		return AnnounceResult{}, err
	}

	fam := family(in.IP)
	isSeeder := in.Left == 0

	if in.Event == store.EventStopped {
		e.Store.RemovePeer(in.InfoHash, in.PeerID)
	} else {
		peer := store.TorrentPeer{
			IP: in.IP, Port: in.Port, PeerID: in.PeerID,
			Uploaded: in.Uploaded, Downloaded: in.Downloaded, Left: in.Left,
			Event: in.Event, Updated: now,
		}
		res, _ := e.Store.UpsertPeer(in.InfoHash, in.PeerID, peer, fam, isSeeder)
		if res.MovedFromPeerToSeed && in.Event == store.EventCompleted {
			e.Store.IncrementCompleted(in.InfoHash)
			if e.Counters != nil {
				e.Counters.IncCompleted()
			}
			if e.Users != nil && e.Users.Enabled() && in.UserKey != "" {
				e.Users.IncrementCompleted(keyHash(in.UserKey))
			}
		}
		if e.Users != nil && e.Users.Enabled() && in.UserKey != "" {
			e.Users.AccumulateDeltas(keyHash(in.UserKey), in.Uploaded, in.Downloaded, now)
		}
	}

	want := in.NumWant
	if want <= 0 {
		want = e.Config.DefaultNumWant
	}
	if want > e.Config.MaxNumWant {
		want = e.Config.MaxNumWant
	}

	seeders, leechers, peers := e.Store.SamplePeers(in.InfoHash, want, fam, in.PeerID)

	if e.Counters != nil {
		e.Counters.IncAnnounce(familyLabel(fam))
	}

	return AnnounceResult{
		Interval: e.Config.AnnounceInterval,
		Seeders:  seeders,
		Leechers: leechers,
		Peers:    peers,
	}, nil
}

func familyLabel(f store.Family) string {
	if f == store.FamilyV4 {
		return "v4"
	}
	return "v6"
}

// ScrapeResult mirrors store.ScrapeResult but with an extra Filtered flag so
// the HTTP/UDP front-ends can render zeros for hashes blocked by an overlay
// without failing the whole request (spec.md §4.3).
type ScrapeResult struct {
	store.ScrapeResult
	Filtered bool
}

// Scrape applies access overlays per-infohash and returns (seeders,
// completed, leechers), or zeros for infohashes the overlays reject.
func (e *Engine) Scrape(ihs []store.InfoHash, now time.Time) []ScrapeResult {
	out := make([]ScrapeResult, len(ihs))
	toQuery := make([]store.InfoHash, 0, len(ihs))
	idx := make([]int, 0, len(ihs))
	for i, ih := range ihs {
		var h overlay.Hash256
		copy(h[:], ih[:])
		if e.Whitelist != nil && e.Whitelist.IsNonEmptyEnforced() && !e.Whitelist.Contains(h) {
			out[i] = ScrapeResult{Filtered: true}
			continue
		}
		if e.Blacklist != nil && e.Blacklist.Enabled() && e.Blacklist.Contains(h) {
			out[i] = ScrapeResult{Filtered: true}
			continue
		}
		toQuery = append(toQuery, ih)
		idx = append(idx, i)
	}
	results := e.Store.BulkScrape(toQuery)
	for j, i := range idx {
		out[i] = ScrapeResult{ScrapeResult: results[j]}
	}
	if e.Counters != nil {
		e.Counters.IncScrape("mixed")
	}
	return out
}
