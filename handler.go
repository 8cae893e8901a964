package main

import (
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/digicore404/gotrack/internal/codec"
	"github.com/digicore404/gotrack/internal/engine"
	"github.com/digicore404/gotrack/internal/metrics"
	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/persist"
	"github.com/digicore404/gotrack/internal/store"
)

// TrackerHandlers holds the HTTP tracker front-end's dependencies (C7):
// the announce/scrape engine (C5), statistics counters (C10), and the
// persistence pipeline (C8) that mutating announces must mark dirty.
type TrackerHandlers struct {
	Engine   *engine.Engine
	Counters *metrics.Counters
	Pipeline *persist.Pipeline
	Config   *Config
}

// AnnounceHandler serves GET /announce and GET /announce/:key, generalizing
// the teacher's passkey-gated AnnounceHandler in handler.go to the spec's
// public multi-torrent semantics: overlay checks replace the passkey/user
// lookup, and the response body carries no freeleech/snatch bookkeeping.
func (h *TrackerHandlers) AnnounceHandler(c *gin.Context) {
	q := c.Request.URL.Query()

	ih, ok := parse20(q.Get("info_hash"))
	if !ok {
		BencodeError(c, "invalid infohash")
		return
	}
	pid, ok := parse20(q.Get("peer_id"))
	if !ok {
		BencodeError(c, "invalid peer id")
		return
	}
	port, err := strconv.Atoi(q.Get("port"))
	if err != nil || port < 0 || port > 65535 {
		BencodeError(c, "invalid port")
		return
	}

	var infoHash store.InfoHash
	var peerID store.PeerID
	copy(infoHash[:], ih)
	copy(peerID[:], pid)

	ip := clientIP(c.Request, h.Config.TrustedProxies)
	key := routeKey(c)

	in := engine.AnnounceInput{
		InfoHash:   infoHash,
		PeerID:     peerID,
		IP:         ip,
		Port:       uint16(port),
		Uploaded:   u64Safe(q.Get("uploaded")),
		Downloaded: u64Safe(q.Get("downloaded")),
		Left:       u64Safe(q.Get("left")),
		Event:      parseEvent(q.Get("event")),
		NumWant:    clampNumwant(q.Get("numwant"), h.Config),
		Key:        key,
		UserKey:    key,
	}

	res, err := h.Engine.Announce(in, time.Now())
	if err != nil {
		BencodeError(c, announceErrorMessage(err))
		return
	}
	h.Counters.IncAnnounce(metrics.FamilyTCP4)
	markDirty(h.Pipeline, infoHash)
	if h.Engine.Users != nil && h.Engine.Users.Enabled() && key != "" {
		if hash, ok := engine.KeyHash(key); ok {
			markUserDirty(h.Pipeline, hash)
		}
	}

	compact := q.Get("compact") != "0"
	resp := map[string]any{
		"interval":     int(h.Engine.Config.AnnounceInterval.Seconds()),
		"min interval": int(h.Engine.Config.AnnounceIntervalMin.Seconds()),
		"complete":     res.Seeders,
		"incomplete":   res.Leechers,
	}
	if compact {
		var v4, v6 []byte
		for _, p := range res.Peers {
			if b := codec.CompactPeer4(p.IP, p.Port); b != nil {
				v4 = append(v4, b...)
			} else if b := codec.CompactPeer6(p.IP, p.Port); b != nil {
				v6 = append(v6, b...)
			}
		}
		resp["peers"] = v4
		if len(v6) > 0 {
			resp["peers6"] = v6
		}
	} else {
		ips := make([]net.IP, len(res.Peers))
		ports := make([]uint16, len(res.Peers))
		for i, p := range res.Peers {
			ips[i] = p.IP
			ports[i] = p.Port
		}
		resp["peers"] = codec.DictPeers(ips, ports)
	}
	WriteBencode(c, resp)
}

// ScrapeHandler serves GET /scrape with repeated info_hash parameters.
func (h *TrackerHandlers) ScrapeHandler(c *gin.Context) {
	raw := c.Request.URL.Query()["info_hash"]
	if len(raw) == 0 {
		WriteBencode(c, map[string]any{"files": map[string]any{}})
		return
	}

	hashes := make([]store.InfoHash, 0, len(raw))
	for _, s := range raw {
		b, ok := parse20(s)
		if !ok {
			continue
		}
		var ih store.InfoHash
		copy(ih[:], b)
		hashes = append(hashes, ih)
	}

	results := h.Engine.Scrape(hashes, time.Now())
	h.Counters.IncScrape(metrics.FamilyTCP4)

	files := make(map[string]map[string]int, len(results))
	for i, r := range results {
		files[string(hashes[i][:])] = map[string]int{
			"complete":   r.Seeders,
			"incomplete": r.Leechers,
			"downloaded": r.Completed,
		}
	}
	WriteBencode(c, map[string]any{"files": files})
}

func routeKey(c *gin.Context) string {
	if k := c.Param("key"); k != "" {
		return k
	}
	return c.Query("key")
}

func markDirty(p *persist.Pipeline, ih store.InfoHash) {
	if p != nil {
		p.Torrents.MarkAdded(ih)
	}
}

func markUserDirty(p *persist.Pipeline, key overlay.Hash256) {
	if p != nil {
		p.UsersSet.MarkAdded(key)
	}
}

func announceErrorMessage(err error) string {
	switch err {
	case engine.ErrInvalidInfoHash:
		return "invalid infohash"
	case engine.ErrInvalidPeerID:
		return "invalid peer id"
	case engine.ErrInvalidPort:
		return "invalid port"
	case engine.ErrInvalidEvent:
		return "invalid event"
	case engine.ErrNotWhitelisted:
		return "not whitelisted"
	case engine.ErrBlacklisted:
		return "blacklisted"
	case engine.ErrUnauthorizedKey:
		return "unauthorized key"
	case engine.ErrUnknownUser:
		return "unknown user"
	default:
		return "tracker error"
	}
}

func parseEvent(s string) store.Event {
	switch s {
	case "completed":
		return store.EventCompleted
	case "started":
		return store.EventStarted
	case "stopped":
		return store.EventStopped
	default:
		return store.EventNone
	}
}

/* ---------- request helpers, generalized from the teacher's handler.go ---------- */

func parse20(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	if len(s) == 40 && isHex(s) {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != 20 {
			return nil, false
		}
		return b, true
	}
	dec, err := url.QueryUnescape(s)
	if err != nil {
		return nil, false
	}
	b := []byte(dec)
	if len(b) != 20 {
		return nil, false
	}
	return b, true
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}

func u64Safe(s string) uint64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func clampNumwant(s string, cfg *Config) int {
	want := cfg.PeersReturnedDefault
	if s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			want = n
		}
	}
	if want > cfg.PeersReturnedMax {
		want = cfg.PeersReturnedMax
	}
	return want
}

// clientIP derives the request's client address from the TCP peer address,
// only consulting X-Forwarded-For's left-most entry when the immediate
// peer is a configured trusted proxy — adopted from original_source's
// http_service.rs trusted-proxy allow list (spec.md §4.7, §9), not a
// blanket XFF trust.
func clientIP(r *http.Request, trusted []string) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if isTrustedProxy(host, trusted) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return net.ParseIP(strings.TrimSpace(parts[0]))
		}
	}
	return net.ParseIP(host)
}

func isTrustedProxy(host string, trusted []string) bool {
	for _, t := range trusted {
		if t == host {
			return true
		}
	}
	return false
}
