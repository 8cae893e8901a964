// Package metrics implements the statistics counters named in spec.md
// §4.10 and exposes them in Prometheus text exposition format. No
// Prometheus client library appears anywhere in the retrieved corpus, so
// the exposition writer below is a small hand-rolled fmt.Fprintf writer,
// matching the teacher's own hand-rolled writeJSON/WriteBencode style
// rather than reaching for an unseen dependency.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
)

// family labels match the four listener kinds spec.md §4.10 counts
// separately: tcp4, tcp6, udp4, udp6.
const (
	FamilyTCP4 = "tcp4"
	FamilyTCP6 = "tcp6"
	FamilyUDP4 = "udp4"
	FamilyUDP6 = "udp6"
)

type perFamily struct {
	connectionsHandled atomic.Uint64
	announcesHandled   atomic.Uint64
	scrapesHandled     atomic.Uint64
}

// Counters holds the tracker's running totals. The zero value is ready to
// use; all fields are updated with atomic operations so they can be shared
// across every UDP worker and HTTP handler goroutine without a mutex.
type Counters struct {
	tcp4 perFamily
	tcp6 perFamily
	udp4 perFamily
	udp6 perFamily

	completed atomic.Uint64

	// Gauges are sampled on demand rather than held, since the store and
	// overlays already track their own sizes; GaugeSource supplies them.
	Gauges GaugeSource
}

// GaugeSource reports point-in-time sizes for the gauge metrics. The
// supervisor wires this to the live store and overlays at startup.
type GaugeSource interface {
	Torrents() int
	Seeders() int
	Leechers() int
	WhitelistSize() int
	BlacklistSize() int
	KeysSize() int
	UsersSize() int
}

func New(gauges GaugeSource) *Counters {
	return &Counters{Gauges: gauges}
}

func (c *Counters) familyFor(family string) *perFamily {
	switch family {
	case FamilyTCP4:
		return &c.tcp4
	case FamilyTCP6:
		return &c.tcp6
	case FamilyUDP4:
		return &c.udp4
	case FamilyUDP6:
		return &c.udp6
	default:
		return nil
	}
}

// IncConnection records a successful UDP connect handshake. HTTP has no
// connect phase, so this is only ever called for udp4/udp6.
func (c *Counters) IncConnection(family string) {
	if f := c.familyFor(family); f != nil {
		f.connectionsHandled.Add(1)
	}
}

// IncAnnounce satisfies internal/engine.Counters.
func (c *Counters) IncAnnounce(family string) {
	if f := c.familyFor(family); f != nil {
		f.announcesHandled.Add(1)
	}
}

// IncScrape satisfies internal/engine.Counters.
func (c *Counters) IncScrape(family string) {
	if f := c.familyFor(family); f != nil {
		f.scrapesHandled.Add(1)
	}
}

// IncCompleted satisfies internal/engine.Counters.
func (c *Counters) IncCompleted() {
	c.completed.Add(1)
}

// Snapshot is a point-in-time copy of every counter and gauge, used by both
// the JSON /api/stats endpoint and the Prometheus /metrics endpoint so the
// two never drift apart.
type Snapshot struct {
	TCP4Connections, TCP4Announces, TCP4Scrapes uint64
	TCP6Connections, TCP6Announces, TCP6Scrapes uint64
	UDP4Connections, UDP4Announces, UDP4Scrapes uint64
	UDP6Connections, UDP6Announces, UDP6Scrapes uint64
	Completed                                   uint64

	Torrents, Seeders, Leechers                         int
	WhitelistSize, BlacklistSize, KeysSize, UsersSize   int
}

func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		TCP4Connections: c.tcp4.connectionsHandled.Load(),
		TCP4Announces:   c.tcp4.announcesHandled.Load(),
		TCP4Scrapes:     c.tcp4.scrapesHandled.Load(),
		TCP6Connections: c.tcp6.connectionsHandled.Load(),
		TCP6Announces:   c.tcp6.announcesHandled.Load(),
		TCP6Scrapes:     c.tcp6.scrapesHandled.Load(),
		UDP4Connections: c.udp4.connectionsHandled.Load(),
		UDP4Announces:   c.udp4.announcesHandled.Load(),
		UDP4Scrapes:     c.udp4.scrapesHandled.Load(),
		UDP6Connections: c.udp6.connectionsHandled.Load(),
		UDP6Announces:   c.udp6.announcesHandled.Load(),
		UDP6Scrapes:     c.udp6.scrapesHandled.Load(),
		Completed:       c.completed.Load(),
	}
	if c.Gauges != nil {
		s.Torrents = c.Gauges.Torrents()
		s.Seeders = c.Gauges.Seeders()
		s.Leechers = c.Gauges.Leechers()
		s.WhitelistSize = c.Gauges.WhitelistSize()
		s.BlacklistSize = c.Gauges.BlacklistSize()
		s.KeysSize = c.Gauges.KeysSize()
		s.UsersSize = c.Gauges.UsersSize()
	}
	return s
}

// WritePrometheus renders s in the Prometheus text exposition format.
func WritePrometheus(w io.Writer, s Snapshot) error {
	lines := []struct {
		name  string
		help  string
		typ   string
		label string
		value uint64
	}{
		{"gotrack_connections_handled_total", "Total connect handshakes handled.", "counter", `family="tcp4"`, s.TCP4Connections},
		{"gotrack_connections_handled_total", "", "", `family="tcp6"`, s.TCP6Connections},
		{"gotrack_connections_handled_total", "", "", `family="udp4"`, s.UDP4Connections},
		{"gotrack_connections_handled_total", "", "", `family="udp6"`, s.UDP6Connections},
		{"gotrack_announces_handled_total", "Total announce requests handled.", "counter", `family="tcp4"`, s.TCP4Announces},
		{"gotrack_announces_handled_total", "", "", `family="tcp6"`, s.TCP6Announces},
		{"gotrack_announces_handled_total", "", "", `family="udp4"`, s.UDP4Announces},
		{"gotrack_announces_handled_total", "", "", `family="udp6"`, s.UDP6Announces},
		{"gotrack_scrapes_handled_total", "Total scrape requests handled.", "counter", `family="tcp4"`, s.TCP4Scrapes},
		{"gotrack_scrapes_handled_total", "", "", `family="tcp6"`, s.TCP6Scrapes},
		{"gotrack_scrapes_handled_total", "", "", `family="udp4"`, s.UDP4Scrapes},
		{"gotrack_scrapes_handled_total", "", "", `family="udp6"`, s.UDP6Scrapes},
	}

	seen := make(map[string]bool)
	for _, l := range lines {
		if !seen[l.name] {
			fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", l.name, l.help, l.name, l.typ)
			seen[l.name] = true
		}
		fmt.Fprintf(w, "%s{%s} %d\n", l.name, l.label, l.value)
	}

	fmt.Fprintf(w, "# HELP gotrack_completed_total Total leecher-to-seeder completion transitions.\n")
	fmt.Fprintf(w, "# TYPE gotrack_completed_total counter\n")
	fmt.Fprintf(w, "gotrack_completed_total %d\n", s.Completed)

	gauges := []struct {
		name  string
		help  string
		value int
	}{
		{"gotrack_torrents", "Number of torrents currently tracked.", s.Torrents},
		{"gotrack_seeders", "Number of seeders across all torrents.", s.Seeders},
		{"gotrack_leechers", "Number of leechers across all torrents.", s.Leechers},
		{"gotrack_whitelist_size", "Number of entries in the whitelist overlay.", s.WhitelistSize},
		{"gotrack_blacklist_size", "Number of entries in the blacklist overlay.", s.BlacklistSize},
		{"gotrack_keys_size", "Number of entries in the keys overlay.", s.KeysSize},
		{"gotrack_users_size", "Number of entries in the users overlay.", s.UsersSize},
	}
	for _, g := range gauges {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", g.name, g.help, g.name, g.name, g.value)
	}
	return nil
}
