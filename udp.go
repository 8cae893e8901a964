package main

import (
	"context"
	"encoding/binary"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/digicore404/gotrack/internal/codec"
	"github.com/digicore404/gotrack/internal/connid"
	"github.com/digicore404/gotrack/internal/engine"
	"github.com/digicore404/gotrack/internal/metrics"
	"github.com/digicore404/gotrack/internal/persist"
	"github.com/digicore404/gotrack/internal/store"
)

// UDPFrontend is the UDP tracker front-end (C6): one goroutine per
// configured bind reading via net.ListenUDP, dispatching into a bounded
// worker pool. The teacher has no UDP front-end at all (gotrack is
// HTTP-only); this is new code grounded on spec.md §4.1/§4.6 plus
// internal/codec and internal/connid, using golang.org/x/sync/errgroup for
// the worker pool's lifecycle the way janitor.go does.
type UDPFrontend struct {
	Engine   *engine.Engine
	ConnID   *connid.Service
	Counters *metrics.Counters
	Pipeline *persist.Pipeline
	Log      zerolog.Logger
	Workers  int
}

// Serve reads datagrams from conn until ctx is cancelled, dispatching each
// to a bounded worker pool. One Serve call corresponds to one configured
// UDP bind (spec.md §4.6, "a single UDP socket per configured bind").
func (f *UDPFrontend) Serve(ctx context.Context, conn *net.UDPConn, family string) error {
	workers := f.Workers
	if workers <= 0 {
		workers = 32
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
		conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			f.handlePacket(conn, addr, pkt, family)
			return nil
		})
	}
	return g.Wait()
}

func (f *UDPFrontend) handlePacket(conn *net.UDPConn, addr *net.UDPAddr, pkt []byte, family string) {
	if len(pkt) < 12 {
		return
	}
	action := binary.BigEndian.Uint32(pkt[8:12])
	switch action {
	case codec.ActionConnect:
		f.handleConnect(conn, addr, pkt, family)
	case codec.ActionAnnounce:
		f.handleAnnounce(conn, addr, pkt, family)
	case codec.ActionScrape:
		f.handleScrape(conn, addr, pkt, family)
	}
}

func (f *UDPFrontend) handleConnect(conn *net.UDPConn, addr *net.UDPAddr, pkt []byte, family string) {
	req, err := codec.ParseConnectRequest(pkt)
	if err != nil {
		return
	}
	now := time.Now()
	connID := f.ConnID.Issue(addr.IP.To16(), now)
	resp := codec.EncodeConnectResponse(req.TransactionID, connID)
	_, _ = conn.WriteToUDP(resp, addr)
	f.Counters.IncConnection(family)
}

func (f *UDPFrontend) handleAnnounce(conn *net.UDPConn, addr *net.UDPAddr, pkt []byte, family string) {
	req, err := codec.ParseAnnounceRequest(pkt)
	if err != nil {
		return
	}
	now := time.Now()
	if err := f.ConnID.Validate(req.ConnectionID, addr.IP.To16(), now); err != nil {
		_, _ = conn.WriteToUDP(codec.EncodeErrorResponse(req.TransactionID, "connection_id expired"), addr)
		return
	}

	ip := addr.IP
	if req.IP != 0 {
		// BEP 41 IP override is intentionally ignored; the socket peer
		// address is authoritative (spec.md §9).
	}

	var infoHash store.InfoHash
	var peerID store.PeerID
	copy(infoHash[:], req.InfoHash[:])
	copy(peerID[:], req.PeerID[:])

	in := engine.AnnounceInput{
		InfoHash:   infoHash,
		PeerID:     peerID,
		IP:         ip,
		Port:       req.Port,
		Uploaded:   req.Uploaded,
		Downloaded: req.Downloaded,
		Left:       req.Left,
		Event:      udpEvent(req.Event),
		NumWant:    int(req.NumWant),
	}

	res, err := f.Engine.Announce(in, now)
	if err != nil {
		_, _ = conn.WriteToUDP(codec.EncodeErrorResponse(req.TransactionID, err.Error()), addr)
		return
	}
	f.Counters.IncAnnounce(family)
	if f.Pipeline != nil {
		f.Pipeline.Torrents.MarkAdded(infoHash)
	}

	addrs := make([]net.TCPAddr, 0, len(res.Peers))
	for _, p := range res.Peers {
		addrs = append(addrs, net.TCPAddr{IP: p.IP, Port: int(p.Port)})
	}
	interval := int32(f.Engine.Config.AnnounceInterval.Seconds())
	var resp []byte
	if ip.To4() != nil {
		resp = codec.EncodeAnnounceResponseV4(req.TransactionID, interval, int32(res.Leechers), int32(res.Seeders), addrs)
	} else {
		resp = codec.EncodeAnnounceResponseV6(req.TransactionID, interval, int32(res.Leechers), int32(res.Seeders), addrs)
	}
	_, _ = conn.WriteToUDP(resp, addr)
}

func (f *UDPFrontend) handleScrape(conn *net.UDPConn, addr *net.UDPAddr, pkt []byte, family string) {
	req, err := codec.ParseScrapeRequest(pkt)
	if err != nil {
		if err == codec.ErrScrapeTooLarge {
			_, _ = conn.WriteToUDP(codec.EncodeErrorResponse(req.TransactionID, "scrape too large"), addr)
		}
		return
	}
	now := time.Now()
	if err := f.ConnID.Validate(req.ConnectionID, addr.IP.To16(), now); err != nil {
		_, _ = conn.WriteToUDP(codec.EncodeErrorResponse(req.TransactionID, "connection_id expired"), addr)
		return
	}

	hashes := make([]store.InfoHash, len(req.InfoHashes))
	for i, h := range req.InfoHashes {
		copy(hashes[i][:], h[:])
	}
	results := f.Engine.Scrape(hashes, now)
	f.Counters.IncScrape(family)

	stats := make([]codec.ScrapeStat, len(results))
	for i, r := range results {
		stats[i] = codec.ScrapeStat{Seeders: uint32(r.Seeders), Completed: uint32(r.Completed), Leechers: uint32(r.Leechers)}
	}
	resp := codec.EncodeScrapeResponse(req.TransactionID, stats)
	_, _ = conn.WriteToUDP(resp, addr)
}

func udpEvent(e uint32) store.Event {
	switch e {
	case 1:
		return store.EventCompleted
	case 2:
		return store.EventStarted
	case 3:
		return store.EventStopped
	default:
		return store.EventNone
	}
}
