// Package codec implements the fixed-layout binary parse/encode operations
// for the UDP tracker wire protocol (BEP 15 + BEP 41) and the compact peer
// encodings used by both the UDP and HTTP front-ends (BEP 23/7), spec
// component C1. No library in the retrieved corpus speaks this wire format,
// so the codec is deliberately stdlib-only hand-rolled big-endian packing,
// in the same spirit as the teacher's hand-rolled CompactPeer in peers.go.
package codec

import (
	"encoding/binary"
	"errors"
	"net"
)

// ProtocolID is the BEP 15 magic constant identifying a connect request.
const ProtocolID uint64 = 0x41727101980

const (
	ActionConnect  uint32 = 0
	ActionAnnounce uint32 = 1
	ActionScrape   uint32 = 2
	ActionError    uint32 = 3
)

// MaxScrapeTorrents bounds a single UDP scrape request, per spec.md §4.1.
const MaxScrapeTorrents = 74

// MaxPeersReturned caps the peer records packed into one announce response
// so the packet stays inside a typical MTU, per spec.md §4.1.
const MaxPeersReturned = 74

var (
	ErrMalformedPacket = errors.New("codec: malformed packet")
	ErrScrapeTooLarge  = errors.New("codec: scrape request too large")
)

// ConnectRequest is the 16-byte BEP 15 connect packet.
type ConnectRequest struct {
	ProtocolID    uint64
	Action        uint32
	TransactionID uint32
}

// ParseConnectRequest decodes a 16-byte connect request.
func ParseConnectRequest(b []byte) (ConnectRequest, error) {
	if len(b) < 16 {
		return ConnectRequest{}, ErrMalformedPacket
	}
	pid := binary.BigEndian.Uint64(b[0:8])
	if pid != ProtocolID {
		return ConnectRequest{}, ErrMalformedPacket
	}
	return ConnectRequest{
		ProtocolID:    pid,
		Action:        binary.BigEndian.Uint32(b[8:12]),
		TransactionID: binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// EncodeConnectResponse writes the 16-byte connect response.
func EncodeConnectResponse(transactionID uint32, connectionID uint64) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:4], ActionConnect)
	binary.BigEndian.PutUint32(out[4:8], transactionID)
	binary.BigEndian.PutUint64(out[8:16], connectionID)
	return out
}

// AnnounceRequest is the fixed 98-byte BEP 15 announce packet. BEP 41
// extension options, if present after byte 98, are not parsed and are
// ignored (spec.md §9 — the socket peer address is always authoritative).
type AnnounceRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHash      [20]byte
	PeerID        [20]byte
	Downloaded    uint64
	Left          uint64
	Uploaded      uint64
	Event         uint32
	IP            uint32
	Key           uint32
	NumWant       int32
	Port          uint16
}

// ParseAnnounceRequest decodes the fixed 98-byte announce body (the action
// field itself is assumed already dispatched on by the caller).
func ParseAnnounceRequest(b []byte) (AnnounceRequest, error) {
	if len(b) < 98 {
		return AnnounceRequest{}, ErrMalformedPacket
	}
	var r AnnounceRequest
	r.ConnectionID = binary.BigEndian.Uint64(b[0:8])
	// b[8:12] is the action field, already dispatched.
	r.TransactionID = binary.BigEndian.Uint32(b[12:16])
	copy(r.InfoHash[:], b[16:36])
	copy(r.PeerID[:], b[36:56])
	r.Downloaded = binary.BigEndian.Uint64(b[56:64])
	r.Left = binary.BigEndian.Uint64(b[64:72])
	r.Uploaded = binary.BigEndian.Uint64(b[72:80])
	r.Event = binary.BigEndian.Uint32(b[80:84])
	r.IP = binary.BigEndian.Uint32(b[84:88])
	r.Key = binary.BigEndian.Uint32(b[88:92])
	r.NumWant = int32(binary.BigEndian.Uint32(b[92:96]))
	r.Port = binary.BigEndian.Uint16(b[96:98])
	return r, nil
}

// EncodeAnnounceResponseV4 packs the 20-byte header plus N 6-byte peer
// records. The result is truncated to a whole number of records if it
// would otherwise exceed MaxPeersReturned.
func EncodeAnnounceResponseV4(transactionID uint32, interval, leechers, seeders int32, peers []net.TCPAddr) []byte {
	if len(peers) > MaxPeersReturned {
		peers = peers[:MaxPeersReturned]
	}
	out := make([]byte, 20+6*len(peers))
	binary.BigEndian.PutUint32(out[0:4], ActionAnnounce)
	binary.BigEndian.PutUint32(out[4:8], transactionID)
	binary.BigEndian.PutUint32(out[8:12], uint32(interval))
	binary.BigEndian.PutUint32(out[12:16], uint32(leechers))
	binary.BigEndian.PutUint32(out[16:20], uint32(seeders))
	off := 20
	for _, p := range peers {
		ip4 := p.IP.To4()
		if ip4 == nil {
			continue
		}
		copy(out[off:off+4], ip4)
		binary.BigEndian.PutUint16(out[off+4:off+6], uint16(p.Port))
		off += 6
	}
	return out[:off]
}

// EncodeAnnounceResponseV6 packs the 20-byte header plus N 18-byte peer
// records (16-byte IPv6 address + 2-byte port).
func EncodeAnnounceResponseV6(transactionID uint32, interval, leechers, seeders int32, peers []net.TCPAddr) []byte {
	if len(peers) > MaxPeersReturned {
		peers = peers[:MaxPeersReturned]
	}
	out := make([]byte, 20+18*len(peers))
	binary.BigEndian.PutUint32(out[0:4], ActionAnnounce)
	binary.BigEndian.PutUint32(out[4:8], transactionID)
	binary.BigEndian.PutUint32(out[8:12], uint32(interval))
	binary.BigEndian.PutUint32(out[12:16], uint32(leechers))
	binary.BigEndian.PutUint32(out[16:20], uint32(seeders))
	off := 20
	for _, p := range peers {
		ip6 := p.IP.To16()
		if ip6 == nil {
			continue
		}
		copy(out[off:off+16], ip6)
		binary.BigEndian.PutUint16(out[off+16:off+18], uint16(p.Port))
		off += 18
	}
	return out[:off]
}

// ScrapeRequest is connection_id/action/transaction_id followed by 1..74
// infohashes.
type ScrapeRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHashes    [][20]byte
}

// ParseScrapeRequest decodes a scrape request body (post connection_id
// header dispatch). It rejects more than MaxScrapeTorrents infohashes
// before allocating the result slice, matching original_source's early
// reject in udp_service.rs (see SPEC_FULL.md §9).
func ParseScrapeRequest(b []byte) (ScrapeRequest, error) {
	if len(b) < 16 {
		return ScrapeRequest{}, ErrMalformedPacket
	}
	body := b[16:]
	if len(body)%20 != 0 || len(body) == 0 {
		return ScrapeRequest{}, ErrMalformedPacket
	}
	n := len(body) / 20
	if n > MaxScrapeTorrents {
		return ScrapeRequest{TransactionID: binary.BigEndian.Uint32(b[12:16])}, ErrScrapeTooLarge
	}
	r := ScrapeRequest{
		ConnectionID:  binary.BigEndian.Uint64(b[0:8]),
		TransactionID: binary.BigEndian.Uint32(b[12:16]),
		InfoHashes:    make([][20]byte, n),
	}
	for i := 0; i < n; i++ {
		copy(r.InfoHashes[i][:], body[i*20:i*20+20])
	}
	return r, nil
}

// ScrapeStat is one infohash's (seeders, completed, leechers) triple.
type ScrapeStat struct {
	Seeders   uint32
	Completed uint32
	Leechers  uint32
}

// EncodeScrapeResponse packs the scrape response header and per-hash stats.
func EncodeScrapeResponse(transactionID uint32, stats []ScrapeStat) []byte {
	out := make([]byte, 8+12*len(stats))
	binary.BigEndian.PutUint32(out[0:4], ActionScrape)
	binary.BigEndian.PutUint32(out[4:8], transactionID)
	off := 8
	for _, s := range stats {
		binary.BigEndian.PutUint32(out[off:off+4], s.Seeders)
		binary.BigEndian.PutUint32(out[off+4:off+8], s.Completed)
		binary.BigEndian.PutUint32(out[off+8:off+12], s.Leechers)
		off += 12
	}
	return out
}

// EncodeErrorResponse packs an action=3 error packet with a UTF-8 message.
func EncodeErrorResponse(transactionID uint32, message string) []byte {
	out := make([]byte, 8+len(message))
	binary.BigEndian.PutUint32(out[0:4], ActionError)
	binary.BigEndian.PutUint32(out[4:8], transactionID)
	copy(out[8:], message)
	return out
}
