package codec

import (
	"encoding/binary"
	"net"
)

// CompactPeer4 encodes one IPv4 peer as the 6-byte BEP 23 record, or nil if
// ip is not a v4 address. Generalizes the teacher's CompactPeer in peers.go.
func CompactPeer4(ip net.IP, port uint16) []byte {
	v4 := ip.To4()
	if v4 == nil {
		return nil
	}
	out := make([]byte, 6)
	copy(out[:4], v4)
	binary.BigEndian.PutUint16(out[4:], port)
	return out
}

// CompactPeer6 encodes one IPv6 peer as the 18-byte BEP 7 record, or nil if
// ip is not representable as 16 bytes.
func CompactPeer6(ip net.IP, port uint16) []byte {
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return nil
	}
	out := make([]byte, 18)
	copy(out[:16], v6)
	binary.BigEndian.PutUint16(out[16:], port)
	return out
}

// PeerDict is one entry of the non-compact bencoded peer list (BEP 3),
// used when the client does not request compact=1. The tracker does not
// retain a peer's own peer_id past its announce, so the field is omitted.
type PeerDict struct {
	IP   string `bencode:"ip"`
	Port int    `bencode:"port"`
}

// DictPeers converts a list of (ip, port) pairs into PeerDict entries
// suitable for bencode marshaling under the "peers" key.
func DictPeers(ips []net.IP, ports []uint16) []PeerDict {
	n := len(ips)
	out := make([]PeerDict, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, PeerDict{IP: ips[i].String(), Port: int(ports[i])})
	}
	return out
}
