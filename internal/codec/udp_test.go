package codec

import (
	"net"
	"testing"
)

func TestConnectRequestRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	want := ConnectRequest{ProtocolID: ProtocolID, Action: ActionConnect, TransactionID: 0x1111}
	putUint64(buf[0:8], want.ProtocolID)
	putUint32(buf[8:12], want.Action)
	putUint32(buf[12:16], want.TransactionID)

	got, err := ParseConnectRequest(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestConnectRequestRejectsShortOrWrongMagic(t *testing.T) {
	if _, err := ParseConnectRequest(make([]byte, 8)); err != ErrMalformedPacket {
		t.Fatalf("expected malformed on short buffer")
	}
	bad := make([]byte, 16)
	putUint64(bad[0:8], 0xdeadbeef)
	if _, err := ParseConnectRequest(bad); err != ErrMalformedPacket {
		t.Fatalf("expected malformed on wrong protocol id")
	}
}

func TestScrapeRequestRejectsTooLarge(t *testing.T) {
	body := make([]byte, 16+20*(MaxScrapeTorrents+1))
	putUint32(body[12:16], 0x4242)
	r, err := ParseScrapeRequest(body)
	if err != ErrScrapeTooLarge {
		t.Fatalf("expected ErrScrapeTooLarge, got %v", err)
	}
	if r.TransactionID != 0x4242 {
		t.Fatalf("expected transaction id preserved on the too-large error path, got %#x", r.TransactionID)
	}
}

func TestScrapeRequestRoundTrip(t *testing.T) {
	n := 3
	body := make([]byte, 16+20*n)
	putUint64(body[0:8], 0xAAAABBBBCCCCDDDD)
	putUint32(body[12:16], 0x2222)
	for i := 0; i < n; i++ {
		for j := 0; j < 20; j++ {
			body[16+i*20+j] = byte(i)
		}
	}
	r, err := ParseScrapeRequest(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.InfoHashes) != n {
		t.Fatalf("expected %d infohashes, got %d", n, len(r.InfoHashes))
	}
}

func TestEncodeAnnounceResponseV4Layout(t *testing.T) {
	peers := []net.TCPAddr{{IP: net.ParseIP("203.0.113.5"), Port: 55000}}
	out := EncodeAnnounceResponseV4(0x1111, 1800, 1, 0, peers)
	if len(out) != 20+6 {
		t.Fatalf("expected 26 bytes, got %d", len(out))
	}
}

func TestEncodeAnnounceResponseTruncatesToWholeRecords(t *testing.T) {
	peers := make([]net.TCPAddr, MaxPeersReturned+10)
	for i := range peers {
		peers[i] = net.TCPAddr{IP: net.ParseIP("1.2.3.4"), Port: 1}
	}
	out := EncodeAnnounceResponseV4(1, 1, 0, 0, peers)
	if (len(out)-20)%6 != 0 {
		t.Fatalf("expected whole number of 6-byte records")
	}
	if (len(out)-20)/6 != MaxPeersReturned {
		t.Fatalf("expected truncation to %d records, got %d", MaxPeersReturned, (len(out)-20)/6)
	}
}

func TestCompactPeer4And6(t *testing.T) {
	if b := CompactPeer4(net.ParseIP("192.168.1.1"), 6881); len(b) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(b))
	}
	if b := CompactPeer6(net.ParseIP("2001:db8::1"), 6881); len(b) != 18 {
		t.Fatalf("expected 18 bytes, got %d", len(b))
	}
	if b := CompactPeer6(net.ParseIP("192.168.1.1"), 6881); b != nil {
		t.Fatalf("expected nil for v4 address passed to CompactPeer6")
	}
}

func TestDictPeers(t *testing.T) {
	ips := []net.IP{net.ParseIP("203.0.113.5"), net.ParseIP("2001:db8::1")}
	ports := []uint16{6881, 6882}
	out := DictPeers(ips, ports)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0].IP != "203.0.113.5" || out[0].Port != 6881 {
		t.Fatalf("unexpected first entry: %+v", out[0])
	}
	if out[1].IP != "2001:db8::1" || out[1].Port != 6882 {
		t.Fatalf("unexpected second entry: %+v", out[1])
	}
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putUint32(b []byte, v uint32) {
	for i := 3; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
