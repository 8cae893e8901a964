package main

import (
	"net"
	"net/http"
	"testing"

	"github.com/digicore404/gotrack/internal/codec"
)

func TestParse20(t *testing.T) {
	t.Run("valid hex", func(t *testing.T) {
		hexHash := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
		b, ok := parse20(hexHash)
		if !ok || len(b) != 20 {
			t.Fatalf("expected 20 raw bytes, got %d ok=%v", len(b), ok)
		}
	})

	t.Run("raw url-escaped bytes", func(t *testing.T) {
		raw := "%01%02%03%04%05%06%07%08%09%0a%0b%0c%0d%0e%0f%10%11%12%13%14"
		b, ok := parse20(raw)
		if !ok || len(b) != 20 {
			t.Fatalf("expected 20 raw bytes, got %d ok=%v", len(b), ok)
		}
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		if _, ok := parse20("abcd"); ok {
			t.Error("expected short input to be rejected")
		}
	})

	t.Run("empty rejected", func(t *testing.T) {
		if _, ok := parse20(""); ok {
			t.Error("expected empty input to be rejected")
		}
	})
}

func TestClampNumwant(t *testing.T) {
	cfg := &Config{PeersReturnedDefault: 50, PeersReturnedMax: 74}

	if got := clampNumwant("", cfg); got != 50 {
		t.Errorf("expected default 50, got %d", got)
	}
	if got := clampNumwant("10", cfg); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
	if got := clampNumwant("1000", cfg); got != 74 {
		t.Errorf("expected clamp to max 74, got %d", got)
	}
	if got := clampNumwant("not-a-number", cfg); got != 50 {
		t.Errorf("expected fallback to default on parse error, got %d", got)
	}
}

func TestCodecPeerEncodersForHTTPAnnounce(t *testing.T) {
	port := uint16(6881)
	b := codec.CompactPeer4(net.ParseIP("10.0.0.1"), port)
	if len(b) != 6 {
		t.Fatalf("expected 6 bytes for v4 peer, got %d", len(b))
	}
	if b[4] != byte(port>>8) || b[5] != byte(port) {
		t.Errorf("unexpected port encoding: %v", b[4:6])
	}

	b6 := codec.CompactPeer6(net.ParseIP("::1"), 1)
	if len(b6) != 18 {
		t.Fatalf("expected 18 bytes for v6 peer, got %d", len(b6))
	}

	dicts := codec.DictPeers([]net.IP{net.ParseIP("10.0.0.1")}, []uint16{6881})
	if len(dicts) != 1 || dicts[0].IP != "10.0.0.1" || dicts[0].Port != 6881 {
		t.Fatalf("unexpected dict peer encoding: %+v", dicts)
	}
}

func TestClientIPTrustsOnlyConfiguredProxies(t *testing.T) {
	req, _ := http.NewRequest("GET", "/announce", nil)
	req.RemoteAddr = "203.0.113.5:4444"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")

	untrusted := clientIP(req, nil)
	if untrusted.String() != "203.0.113.5" {
		t.Errorf("expected direct peer address when no proxy is trusted, got %s", untrusted)
	}

	trusted := clientIP(req, []string{"203.0.113.5"})
	if trusted.String() != "198.51.100.9" {
		t.Errorf("expected left-most XFF entry from a trusted proxy, got %s", trusted)
	}
}

func TestAnnounceErrorMessageDefaultsUnknown(t *testing.T) {
	if got := announceErrorMessage(nil); got != "tracker error" {
		t.Errorf("expected generic fallback message, got %q", got)
	}
}
