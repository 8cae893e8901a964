package connid

import (
	"testing"
	"time"
)

func TestValidityWindow(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ip := []byte{203, 0, 113, 5}
	issuedAt := time.Unix(1_700_000_000, 0)
	id := s.Issue(ip, issuedAt)

	cases := []struct {
		offset  time.Duration
		wantErr bool
	}{
		{0, false},
		{119 * time.Second, false},
		{120 * time.Second, false},
		{239 * time.Second, false},
		{240 * time.Second, true},
		{500 * time.Second, true},
	}
	for _, c := range cases {
		err := s.Validate(id, ip, issuedAt.Add(c.offset))
		if (err != nil) != c.wantErr {
			t.Fatalf("offset=%v: got err=%v, wantErr=%v", c.offset, err, c.wantErr)
		}
	}
}

func TestValidateRejectsDifferentClientIP(t *testing.T) {
	s, _ := New()
	id := s.Issue([]byte{1, 2, 3, 4}, time.Now())
	if err := s.Validate(id, []byte{5, 6, 7, 8}, time.Now()); err == nil {
		t.Fatalf("expected validation failure for mismatched client ip")
	}
}
