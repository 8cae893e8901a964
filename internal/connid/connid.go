// Package connid issues and validates the 64-bit UDP connection identifiers
// required before an announce or scrape, per spec.md §4.4 (BEP 15). A
// per-process HMAC secret is generated at boot and never persisted.
package connid

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"time"
)

// BucketSeconds is the width of one connection-id timestamp bucket.
const BucketSeconds = 120

// ValidBuckets sets the validity window: a connection id is accepted for
// ValidBuckets*BucketSeconds (240) seconds after the instant it was issued.
const ValidBuckets = 2

var ErrExpired = errors.New("connid: connection_id expired")

// Service issues and validates connection ids for one tracker process.
type Service struct {
	secret []byte
}

// New generates a fresh per-process secret via crypto/rand.
func New() (*Service, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return &Service{secret: secret}, nil
}

func bucket(t time.Time) uint32 {
	return uint32(t.Unix() / BucketSeconds)
}

func (s *Service) mac(clientIP []byte, b uint32) uint32 {
	h := hmac.New(sha256.New, s.secret)
	h.Write(clientIP)
	var bb [4]byte
	binary.BigEndian.PutUint32(bb[:], b)
	h.Write(bb[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum[:4])
}

// Issue constructs a connection id for clientIP at instant now:
// MSB32(truncated timestamp seconds) || LSB32(HMAC(secret, ip || bucket)).
func (s *Service) Issue(clientIP []byte, now time.Time) uint64 {
	ts := uint32(now.Unix())
	mac := s.mac(clientIP, bucket(now))
	return uint64(ts)<<32 | uint64(mac)
}

// Validate reports whether connID was issued for clientIP no more than
// ValidBuckets*BucketSeconds seconds before now (issued at t: accepted for
// now in [t, t+240), rejected from t+240 on).
func (s *Service) Validate(connID uint64, clientIP []byte, now time.Time) error {
	issued := int64(uint32(connID >> 32))
	mac := uint32(connID)
	age := now.Unix() - issued
	if age < 0 || age >= ValidBuckets*BucketSeconds {
		return ErrExpired
	}
	if s.mac(clientIP, bucket(time.Unix(issued, 0))) != mac {
		return ErrExpired
	}
	return nil
}
