package main

import "testing"

func TestParseInfoHashParam(t *testing.T) {
	t.Run("valid 40-char hex", func(t *testing.T) {
		ih, ok := parseInfoHashParam("a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0")
		if !ok {
			t.Fatal("expected valid infohash to parse")
		}
		if ih[0] != 0xa1 || ih[19] != 0xb0 {
			t.Errorf("unexpected decoded bytes: %x", ih)
		}
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		if _, ok := parseInfoHashParam("abcd"); ok {
			t.Error("expected short hash to be rejected")
		}
	})

	t.Run("non-hex rejected", func(t *testing.T) {
		if _, ok := parseInfoHashParam("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"); ok {
			t.Error("expected non-hex string to be rejected")
		}
	})
}
