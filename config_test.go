package main

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	cases := map[string]int{
		"ConsoleLogInterval":      cfg.ConsoleLogInterval,
		"PersistenceInterval":     cfg.PersistenceInterval,
		"KeysCleanupIntervalSec":  cfg.KeysCleanupIntervalSec,
		"AnnounceIntervalSec":     cfg.AnnounceIntervalSec,
		"AnnounceIntervalMinSec":  cfg.AnnounceIntervalMinSec,
		"PeersCleanupIntervalSec": cfg.PeersCleanupIntervalSec,
		"PeerTimeoutSec":          cfg.PeerTimeoutSec,
		"PeersReturnedDefault":    cfg.PeersReturnedDefault,
		"PeersReturnedMax":        cfg.PeersReturnedMax,
		"PeersCleanupThreads":     cfg.PeersCleanupThreads,
	}
	for name, got := range cases {
		if got == 0 {
			t.Errorf("expected %s to get a non-zero default, got 0", name)
		}
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.HTTPBind != ":6881" {
		t.Errorf("expected default http bind :6881, got %q", cfg.HTTPBind)
	}
}

func TestApplyDefaultsDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &Config{PeersReturnedDefault: 10, LogLevel: "debug"}
	applyDefaults(cfg)

	if cfg.PeersReturnedDefault != 10 {
		t.Errorf("expected explicit PeersReturnedDefault to survive, got %d", cfg.PeersReturnedDefault)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected explicit LogLevel to survive, got %q", cfg.LogLevel)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	os.Setenv("GOTRACK_ADMIN_TOKEN", "s3cr3t")
	os.Setenv("GOTRACK_FEATURE_KEYS", "true")
	defer os.Unsetenv("GOTRACK_ADMIN_TOKEN")
	defer os.Unsetenv("GOTRACK_FEATURE_KEYS")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	if cfg.AdminToken != "s3cr3t" {
		t.Errorf("expected admin token override, got %q", cfg.AdminToken)
	}
	if !cfg.FeatureKeys {
		t.Error("expected feature_keys override to enable keys")
	}
}

func TestAnnounceIntervalHelpers(t *testing.T) {
	cfg := &Config{AnnounceIntervalSec: 1800, AnnounceIntervalMinSec: 900}
	if got := cfg.announceInterval().Seconds(); got != 1800 {
		t.Errorf("expected 1800s, got %v", got)
	}
	if got := cfg.announceIntervalMin().Seconds(); got != 900 {
		t.Errorf("expected 900s, got %v", got)
	}
}
