package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/digicore404/gotrack/internal/overlay"
)

// startKeyExpirySweeper runs the key-expiry sweeper (C9): every
// keys_cleanup_interval_sec, removes key entries whose expiry is non-zero
// and in the past. New worker — the teacher has no private-key overlay at
// all, so this is grounded directly on spec.md §4.9 and internal/overlay's
// Keys.SweepExpired.
func startKeyExpirySweeper(ctx context.Context, keys *overlay.Keys, cfg *Config, log zerolog.Logger) {
	if !keys.Enabled() || cfg.KeysCleanupIntervalSec <= 0 {
		return
	}
	interval := time.Duration(cfg.KeysCleanupIntervalSec) * time.Second

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := keys.SweepExpired(time.Now()); n > 0 {
					log.Debug().Int("removed", n).Msg("key expiry sweep complete")
				}
			}
		}
	}()
}
