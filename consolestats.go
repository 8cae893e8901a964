package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/digicore404/gotrack/internal/metrics"
)

// startConsoleStats runs the console-stats emitter (C9): every
// log_console_interval, snapshots the statistics counters and emits a
// single structured log line, generalizing the teacher's scattered
// "[STARTUP]"/"[PURGE]" log.Printf call sites (main.go, janitor.go) into
// one periodic summary on zerolog.
func startConsoleStats(ctx context.Context, counters *metrics.Counters, cfg *Config, log zerolog.Logger) {
	if !cfg.StatisticsEnable || cfg.ConsoleLogInterval <= 0 {
		return
	}
	interval := time.Duration(cfg.ConsoleLogInterval) * time.Second

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s := counters.Snapshot()
				log.Info().
					Int("torrents", s.Torrents).
					Int("seeders", s.Seeders).
					Int("leechers", s.Leechers).
					Uint64("announces_udp4", s.UDP4Announces).
					Uint64("announces_udp6", s.UDP6Announces).
					Uint64("announces_tcp4", s.TCP4Announces).
					Uint64("announces_tcp6", s.TCP6Announces).
					Uint64("scrapes", s.TCP4Scrapes+s.TCP6Scrapes+s.UDP4Scrapes+s.UDP6Scrapes).
					Uint64("completed", s.Completed).
					Int("whitelist_size", s.WhitelistSize).
					Int("blacklist_size", s.BlacklistSize).
					Int("keys_size", s.KeysSize).
					Int("users_size", s.UsersSize).
					Msg("tracker stats")
			}
		}
	}()
}
