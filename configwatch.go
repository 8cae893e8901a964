package main

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchConfig hot-reloads a handful of safe-to-swap fields from the config
// file whenever it changes on disk, grounded on jkaberg-distribyted's
// torrent/route_watcher.go fsnotify usage. Bind addresses, database
// settings, sweeper intervals and feature flags are fixed at boot; only the
// admin token is live.
type liveConfig struct {
	adminToken atomic.Pointer[string]
}

func newLiveConfig(cfg *Config) *liveConfig {
	lc := &liveConfig{}
	token := cfg.AdminToken
	lc.adminToken.Store(&token)
	return lc
}

func (lc *liveConfig) AdminToken() string {
	if p := lc.adminToken.Load(); p != nil {
		return *p
	}
	return ""
}

// watchConfig starts a goroutine that reloads path on every fsnotify Write
// or Create event and stores the new admin token into lc. It returns the underlying
// watcher so the supervisor can Close it on shutdown; a nil return means
// watching could not be started and the caller should proceed without it.
func watchConfig(path string, lc *liveConfig, log zerolog.Logger) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable")
		return nil
	}
	if err := w.Add(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to watch config file")
		w.Close()
		return nil
	}

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := LoadConfig(path)
				if err != nil {
					log.Warn().Err(err).Msg("config reload failed")
					continue
				}
				token := reloaded.AdminToken
				lc.adminToken.Store(&token)
				log.Info().Msg("admin token reloaded from config")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return w
}
