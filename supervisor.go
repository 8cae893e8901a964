package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/digicore404/gotrack/internal/connid"
	"github.com/digicore404/gotrack/internal/engine"
	"github.com/digicore404/gotrack/internal/metrics"
	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/persist"
	"github.com/digicore404/gotrack/internal/store"
)

// shutdownGrace bounds how long the supervisor waits for in-flight UDP/HTTP
// work to drain before forcing a final persistence flush and exiting,
// per spec.md §4.11.
const shutdownGrace = 10 * time.Second

// storeGauges adapts the live store and overlays to metrics.GaugeSource,
// the dependency internal/metrics asks its caller to supply rather than
// importing internal/store or internal/overlay itself.
type storeGauges struct {
	st *store.Store
	wl *overlay.Set
	bl *overlay.Set
	kv *overlay.Keys
	us *overlay.Users
}

func (g storeGauges) Torrents() int { t, _, _, _ := g.st.Counts(); return t }
func (g storeGauges) Seeders() int  { _, _, s, _ := g.st.Counts(); return s }
func (g storeGauges) Leechers() int { _, _, _, l := g.st.Counts(); return l }
func (g storeGauges) WhitelistSize() int {
	if g.wl == nil {
		return 0
	}
	return g.wl.Len()
}
func (g storeGauges) BlacklistSize() int {
	if g.bl == nil {
		return 0
	}
	return g.bl.Len()
}
func (g storeGauges) KeysSize() int {
	if g.kv == nil {
		return 0
	}
	return g.kv.Len()
}
func (g storeGauges) UsersSize() int {
	if g.us == nil {
		return 0
	}
	return g.us.Len()
}

// runSupervisor runs the full start order (load persisted torrents, then
// the overlays, via persist.LoadAtBoot; start workers; start front-ends), blocks until SIGINT/SIGTERM, then runs
// the shutdown order (stop front-ends, stop workers, drain in-flight work,
// final persistence flush), per spec.md §4.11 and component C11. The
// teacher's main.go inlines this in func main; it is split out here
// because the spec's front-end count (UDP binds plus HTTP) and worker
// count (sweepers, pipeline, console stats) are both larger than the
// teacher's single-listener, no-persistence shape.
func runSupervisor(cfg *Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.InsertVacant)
	wl := overlay.NewSet(cfg.FeatureWhitelist)
	bl := overlay.NewSet(cfg.FeatureBlacklist)
	keys := overlay.NewKeys(cfg.FeatureKeys)
	users := overlay.NewUsers(cfg.FeatureUsers)

	var repo persist.Repository
	var pipeline *persist.Pipeline
	if cfg.PersistenceEnable {
		var err error
		repo, err = persist.Open(cfg.DBEngine, cfg.DBDSN)
		if err != nil {
			return err
		}
		defer repo.Close()

		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = persist.LoadAtBoot(loadCtx, repo, st, wl, bl, keys, users, 1000)
		cancel()
		if err != nil {
			return err
		}
		t, _, s, l := st.Counts()
		log.Info().Int("torrents", t).Int("seeders", s).Int("leechers", l).
			Int("whitelist", wl.Len()).Int("blacklist", bl.Len()).Int("keys", keys.Len()).Int("users", users.Len()).
			Msg("warm start complete")

		interval := time.Duration(cfg.PersistenceInterval) * time.Second
		pipeline = persist.NewPipeline(repo, st, wl, bl, keys, users, interval, log)
	}

	counters := metrics.New(storeGauges{st: st, wl: wl, bl: bl, kv: keys, us: users})

	eng := &engine.Engine{
		Store:     st,
		Whitelist: wl,
		Blacklist: bl,
		Keys:      keys,
		Users:     users,
		Config: engine.Config{
			AnnounceInterval:    cfg.announceInterval(),
			AnnounceIntervalMin: cfg.announceIntervalMin(),
			DefaultNumWant:      cfg.PeersReturnedDefault,
			MaxNumWant:          cfg.PeersReturnedMax,
		},
		Counters: counters,
	}

	connSvc, err := connid.New()
	if err != nil {
		return err
	}

	live := newLiveConfig(cfg)
	var watcher interface{ Close() error }
	if cfg.WatchConfig {
		if w := watchConfig("config.yaml", live, log); w != nil {
			watcher = w
		}
	}

	trackerHandlers := &TrackerHandlers{Engine: eng, Counters: counters, Pipeline: pipeline, Config: cfg}
	adminHandlers := &AdminHandlers{
		Store: st, Whitelist: wl, Blacklist: bl, Keys: keys, Users: users,
		Pipeline: pipeline, Counters: counters, Config: cfg, Live: live,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerTrackerRoutes(router, trackerHandlers)
	registerAdminRoutes(router, adminHandlers)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPBind,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start order: workers before front-ends, so the first announce packet
	// that arrives is never serviced before its sweepers/pipeline exist.
	startPeerSweeper(ctx, st, cfg, log)
	startKeyExpirySweeper(ctx, keys, cfg, log)
	startConsoleStats(ctx, counters, cfg, log)
	if pipeline != nil {
		go pipeline.Run(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPBind).Msg("http front-end listening")
		err := httpSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	udpConns := make([]*net.UDPConn, 0, len(cfg.UDPBinds))
	for _, bind := range cfg.UDPBinds {
		network := "udp4"
		family := metrics.FamilyUDP4
		if bind.Family == "v6" {
			network = "udp6"
			family = metrics.FamilyUDP6
		}
		addr, err := net.ResolveUDPAddr(network, bind.Address)
		if err != nil {
			return err
		}
		conn, err := net.ListenUDP(network, addr)
		if err != nil {
			return err
		}
		udpConns = append(udpConns, conn)

		fe := &UDPFrontend{Engine: eng, ConnID: connSvc, Counters: counters, Pipeline: pipeline, Log: log, Workers: 64}
		bindFamily := family
		bindAddress := bind.Address
		g.Go(func() error {
			log.Info().Str("addr", bindAddress).Str("family", bindFamily).Msg("udp front-end listening")
			return fe.Serve(gctx, conn, bindFamily)
		})
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining front-ends")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	for _, conn := range udpConns {
		_ = conn.Close()
	}

	if watcher != nil {
		_ = watcher.Close()
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("front-end exited with error during shutdown")
	}

	if pipeline != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer flushCancel()
		pipeline.Flush(flushCtx)
		log.Info().Msg("final persistence flush complete")
	}

	return nil
}
