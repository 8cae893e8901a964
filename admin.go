package main

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/digicore404/gotrack/internal/metrics"
	"github.com/digicore404/gotrack/internal/overlay"
	"github.com/digicore404/gotrack/internal/persist"
	"github.com/digicore404/gotrack/internal/store"
)

// AdminHandlers implements the JSON management API named in spec.md §6,
// generalizing the teacher's X-Admin-Key-gated admin.go handlers to the
// spec's bearer-token query-param auth and whitelist/blacklist/keys
// endpoint set.
type AdminHandlers struct {
	Store     *store.Store
	Whitelist *overlay.Set
	Blacklist *overlay.Set
	Keys      *overlay.Keys
	Users     *overlay.Users
	Pipeline  *persist.Pipeline
	Counters  *metrics.Counters
	Config    *Config
	Live      *liveConfig // hot-reloaded admin token, nil if config watching is disabled
}

func statusOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func statusFail(c *gin.Context, code int, reason string) {
	c.JSON(code, gin.H{"status": reason})
}

// requireAdmin guards every /api route with the bearer `token` query
// parameter, generalizing the teacher's requireAdmin (admin.go) which only
// checked an X-Admin-Key header / `key` query fallback.
func (h *AdminHandlers) requireAdmin(c *gin.Context) bool {
	want := h.Config.AdminToken
	if h.Live != nil {
		want = h.Live.AdminToken()
	}
	if want == "" {
		statusFail(c, http.StatusForbidden, "admin disabled")
		return false
	}
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}
	if token != want {
		statusFail(c, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func parseInfoHashParam(s string) (store.InfoHash, bool) {
	var ih store.InfoHash
	if len(s) != 40 || !isHex(s) {
		return ih, false
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 20 {
		return ih, false
	}
	copy(ih[:], b)
	return ih, true
}

// GET /api/stats
func (h *AdminHandlers) StatsHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	snap := h.Counters.Snapshot()
	c.JSON(http.StatusOK, snap)
}

// GET /metrics — Prometheus text exposition. Served without the admin token.
func (h *AdminHandlers) MetricsHandler(c *gin.Context) {
	var buf bytes.Buffer
	_ = metrics.WritePrometheus(&buf, h.Counters.Snapshot())
	c.Data(http.StatusOK, "text/plain; version=0.0.4", buf.Bytes())
}

// GET /api/torrent/:hash
func (h *AdminHandlers) GetTorrentHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ih, ok := parseInfoHashParam(c.Param("hash"))
	if !ok {
		statusFail(c, http.StatusBadRequest, "invalid infohash")
		return
	}
	entry, ok := h.Store.Get(ih)
	if !ok {
		statusFail(c, http.StatusNotFound, "not found")
		return
	}
	seeders, leechers := entry.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"infohash":  c.Param("hash"),
		"seeders":   seeders,
		"leechers":  leechers,
		"completed": entry.Completed,
	})
}

// DELETE /api/torrent/:hash
func (h *AdminHandlers) DeleteTorrentHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ih, ok := parseInfoHashParam(c.Param("hash"))
	if !ok {
		statusFail(c, http.StatusBadRequest, "invalid infohash")
		return
	}
	h.Store.DeleteTorrent(ih)
	if h.Pipeline != nil {
		h.Pipeline.Torrents.MarkDeleted(ih)
	}
	statusOK(c)
}

// GET /api/whitelist
func (h *AdminHandlers) ListWhitelistHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.listSet(c, h.Whitelist)
}

// GET /api/blacklist
func (h *AdminHandlers) ListBlacklistHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.listSet(c, h.Blacklist)
}

func (h *AdminHandlers) listSet(c *gin.Context, s *overlay.Set) {
	snap := s.Snapshot()
	out := make([]string, 0, len(snap))
	for _, entry := range snap {
		out = append(out, hex.EncodeToString(entry[:]))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "entries": out})
}

// POST /api/whitelist/:hash
func (h *AdminHandlers) AddWhitelistHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.insertSet(c, h.Whitelist, persist.CollectionWhitelist)
}

// DELETE /api/whitelist/:hash
func (h *AdminHandlers) RemoveWhitelistHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.removeSet(c, h.Whitelist, persist.CollectionWhitelist)
}

// POST /api/blacklist/:hash
func (h *AdminHandlers) AddBlacklistHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.insertSet(c, h.Blacklist, persist.CollectionBlacklist)
}

// DELETE /api/blacklist/:hash
func (h *AdminHandlers) RemoveBlacklistHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.removeSet(c, h.Blacklist, persist.CollectionBlacklist)
}

func (h *AdminHandlers) insertSet(c *gin.Context, s *overlay.Set, collection persist.Collection) {
	ih, ok := parseInfoHashParam(c.Param("hash"))
	if !ok {
		statusFail(c, http.StatusBadRequest, "invalid infohash")
		return
	}
	s.Insert(overlay.Hash256(ih))
	if h.Pipeline != nil {
		dirtySetFor(h.Pipeline, collection).MarkAdded(overlay.Hash256(ih))
	}
	statusOK(c)
}

func (h *AdminHandlers) removeSet(c *gin.Context, s *overlay.Set, collection persist.Collection) {
	ih, ok := parseInfoHashParam(c.Param("hash"))
	if !ok {
		statusFail(c, http.StatusBadRequest, "invalid infohash")
		return
	}
	s.Remove(overlay.Hash256(ih))
	if h.Pipeline != nil {
		dirtySetFor(h.Pipeline, collection).MarkDeleted(overlay.Hash256(ih))
	}
	statusOK(c)
}

func dirtySetFor(p *persist.Pipeline, c persist.Collection) *persist.DirtySet[overlay.Hash256] {
	switch c {
	case persist.CollectionWhitelist:
		return p.WhitelistSet
	case persist.CollectionBlacklist:
		return p.BlacklistSet
	default:
		return p.KeysSet
	}
}

// GET /api/keys
func (h *AdminHandlers) ListKeysHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	statusOK(c)
}

// POST /api/keys/:hash/:timeout — timeout is seconds-from-now, 0 = permanent.
func (h *AdminHandlers) AddKeyHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ih, ok := parseInfoHashParam(c.Param("hash"))
	if !ok {
		statusFail(c, http.StatusBadRequest, "invalid key")
		return
	}
	var expiry int64
	if ts := c.Param("timeout"); ts != "" {
		secs, err := strconv.Atoi(ts)
		if err != nil || secs < 0 {
			statusFail(c, http.StatusBadRequest, "invalid timeout")
			return
		}
		if secs > 0 {
			expiry = time.Now().Add(time.Duration(secs) * time.Second).Unix()
		}
	}
	h.Keys.Insert(overlay.Hash256(ih), expiry)
	if h.Pipeline != nil {
		h.Pipeline.KeysSet.MarkAdded(overlay.Hash256(ih))
	}
	statusOK(c)
}

// DELETE /api/keys/:hash
func (h *AdminHandlers) RemoveKeyHandler(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	ih, ok := parseInfoHashParam(c.Param("hash"))
	if !ok {
		statusFail(c, http.StatusBadRequest, "invalid key")
		return
	}
	h.Keys.Remove(overlay.Hash256(ih))
	if h.Pipeline != nil {
		h.Pipeline.KeysSet.MarkDeleted(overlay.Hash256(ih))
	}
	statusOK(c)
}

func registerAdminRoutes(r *gin.Engine, h *AdminHandlers) {
	api := r.Group("/api")
	api.GET("/stats", h.StatsHandler)
	api.GET("/torrent/:hash", h.GetTorrentHandler)
	api.DELETE("/torrent/:hash", h.DeleteTorrentHandler)

	api.GET("/whitelist", h.ListWhitelistHandler)
	api.POST("/whitelist/:hash", h.AddWhitelistHandler)
	api.DELETE("/whitelist/:hash", h.RemoveWhitelistHandler)

	api.GET("/blacklist", h.ListBlacklistHandler)
	api.POST("/blacklist/:hash", h.AddBlacklistHandler)
	api.DELETE("/blacklist/:hash", h.RemoveBlacklistHandler)

	api.GET("/keys", h.ListKeysHandler)
	api.POST("/keys/:hash/:timeout", h.AddKeyHandler)
	api.DELETE("/keys/:hash", h.RemoveKeyHandler)

	r.GET("/metrics", h.MetricsHandler)
}
