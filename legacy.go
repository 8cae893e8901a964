package main

import "github.com/gin-gonic/gin"

// registerTrackerRoutes wires both the plain BEP 3 routes and the
// key-in-path convention spec.md §6 names (`GET /announce[/{KEY}]`,
// `GET /scrape[/{KEY}]`), adapting the teacher's legacy.go regex-based
// passkey path rewriting to gin's native path parameters.
func registerTrackerRoutes(r *gin.Engine, h *TrackerHandlers) {
	tracker := r.Group("/")
	tracker.Use(corsTracker())

	tracker.GET("/announce", h.AnnounceHandler)
	tracker.GET("/announce/:key", h.AnnounceHandler)
	tracker.GET("/scrape", h.ScrapeHandler)
	tracker.GET("/scrape/:key", h.ScrapeHandler)
}

// corsTracker sets Access-Control-Allow-Origin: * on tracker endpoints
// only, per spec.md §4.7 — not applied to the admin API group.
func corsTracker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	}
}
