// Package api serves the REST control surface: feed listing and teardown,
// WHEP viewer attachment, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/cadence/internal/distribution"
	"github.com/zsiec/cadence/internal/stream"
)

// maxOfferSize caps the SDP offer body a WHEP client may post.
const maxOfferSize = 64 << 10

// shutdownTimeout bounds graceful drain on Start's context cancellation.
const shutdownTimeout = 5 * time.Second

// Server is the HTTP control API.
type Server struct {
	log     *slog.Logger
	router  *gin.Engine
	manager *stream.Manager
	viewers *distribution.Server
}

// New builds the API server and its routes.
func New(manager *stream.Manager, viewers *distribution.Server, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:     log.With("component", "api"),
		manager: manager,
		viewers: viewers,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/feeds", s.handleListFeeds)
		api.GET("/feeds/:key", s.handleGetFeed)
		api.DELETE("/feeds/:key", s.handleDeleteFeed)
		api.POST("/feeds/:key/whep", s.handleWHEP)
		api.GET("/viewers", s.handleListViewers)
		api.DELETE("/viewers/:id", s.handleKickViewer)
	}

	s.router = router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is cancelled, then drains gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func (s *Server) handleListFeeds(c *gin.Context) {
	snaps := s.manager.Snapshots()
	if snaps == nil {
		snaps = []stream.FeedSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"feeds": snaps, "total": len(snaps)})
}

func (s *Server) handleGetFeed(c *gin.Context) {
	key := c.Param("key")
	f, ok := s.manager.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}

	resp := gin.H{
		"startedAt": f.StartedAt.Format(time.RFC3339),
		"uptimeMs":  time.Since(f.StartedAt).Milliseconds(),
		"playing":   f.Controller.Playing(),
		"paused":    f.Controller.Paused(),
		"state":     f.Controller.State(),
		"viewers":   len(s.viewers.Viewers(key)),
	}
	if f.Stats != nil {
		resp["stats"] = f.Stats.Snapshot()
	}
	if f.Fanout != nil {
		resp["targets"] = f.Fanout.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteFeed(c *gin.Context) {
	key := c.Param("key")
	closed := s.viewers.CloseFeed(key)
	if !s.manager.Remove(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed", "key": key, "viewersClosed": closed})
}

// handleWHEP performs the single-POST WHEP exchange: SDP offer in, SDP
// answer out, with a Location header the client can DELETE to hang up.
func (s *Server) handleWHEP(c *gin.Context) {
	key := c.Param("key")
	f, ok := s.manager.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}
	if f.Track == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "feed is not WebRTC-playable"})
		return
	}

	offer, err := io.ReadAll(io.LimitReader(c.Request.Body, maxOfferSize))
	if err != nil || len(offer) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing SDP offer"})
		return
	}

	answer, id, err := s.viewers.Attach(key, f.Track.Track(), string(offer))
	if err != nil {
		s.log.Error("whep attach failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "negotiation failed"})
		return
	}

	c.Header("Location", fmt.Sprintf("/api/viewers/%s", id))
	c.Data(http.StatusCreated, "application/sdp", []byte(answer))
}

func (s *Server) handleListViewers(c *gin.Context) {
	infos := s.viewers.Viewers(c.Query("feed"))
	if infos == nil {
		infos = []distribution.ViewerInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"viewers": infos, "total": len(infos)})
}

func (s *Server) handleKickViewer(c *gin.Context) {
	id := c.Param("id")
	if !s.viewers.Kick(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "viewer not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed", "id": id})
}
