// Package api provides the local HTTP control API for a running session.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shinamon610/ShareMouse/internal/network"
	"github.com/shinamon610/ShareMouse/internal/session"
)

// Controller is the part of a session the API exposes.
type Controller interface {
	Status() session.Status
	Stop() error
}

// Server provides HTTP API for local control
type Server struct {
	ctrl  Controller
	hub   *Hub
	token string
}

// NewServer creates a new API server. hub must be registered as an observer
// of the session behind ctrl.
func NewServer(ctrl Controller, hub *Hub, token string) *Server {
	return &Server{ctrl: ctrl, hub: hub, token: token}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.handleHealth)

	authed := r.Group("/", s.authMiddleware())
	authed.GET("/api/status", s.handleStatus)
	authed.POST("/api/stop", s.handleStop)
	authed.GET("/ws", func(c *gin.Context) { s.hub.serveWS(c.Writer, c.Request) })

	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	go s.hub.Run()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if host, _, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
			if ips, err := network.LocalIPs(); err == nil {
				log.Info().Str("module", "api").Strs("ips", ips).Msg("api reachable on local addresses")
			}
		}
	}
	log.Info().Str("module", "api").Str("addr", ln.Addr().String()).Bool("auth", s.token != "").Msg("api server started")

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "api").Msg("api server forced to shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// authMiddleware checks the API token if configured. WebSocket clients that
// cannot set headers may pass ?token=.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}

		given := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if given == "" {
			given = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().Str("module", "api").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("from", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "watchers": s.hub.ClientCount()})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

// handleStop handles POST /api/stop. It returns once the session has ended.
func (s *Server) handleStop(c *gin.Context) {
	log.Info().Str("module", "api").Str("from", c.ClientIP()).Msg("stop requested")

	resp := gin.H{"status": "stopped"}
	if err := s.ctrl.Stop(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
