package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/directory"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/session"
	"github.com/park285/chess-session-server/internal/transport"
)

type Config struct {
	Addr      string
	Transport transport.Options
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front of the session engine.
type Server struct {
	engine *session.Engine
	dir    directory.Directory
	srv    *http.Server
	router *gin.Engine
}

func New(cfg Config, engine *session.Engine, dir directory.Directory) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	s := &Server{engine: engine, dir: dir, router: r}
	s.srv = &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ws := transport.NewHandler(engine, cfg.Transport)
	r.GET("/ws", gin.WrapH(ws))
	r.GET("/healthz", s.health)
	r.GET("/rooms", s.rooms)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	obslog.L().Info("http_listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections. Hijacked websocket connections are
// not tracked by http.Server and end when the engine's peers go away.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.engine.Clients().Len(),
		"rooms":       s.engine.Rooms().Len(),
	})
}

func (s *Server) rooms(c *gin.Context) {
	if s.dir == nil {
		c.JSON(http.StatusOK, gin.H{"rooms": []directory.Listing{}})
		return
	}
	ls, err := s.dir.Lobby(c.Request.Context())
	if err != nil {
		obslog.L().Warn("lobby_failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
		return
	}
	if ls == nil {
		ls = []directory.Listing{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": ls})
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		obslog.L().Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
