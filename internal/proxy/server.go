// Package proxy is the relay server. It forwards uploads to the Nexara API
// and transcripts to user webhooks on behalf of clients that cannot call
// them directly.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/petems/nexara-tray/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "nexara-proxy"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg    config.ProxyConfig
	engine *gin.Engine
	http   *resty.Client
	log    zerolog.Logger
}

func New(cfg config.ProxyConfig, log zerolog.Logger) *Server {
	switch {
	case gin.Mode() == gin.TestMode:
	case zerolog.GlobalLevel() <= zerolog.DebugLevel:
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		http:   resty.New().SetTimeout(cfg.RequestTimeout),
		log:    log.With().Str("component", "proxy").Logger(),
	}

	s.engine.Use(recovery(s.log))
	s.engine.Use(requestID())
	s.engine.Use(corsMiddleware(cfg.AllowedOrigins))
	if limit := cfg.MaxUploadBytes(); limit > 0 {
		s.engine.Use(bodySizeLimit(limit))
	}
	s.engine.Use(requestLogger(s.log))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	api.POST("/transcribe", s.transcribe)
	api.POST("/webhook", s.webhook)

	if s.cfg.StaticDir != "" {
		s.engine.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("proxy failed to bind %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles connections on ln and shuts down gracefully when ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("Proxy is live")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("proxy serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("Shutting down proxy")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("proxy shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
