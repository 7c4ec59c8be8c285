package webserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/logging"
)

// Config configures the HTTP API.
type Config struct {
	ListenAddr         string
	AllowedOrigins     []string
	RateLimitPerMinute int
	TLSCertFile        string
	TLSKeyFile         string
}

// Server is the inbound HTTP API.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	limiter *RateLimiter
	logger  *zap.Logger
	http    *http.Server
}

// New builds the gin engine and routes.
func New(cfg Config, svc Service, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("webserver")
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 30
	}
	g := gin.New()
	g.Use(requestLogger(logger), gin.Recovery())
	limiter := NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	attachRoutes(g, cfg, svc, limiter)
	return &Server{cfg: cfg, engine: g, limiter: limiter, logger: logger}
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	useTLS := s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != ""
	if useTLS {
		reloader, err := NewTLSReloader(s.cfg.TLSCertFile, s.cfg.TLSKeyFile, s.logger)
		if err != nil {
			return err
		}
		s.http.TLSConfig = reloader.GetConfig()
		go reloader.Watch(watchCtx, 5*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", s.cfg.ListenAddr), zap.Bool("tls", useTLS))
		var err error
		if useTLS {
			err = s.http.ListenAndServeTLS("", "")
		} else {
			err = s.http.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		s.limiter.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.http.Shutdown(shutdownCtx)
	<-errCh
	s.limiter.Close()
	return err
}

// Close releases background resources when Run was never called.
func (s *Server) Close() {
	s.limiter.Close()
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}
