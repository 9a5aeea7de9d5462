package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Route mounts handlers on the engine
type Route func(r gin.IRouter)

// HTTPServer serves the local API, MCP and (in webhook mode) the event callback
type HTTPServer struct {
	addr   string
	engine *gin.Engine
	logger *slog.Logger
}

// NewHTTPServer creates the gin engine and mounts routes
func NewHTTPServer(addr string, logger *slog.Logger, routes ...Route) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	for _, route := range routes {
		route(engine)
	}
	return &HTTPServer{addr: addr, engine: engine, logger: logger}
}

// Handler exposes the engine, mostly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// WebhookRoute mounts the event callback
func WebhookRoute(path string, h *WebhookHandler) Route {
	return func(r gin.IRouter) {
		r.POST(path, h.Handle)
	}
}

// MountRoute mounts a plain http.Handler under path for every method
func MountRoute(path string, h http.Handler) Route {
	return func(r gin.IRouter) {
		r.Any(path, gin.WrapH(h))
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request", attrs...)
			return
		}
		logger.Debug("request", attrs...)
	}
}
