// Package httpapi is the REST side of the server: client error and metric
// reports, an optional pass-through proxy, health and Prometheus endpoints.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/agrolink/agrolink/internal/logging"
	"github.com/agrolink/agrolink/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

// maxReportBody caps client report payloads.
const maxReportBody = 64 << 10

type Server struct {
	address string
	logger  logging.Logger
	metrics *metrics.Metrics
	engine  *gin.Engine
}

// NewServer builds the router. The proxy route is registered only when
// upstream is non-empty.
func NewServer(address string, l logging.Logger, m *metrics.Metrics, upstream string) (*Server, error) {
	s := &Server{
		address: address,
		logger:  l.With("module", "http_server"),
		metrics: m,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	api.POST("/errors", s.reportError)
	api.POST("/metrics", s.reportMetric)

	if upstream != "" {
		p, err := newUpstreamProxy(upstream, s.logger)
		if err != nil {
			return nil, err
		}
		api.Any("/proxy/*path", gin.WrapH(p))
	}

	s.engine = r
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
