// Package server exposes the detection engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rushi053/stackradar"
	"github.com/rushi053/stackradar/internal/fetch"
)

// Fetcher retrieves a page for a scan
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// Server serves the scan API
type Server struct {
	radar   *stackradar.StackRadar
	fetcher Fetcher
	logger  *logrus.Logger
	router  *gin.Engine
}

// New creates a server and registers its routes
func New(radar *stackradar.StackRadar, fetcher Fetcher, logger *logrus.Logger) *Server {
	s := &Server{
		radar:   radar,
		fetcher: fetcher,
		logger:  logger,
	}

	router := gin.New()
	router.Use(requestID(), accessLog(logger), recovery(logger))
	router.POST("/api/scan", s.scan)
	router.GET("/api/scan", s.scanQuery)
	router.GET("/healthz", s.health)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	s.router = router
	return s
}

// Handler returns the http.Handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is canceled, then shuts down gracefully
// waiting at most shutdownTimeout for in-flight scans.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
