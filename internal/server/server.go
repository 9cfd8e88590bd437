package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"golang.org/x/time/rate"
)

// Instance-wide request ceiling. Coordination traffic is light, a
// burst beyond this means a peer is stuck in a retry loop.
const (
	requestRateLimit = 200
	requestRateBurst = 400
)

// Server wraps the HTTP listener of one platform instance.
type Server struct {
	httpServer *http.Server
	logger     arbor.ILogger
}

// New creates the server with logging and panic recovery wrapped
// around the router.
func New(config *common.Config, handler http.Handler, logger arbor.ILogger) *Server {
	limiter := rate.NewLimiter(rate.Limit(requestRateLimit), requestRateBurst)
	wrapped := recoveryMiddleware(logger, loggingMiddleware(logger, rateLimitMiddleware(limiter, handler)))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
			Handler:      wrapped,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
