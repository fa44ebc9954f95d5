// Package server implements the HTTP transports for hikyaku: MCP over
// streamable HTTP at /mcp, the legacy SSE transport at /sse + /message, and
// a health probe.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hikyaku/internal/auth"
	"github.com/ashita-ai/hikyaku/internal/model"
	"github.com/ashita-ai/hikyaku/internal/ratelimit"
)

// HealthChecker reports on the delivery log backing the server.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Backend() string
}

// Server is the hikyaku HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	sse        *mcpserver.SSEServer
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Verifier, Limiter, Health.
type ServerConfig struct {
	// Required dependencies.
	MCPServer *mcpserver.MCPServer
	Logger    *slog.Logger

	// Optional dependencies (nil = disabled).
	Verifier *auth.Verifier
	Limiter  ratelimit.Limiter
	Health   HealthChecker

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	BaseURL             string
	MaxRequestBodyBytes int64

	// Middlewares wrap the whole chain; the first entry is outermost.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	streamable := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
	// The SSE server owns httpServer so its Shutdown can close open streams
	// before draining connections.
	sse := mcpserver.NewSSEServer(cfg.MCPServer,
		mcpserver.WithBaseURL(cfg.BaseURL),
		mcpserver.WithHTTPServer(httpServer),
	)

	mux := http.NewServeMux()

	// MCP transports (auth required when a verifier is configured).
	mux.Handle("/mcp", streamable)
	mux.Handle("GET /sse", longLived(sse.SSEHandler()))
	mux.Handle("POST /message", sse.MessageHandler())

	// Health (no auth, no rate limit).
	mux.Handle("GET /health", healthHandler(cfg.Health, cfg.Version, time.Now()))

	rateLimit := ratelimit.Middleware(cfg.Limiter, healthExempt(ratelimit.CallerKeyFunc), cfg.Logger)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → rate limit → body limit → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = bodyLimitMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = rateLimit(handler)
	handler = authMiddleware(cfg.Verifier, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	httpServer.Handler = handler

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		sse:        sse,
		logger:     cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return ignoreClosed(s.httpServer.ListenAndServe())
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", "addr", ln.Addr().String())
	return ignoreClosed(s.httpServer.Serve(ln))
}

// Shutdown closes open SSE sessions and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.sse.Shutdown(ctx)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// longLived lifts the server's write timeout for streams that stay open for
// the life of an MCP session.
func longLived(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		next.ServeHTTP(w, r)
	})
}

// healthExempt wraps a key func so /health is never rate limited.
func healthExempt(keyFunc ratelimit.KeyFunc) ratelimit.KeyFunc {
	return func(r *http.Request) string {
		if r.URL.Path == "/health" {
			return ""
		}
		return keyFunc(r)
	}
}

// healthHandler handles GET /health.
func healthHandler(hc HealthChecker, version string, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := model.HealthResponse{
			Status:      "healthy",
			Version:     version,
			DeliveryLog: "disabled",
			Uptime:      int64(time.Since(started).Seconds()),
		}
		status := http.StatusOK
		if hc != nil {
			resp.DeliveryLog = hc.Backend()
			if err := hc.Ping(r.Context()); err != nil {
				resp.Status = "unhealthy"
				resp.DeliveryLog += " (unreachable)"
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, r, status, resp)
	}
}
