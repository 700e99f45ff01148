// Package server exposes a running batch to observers over HTTP and
// WebSocket: live task logs, lifecycle updates, task metadata and the
// MCP control surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/server/middleware"
)

const defaultShutdownTimeout = 10 * time.Second

// Options configures a Server. The zero value serves every route without
// authentication and without the MCP endpoint.
type Options struct {
	// Validator guards POST /stop and /mcp. Nil disables the check.
	Validator middleware.TokenValidator
	// MCP is mounted at /mcp when non-nil.
	MCP http.Handler
	// Metrics is mounted at GET /metrics when non-nil.
	Metrics http.Handler
	// RequestsPerMinute and Burst rate-limit the guarded routes per client.
	RequestsPerMinute int
	Burst             int
	// OriginPatterns are extra hosts allowed to open WebSocket streams
	// cross-origin.
	OriginPatterns  []string
	ShutdownTimeout time.Duration
}

// Server is the observer server of one batch.
type Server struct {
	batch   *batch.Batch
	opts    Options
	handler http.Handler

	streams sync.WaitGroup
}

// New builds the router for b.
func New(b *batch.Batch, opts Options) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{batch: b, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)
	r.Get("/view/{taskID}", s.handleView)
	r.Get("/logs/{taskID}", s.handleLogs)
	r.Get("/updates", s.handleUpdates)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.IPRateLimit(opts.RequestsPerMinute, opts.Burst))
		r.Use(middleware.BearerAuth(opts.Validator))

		r.Post("/stop/{taskID}", s.handleStop)
		if opts.MCP != nil {
			r.Handle("/mcp", opts.MCP)
		}
	})

	s.handler = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on ln until ctx is cancelled. It then stops accepting, gives
// open streams the shutdown timeout to drain, and cancels whatever is left.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelStreams := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelStreams()

	// Streams are long-lived; only header reads are bounded.
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	slog.Info("observer server started", "addr", ln.Addr().String(), "batch_id", s.batch.ID())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down observer server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		cancelStreams()
		_ = srv.Close()
	}

	drained := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-shutdownCtx.Done():
		slog.Warn("observer streams still open after shutdown timeout, closing them")
		cancelStreams()
		<-drained
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutting down: %w", shutdownErr)
	}
	return nil
}
