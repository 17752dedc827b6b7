package api

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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Timeouts bound the phases of an HTTP connection.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

// DefaultTimeouts returns the timeouts used unless WithTimeouts is given.
// Write stays above RequestTimeout so handlers can report their own timeout.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReadHeader: 10 * time.Second,
		Read:       30 * time.Second,
		Write:      RequestTimeout + 15*time.Second,
		Idle:       2 * time.Minute,
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTimeouts replaces the connection timeouts.
func WithTimeouts(t Timeouts) ServerOption {
	return func(s *Server) { s.timeouts = t }
}

// Server owns the listener and the base middleware shared by every route:
// request ids, client address and panic recovery. Per-route timeouts are
// applied by the routers because the MCP endpoint streams.
type Server struct {
	router   chi.Router
	logger   *slog.Logger
	addr     string
	timeouts Timeouts

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// NewServer creates a Server that will listen on addr.
func NewServer(addr string, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	s := &Server{
		router:   router,
		logger:   logger,
		addr:     addr,
		timeouts: DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the root router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Listen binds the address without serving. It lets callers learn the port
// chosen for ":0" before Serve blocks.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.timeouts.ReadHeader,
		ReadTimeout:       s.timeouts.Read,
		WriteTimeout:      s.timeouts.Write,
		IdleTimeout:       s.timeouts.Idle,
	}
	return nil
}

// Serve listens if needed and serves until Shutdown. A clean shutdown
// returns nil.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	srv, ln := s.http, s.listener
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires. It is a no-op before Listen.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.http, s.listener
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	err := srv.Shutdown(ctx)
	// Serve closes the listener itself; this covers Listen without Serve.
	if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

// Addr returns the bound address once listening, and the configured one
// before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
