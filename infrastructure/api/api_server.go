package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/helixml/filegraph"
	apimiddleware "github.com/helixml/filegraph/infrastructure/api/middleware"
	v1 "github.com/helixml/filegraph/infrastructure/api/v1"
	mcpinternal "github.com/helixml/filegraph/internal/mcp"
)

// RequestTimeout bounds every /api/v1 request.
const RequestTimeout = 60 * time.Second

// APIServer provides an HTTP API backed by a filegraph Client.
type APIServer struct {
	client       *filegraph.Client
	corsOrigins  []string
	version      string
	mu           sync.Mutex
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// Option configures an APIServer.
type Option func(*APIServer)

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins []string) Option {
	return func(a *APIServer) { a.corsOrigins = origins }
}

// WithVersion sets the version reported by the MCP endpoint.
func WithVersion(version string) Option {
	return func(a *APIServer) { a.version = version }
}

// NewAPIServer creates a new APIServer wired to the given Client.
// Mutating endpoints require one of the client's API keys when any are
// configured. Reads, /health and /mcp remain open.
func NewAPIServer(client *filegraph.Client, opts ...Option) *APIServer {
	a := &APIServer{
		client:  client,
		version: "dev",
		logger:  client.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	router.Use(apimiddleware.CorrelationID)
	router.Use(apimiddleware.Logging(a.logger))
	router.Use(apimiddleware.CORS(a.corsOrigins))

	router.Get("/health", a.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(RequestTimeout))
		r.Use(apimiddleware.WriteProtectAuth(c.APIKeys()))

		r.Mount("/files", v1.NewFilesRouter(c).Routes())
		r.Mount("/entities", v1.NewEntitiesRouter(c).Routes())
		r.Mount("/categories", v1.NewCategoriesRouter(c).Routes())
		r.Mount("/merges", v1.NewMergesRouter(c).Routes())
		r.Mount("/reviews", v1.NewReviewsRouter(c).Routes())
		r.Mount("/stats", v1.NewStatsRouter(c).Routes())
	})

	// MCP streams responses, so it sits outside the timeout group.
	mcpSrv := a.MCPServer()
	router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
}

// MCPServer builds the MCP tool server over the client's read operations.
func (a *APIServer) MCPServer() *mcpinternal.Server {
	c := a.client
	return mcpinternal.NewServer(mcpinternal.Deps{
		Files:    c.Files,
		Entities: c.Entities,
		Merges:   c.Merges,
		Stats:    c.Stats,
	}, a.version, a.logger)
}

func (a *APIServer) health(w http.ResponseWriter, req *http.Request) {
	if err := a.client.Ping(req.Context()); err != nil {
		apimiddleware.WriteError(w, req, apimiddleware.Unavailable("database unreachable", err), a.logger)
		return
	}
	apimiddleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ListenAndServe serves the API on addr until Shutdown.
func (a *APIServer) ListenAndServe(addr string, opts ...ServerOption) error {
	server := NewServer(addr, a.logger, opts...)
	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}
	if err := server.Listen(); err != nil {
		return err
	}

	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	return server.Serve()
}

// Addr returns the address the API is bound to, or "" before ListenAndServe
// has bound it.
func (a *APIServer) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
