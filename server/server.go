// Package server provides the kilobridge HTTP server. It can be embedded
// in other binaries; cmd/kilobridge is the default host.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/fsindex"
	"github.com/kilobridge/kilobridge/internal/logging"
	"github.com/kilobridge/kilobridge/internal/metrics"
	"github.com/kilobridge/kilobridge/internal/orchestrator"
	"github.com/kilobridge/kilobridge/internal/plan"
	"github.com/kilobridge/kilobridge/internal/sse"
)

// Responder answers chat requests and runs plans.
type Responder interface {
	Respond(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
	RespondStream(ctx context.Context, req orchestrator.Request, emit sse.Emitter)
	ExecutePlan(ctx context.Context, req orchestrator.PlanRequest, emit sse.Emitter)
}

// Planner turns a conversation into plan steps.
type Planner interface {
	Plan(ctx context.Context, messages []chat.Message) (plan.Result, error)
}

// FileTool serves the read-only filesystem endpoints.
type FileTool interface {
	Index(ctx context.Context, path string, maxDepth int) (*fsindex.Index, error)
	ReadSnippet(path string, startLine, maxLines int) (*fsindex.Snippet, error)
	Search(ctx context.Context, query, path string, extensions []string) (*fsindex.SearchResult, error)
}

// Config holds configuration for a Server.
type Config struct {
	Addr string // TCP listen address
	// AllowExecute enables POST /execute.
	AllowExecute bool
	// ShutdownTimeout bounds draining of in-flight requests (default 10s).
	ShutdownTimeout time.Duration

	Responder Responder
	Planner   Planner
	Files     FileTool // nil disables /tools/fs
}

// Server is a reusable kilobridge server instance.
type Server struct {
	cfg        Config
	server     *http.Server
	shutdownCh chan struct{}
}

// New creates a Server and wires all routes. Call Serve to start listening.
func New(cfg Config) (*Server, error) {
	if cfg.Responder == nil {
		return nil, errors.New("server: responder is required")
	}
	if cfg.Planner == nil {
		return nil, errors.New("server: planner is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:        cfg,
		shutdownCh: make(chan struct{}),
	}

	gzip, err := gzhttp.NewWrapper(gzhttp.MinSize(512))
	if err != nil {
		return nil, fmt.Errorf("gzip wrapper: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.Handle("POST /plan", gzip(http.HandlerFunc(s.handlePlan)))

	if cfg.Files != nil {
		mux.Handle("GET /tools/fs/index", gzip(http.HandlerFunc(s.handleFSIndex)))
		mux.Handle("GET /tools/fs/read", gzip(http.HandlerFunc(s.handleFSRead)))
		mux.Handle("GET /tools/fs/search", gzip(http.HandlerFunc(s.handleFSSearch)))
	}

	// WebSocket alternative to /chat/stream for clients without SSE.
	mux.Handle("GET /ws/chat", s.wsChatHandler())

	mux.Handle("GET /metrics", promhttp.Handler())

	handler := corsMiddleware(logging.HTTPMiddleware(metrics.HTTPMiddleware(mux)))
	h2cHandler := h2c.NewHandler(handler, &http2.Server{
		MaxConcurrentStreams: 250,
	})

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2cHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Serve listens on the configured address. It blocks until ctx is
// cancelled, then performs graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("server shutting down...")

		// 1. Reject new WebSocket sessions.
		close(s.shutdownCh)

		// 2. Drain in-flight requests. Streaming requests end when their
		// agent or provider stream ends.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown incomplete, closing connections", "error", err)
			_ = s.server.Close()
		}
	}()

	slog.Info("server listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	<-shutdownDone
	return nil
}

// corsMiddleware allows browser clients from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
