package http

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FlorentDgrs/Dvoting/internal/app"
	"github.com/FlorentDgrs/Dvoting/internal/config"
	"github.com/FlorentDgrs/Dvoting/internal/transport/ws"
)

// RequestIDHeader carries the request id set by the middleware
const RequestIDHeader = "X-Request-ID"

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	handler http.Handler
	ledger  *app.Ledger
	config  *config.Config
	logger  *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, ledger *app.Ledger, logger *slog.Logger) *Server {
	s := &Server{
		ledger: ledger,
		config: cfg,
		logger: logger,
	}

	// Set up routes
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = s.middleware(mux)

	s.server = &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Queries
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/election", s.handleGetElection)
	mux.HandleFunc("GET /api/voters", s.handleListVoters)
	mux.HandleFunc("GET /api/voters/{index}", s.handleGetVoterAt)
	mux.HandleFunc("GET /api/voters/address/{address}", s.handleGetVoterByAddress)
	mux.HandleFunc("GET /api/proposals", s.handleListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", s.handleGetProposal)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)

	// Mutations
	mux.HandleFunc("POST /api/voters", s.handleRegisterVoter)
	mux.HandleFunc("POST /api/proposals", s.handleAddProposal)
	mux.HandleFunc("POST /api/votes", s.handleCastVote)
	mux.HandleFunc("POST /api/workflow/{action}", s.handleWorkflow)
	mux.HandleFunc("POST /api/reset", s.handleReset)

	// WebSocket
	wsHandler := ws.NewHandler(s.ledger, s.logger)
	mux.Handle("GET /ws", wsHandler)
}

// middleware wraps the handler with logging and other middleware
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		// Add CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+CallerHeader)

		// Handle preflight
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// Polling is noisy, only log it in development
		if s.config.IsDevelopment() || !isPollingRequest(r.URL.Path) {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"requestId", requestID,
			)
		}
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// isPollingRequest checks if the request is a read of the notification log
func isPollingRequest(path string) bool {
	return strings.HasPrefix(path, "/api/notifications") || path == "/api/election"
}
