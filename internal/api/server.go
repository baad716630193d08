package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecternhq/lectern/internal/rag"
	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

// QuerySystem is the part of the RAG system the API serves. *rag.System
// satisfies it.
type QuerySystem interface {
	Query(ctx context.Context, text, sessionID string) (string, []tools.Source, error)
	Analytics(ctx context.Context) (rag.CourseAnalytics, error)
	Sessions() *session.Store
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	System      QuerySystem   // Required
	Pool        *pgxpool.Pool // Optional: nil disables the DB ping in /ready
	CORSOrigins []string      // Allowed origins for CORS
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.System == nil {
		return nil, errors.New("query system is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	qh := &queryHandler{
		system:   cfg.System,
		sessions: cfg.System.Sessions(),
		logger:   logger,
	}
	ch := &coursesHandler{system: cfg.System, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/query", qh.query)
	mux.HandleFunc("POST /api/clear-session", qh.clearSession)
	mux.HandleFunc("GET /api/courses", ch.stats)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID runs before Logging so request_id is available in log
	// attributes. CORS runs before RateLimit so preflight OPTIONS gets
	// proper CORS headers even when a client is throttled.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack via a top-level mux so
	// they stay fast and never rate-limit an orchestrator.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
