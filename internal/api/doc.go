// Package api provides the JSON REST API for the course materials
// assistant.
//
// # Architecture
//
// The server uses Go 1.22+ method routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux so they remain fast and are never rate limited.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — liveness, returns {"status":"ok"}
//   - GET /ready  — readiness, pings the database when configured
//
// Query:
//   - POST /api/query — answer a question about course materials.
//     Body: {"query": "...", "session_id": "..."} (session_id optional;
//     one is created and returned when absent).
//     Response: {"answer": "...", "sources": [{"text": "...", "link": "..."}],
//     "session_id": "..."}
//
// Sessions:
//   - POST /api/clear-session — forget a session's history.
//     Body: {"session_id": "..."}
//
// Catalog:
//   - GET /api/courses — {"total_courses": N, "course_titles": [...]}
//
// # Errors
//
// Non-2xx responses carry a JSON envelope:
//
//	{"error": {"code": "validation_error", "message": "query must not be empty"}}
//
// A failed model call is not an HTTP error: the RAG system reports it
// in-band as the answer text, so /api/query returns 200 with a
// "query failed: ..." answer. 500s are reserved for infrastructure
// failures such as an unreachable database.
package api
