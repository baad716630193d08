package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lecternhq/lectern/internal/session"
	"github.com/lecternhq/lectern/internal/tools"
)

// maxRequestBody caps JSON request bodies at 1 MiB.
const maxRequestBody = 1 << 20

// queryHandler serves the question-answering and session endpoints.
type queryHandler struct {
	system   QuerySystem
	sessions *session.Store
	logger   *slog.Logger
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Answer    string         `json:"answer"`
	Sources   []tools.Source `json:"sources"`
	SessionID string         `json:"session_id"`
}

type clearSessionRequest struct {
	SessionID string `json:"session_id"`
}

type clearSessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// query answers a question, creating a session when the request carries
// none so follow-up questions can reference this one.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "query must not be empty", h.logger)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.sessions.Create()
	}

	answer, sources, err := h.system.Query(r.Context(), req.Query, sessionID)
	if err != nil {
		h.logger.Error("query handler failed",
			"error", err,
			"session_id", sessionID,
			"request_id", requestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "query_failed", err.Error(), h.logger)
		return
	}

	if sources == nil {
		sources = []tools.Source{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: sessionID,
	})
}

// clearSession forgets a session's conversation history. The id stays
// usable afterwards.
func (h *queryHandler) clearSession(w http.ResponseWriter, r *http.Request) {
	var req clearSessionRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "session_id must not be empty", h.logger)
		return
	}

	h.sessions.Clear(req.SessionID)
	writeJSON(w, http.StatusOK, clearSessionResponse{
		Success: true,
		Message: fmt.Sprintf("Session %s cleared successfully", req.SessionID),
	})
}

// decodeJSON decodes a JSON body into dst with a size cap. Writes the error
// response and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", logger)
		return false
	}
	return true
}
