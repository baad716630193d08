package api

import (
	"log/slog"
	"net/http"
)

// coursesHandler serves course catalog statistics.
type coursesHandler struct {
	system QuerySystem
	logger *slog.Logger
}

// stats reports how many courses are indexed and their titles.
func (h *coursesHandler) stats(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.system.Analytics(r.Context())
	if err != nil {
		h.logger.Error("course analytics failed",
			"error", err,
			"request_id", requestIDFromContext(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "analytics_failed", err.Error(), h.logger)
		return
	}

	if analytics.CourseTitles == nil {
		analytics.CourseTitles = []string{}
	}
	writeJSON(w, http.StatusOK, analytics)
}
