package api

import (
	"errors"
	"net/http"

	"github.com/flokr/lendhub/internal/scheduler"
)

// JobsHandler exposes manual runs of the background jobs.
type JobsHandler struct {
	Runner *scheduler.Runner
}

// List handles GET /api/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{"jobs": h.Runner.Names()})
}

// Run handles POST /api/jobs/{name}/run.
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	summary, err := h.Runner.RunByName(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		jsonError(w, http.StatusNotFound, "unknown job")
		return
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		jsonError(w, http.StatusConflict, "job already running")
		return
	case err != nil:
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}
