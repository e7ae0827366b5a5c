package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	service "github.com/okian/skillboard/internal/app"
	"github.com/okian/skillboard/internal/domain/model"
)

// RebuildDependencies queues rebuilds and reports job status.
type RebuildDependencies interface {
	RequestRebuild(ctx context.Context, channelID string) (model.JobStatus, error)
	Job(ctx context.Context, id string) (model.JobStatus, error)
}

// RebuildHandler handles rebuild commands and job lookups.
type RebuildHandler struct {
	deps RebuildDependencies
}

// NewRebuildHandler creates a new rebuild handler.
func NewRebuildHandler(deps RebuildDependencies) *RebuildHandler {
	return &RebuildHandler{deps: deps}
}

type rebuildRequest struct {
	ChannelID string `json:"channel_id"`
}

// HandlePostRebuild handles POST /rebuild. The body is optional.
func (h *RebuildHandler) HandlePostRebuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_rebuild"

	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	st, err := h.deps.RequestRebuild(r.Context(), req.ChannelID)
	switch {
	case errors.Is(err, service.ErrRebuildInProgress):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
		return
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
		return
	case errors.Is(err, service.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/jobs/"+st.ID)
	writeJSON(w, http.StatusAccepted, st)
}

// HandleGetJob handles GET /jobs/{id}.
func (h *RebuildHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_job"

	st, err := h.deps.Job(r.Context(), r.PathValue("id"))
	if errors.Is(err, service.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
