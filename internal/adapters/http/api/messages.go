package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/skillboard/internal/app"
	"github.com/okian/skillboard/internal/domain/model"
)

const maxMessageBytes = 64 << 10

// MessageDependencies accepts inbound chat messages.
type MessageDependencies interface {
	Submit(ctx context.Context, msg model.Message) (model.Submission, error)
}

// MessagesHandler handles message deliveries.
type MessagesHandler struct {
	deps MessageDependencies
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(deps MessageDependencies) *MessagesHandler {
	return &MessagesHandler{deps: deps}
}

// HandlePostMessage handles POST /messages requests.
func (h *MessagesHandler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_message"

	var msg model.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(msg.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing id")))
		return
	}

	res, err := h.deps.Submit(r.Context(), msg)
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
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

	if res.Status == model.SubmitAccepted {
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
