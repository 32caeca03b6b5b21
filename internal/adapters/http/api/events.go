package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/okian/skyrank/internal/domain/model"
)

// defaultMaxBodyBytes bounds a POST /entities body.
const defaultMaxBodyBytes = 1 << 20

// EntitiesHandler accepts entity change notifications.
type EntitiesHandler struct {
	deps     ChangeNotifier
	maxBytes int64
}

// NewEntitiesHandler creates a new entities handler. maxBytes <= 0 uses the
// default body limit.
func NewEntitiesHandler(deps ChangeNotifier, maxBytes int64) *EntitiesHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return &EntitiesHandler{deps: deps, maxBytes: maxBytes}
}

type ackResponse struct {
	Status   string `json:"status"`
	ChangeID string `json:"changeId,omitempty"`
}

// HandlePostEntity handles POST /entities requests. The change is queued and
// applied asynchronously.
func (h *EntitiesHandler) HandlePostEntity(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_entity"
	var change model.EntityChange
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&change); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := change.Snapshot.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if change.ChangeID == "" {
		change.ChangeID = uuid.NewString()
	}
	if ok := h.deps.NotifyEntityChanged(r.Context(), change); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ChangeID: change.ChangeID})
}
