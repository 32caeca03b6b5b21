package api

import (
	"context"
	"net/http"

	service "github.com/okian/skyrank/internal/app"
	"github.com/okian/skyrank/internal/domain/types"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	GetRank(ctx context.Context, id string, q service.RankQuery) (*types.Position, error)
	GetMultipleRanks(ctx context.Context, ids []string, q service.RankQuery) (map[string]*types.Position, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /rank/{id} requests.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	q, err := rankQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	pos, err := h.deps.GetRank(r.Context(), r.PathValue("id"), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// HandleGetRanks handles GET /ranks?ids=a,b requests. Leaderboards the
// entity is not ranked on map to null.
func (h *RankHandler) HandleGetRanks(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ranks"
	params := r.URL.Query()
	q, err := rankQuery(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ranks, err := h.deps.GetMultipleRanks(r.Context(), listParam(params, "ids"), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranks)
}
