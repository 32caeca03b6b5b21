package api

import (
	"context"
	"net/http"

	service "github.com/okian/skyrank/internal/app"
	"github.com/okian/skyrank/internal/domain/types"
)

// defaultLimit is the page size when limit is not given.
const defaultLimit = 20

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboards() []types.Leaderboard
	GetSlice(ctx context.Context, id string, q service.SliceQuery) (*types.Slice, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleListLeaderboards handles GET /leaderboards requests.
func (h *LeaderboardHandler) HandleListLeaderboards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Leaderboards())
}

// HandleGetLeaderboard handles GET /leaderboard/{id} requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q, err := sliceQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	slice, err := h.deps.GetSlice(r.Context(), r.PathValue("id"), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slice)
}
