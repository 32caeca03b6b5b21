// Package api exposes the ranking engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/skyrank/internal/app"
	"github.com/okian/skyrank/internal/domain/model"
	"github.com/okian/skyrank/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	RankReader
	ChangeNotifier
	StatsProvider
}

// RankReader is the read side of the ranking service.
type RankReader interface {
	Leaderboards() []types.Leaderboard
	GetSlice(ctx context.Context, id string, q service.SliceQuery) (*types.Slice, error)
	GetRank(ctx context.Context, id string, q service.RankQuery) (*types.Position, error)
	GetMultipleRanks(ctx context.Context, ids []string, q service.RankQuery) (map[string]*types.Position, error)
}

// ChangeNotifier is the write side of the ranking service. It returns false
// on backpressure.
type ChangeNotifier interface {
	NotifyEntityChanged(ctx context.Context, change model.EntityChange) bool
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	entitiesHandler    *EntitiesHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxBodyBytes int64) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		entitiesHandler:    NewEntitiesHandler(deps, maxBodyBytes),
		leaderboardHandler: NewLeaderboardHandler(deps),
		rankHandler:        NewRankHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /entities", MetricsMiddleware(s.entitiesHandler.HandlePostEntity, "entities"))
	mux.HandleFunc("GET /leaderboards", MetricsMiddleware(s.leaderboardHandler.HandleListLeaderboards, "leaderboards"))
	mux.HandleFunc("GET /leaderboard/{id}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{id}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /ranks", MetricsMiddleware(s.rankHandler.HandleGetRanks, "ranks"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	resp := errorResponse{Code: code, Message: http.StatusText(status)}
	if err != nil {
		resp.Message = err.Error()
	}
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	var pe *paramError
	if errors.As(err, &pe) {
		resp.Field = pe.name
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps service error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	case errors.Is(err, context.Canceled):
		// The client is gone; the status is only recorded in metrics.
		writeError(w, statusClientClosed, "cancelled", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
