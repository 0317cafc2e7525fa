// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/pitwall/internal/domain/leaderboard"
	"github.com/okian/pitwall/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Standings(ctx context.Context, q leaderboard.Query) (model.Standings, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?car_id=&track_id=&driver_id=&recent=.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	params := r.URL.Query()
	q := leaderboard.Query{
		Scope:    model.Scope{CarID: params.Get("car_id"), TrackID: params.Get("track_id")},
		DriverID: params.Get("driver_id"),
	}
	if s := params.Get("recent"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeDomainError(w, r, model.WrapKind(op, model.ErrInvalidArgument,
				fmt.Errorf("%w: recent must be a positive integer", ErrBadRequest)))
			return
		}
		q.Recent = n
	}

	standings, err := h.deps.Standings(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}
