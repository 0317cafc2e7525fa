// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/pitwall/internal/domain/model"
)

// LapDependencies records lap times.
type LapDependencies interface {
	RecordLap(ctx context.Context, rec model.LapRecord) (model.LapRecord, error)
}

// LapHandler handles lap requests.
type LapHandler struct {
	deps LapDependencies
}

// NewLapHandler creates a new lap handler.
func NewLapHandler(deps LapDependencies) *LapHandler {
	return &LapHandler{deps: deps}
}

// lapRequest mirrors the OpenAPI schema for POST /laps.
type lapRequest struct {
	DriverID  string `json:"driver_id"`
	CarID     string `json:"car_id"`
	TrackID   string `json:"track_id"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// HandleRecord handles POST /laps.
func (h *LapHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_lap"
	var req lapRequest
	if err := decodeBody(op, w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	rec, err := h.deps.RecordLap(r.Context(), model.LapRecord{
		DriverID:  req.DriverID,
		CarID:     req.CarID,
		TrackID:   req.TrackID,
		ElapsedMS: req.ElapsedMS,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
