// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CollectionDependencies
	EntryDependencies
	LapDependencies
	LeaderboardDependencies

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	collectionHandler  *CollectionHandler
	entryHandler       *EntryHandler
	lapHandler         *LapHandler
	leaderboardHandler *LeaderboardHandler

	requestTimeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRequestTimeout bounds each business request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d >= 0 {
			s.requestTimeout = d
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(deps),
		statsHandler:       NewStatsHandler(statsProvider),
		collectionHandler:  NewCollectionHandler(deps),
		entryHandler:       NewEntryHandler(deps),
		lapHandler:         NewLapHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /collections", s.route(s.collectionHandler.HandleCreate, "collections.create"))
	mux.HandleFunc("GET /collections/{id}", s.route(s.collectionHandler.HandleGet, "collections.get"))
	mux.HandleFunc("POST /collections/{id}/entries", s.route(s.entryHandler.HandleAppend, "entries.append"))
	mux.HandleFunc("DELETE /collections/{id}/entries/{entryId}", s.route(s.entryHandler.HandleRemove, "entries.remove"))
	mux.HandleFunc("PATCH /entries/{entryId}", s.route(s.entryHandler.HandleUpdate, "entries.update"))
	mux.HandleFunc("PUT /collections/{id}/order", s.route(s.entryHandler.HandleReorder, "collections.reorder"))

	mux.HandleFunc("POST /laps", s.route(s.lapHandler.HandleRecord, "laps.record"))
	mux.HandleFunc("GET /leaderboard", s.route(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
}

func (s *Server) route(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	return MetricsMiddleware(TimeoutMiddleware(h, s.requestTimeout), endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps an error kind to its status and writes it. Server
// side failures are logged; their cause is not echoed to the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := model.KindOf(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, model.ErrTransientStore) {
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("kind", code),
			logger.Error(err))
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrTransientStore):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a single JSON document into v.
func decodeBody(op string, w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.WrapKind(op, model.ErrInvalidArgument, fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.WrapKind(op, model.ErrInvalidArgument, fmt.Errorf("%w: trailing data after JSON body", ErrBadRequest))
	}
	return nil
}
