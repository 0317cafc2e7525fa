// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/pitwall/internal/domain/model"
)

// EntryDependencies mutates the entries of a collection.
type EntryDependencies interface {
	AppendEntry(ctx context.Context, collectionID string, payload model.Payload) (model.Entry, error)
	RemoveEntry(ctx context.Context, collectionID, entryID string) error
	UpdateEntry(ctx context.Context, entryID string, fields model.Payload) (model.Entry, error)
	Reorder(ctx context.Context, collectionID string, entryIDs []string) ([]model.Entry, error)
}

// EntryHandler handles entry and ordering requests.
type EntryHandler struct {
	deps EntryDependencies
}

// NewEntryHandler creates a new entry handler.
func NewEntryHandler(deps EntryDependencies) *EntryHandler {
	return &EntryHandler{deps: deps}
}

type appendEntryRequest struct {
	Payload model.Payload `json:"payload"`
}

type updateEntryRequest struct {
	Fields model.Payload `json:"fields"`
}

type reorderRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

type reorderResponse struct {
	Entries []model.Entry `json:"entries"`
}

// HandleAppend handles POST /collections/{id}/entries.
func (h *EntryHandler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	const op = "api.append_entry"
	var req appendEntryRequest
	if err := decodeBody(op, w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.Payload == nil {
		req.Payload = model.Payload{}
	}
	e, err := h.deps.AppendEntry(r.Context(), r.PathValue("id"), req.Payload)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleRemove handles DELETE /collections/{id}/entries/{entryId}.
func (h *EntryHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RemoveEntry(r.Context(), r.PathValue("id"), r.PathValue("entryId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpdate handles PATCH /entries/{entryId}.
func (h *EntryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_entry"
	var req updateEntryRequest
	if err := decodeBody(op, w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	e, err := h.deps.UpdateEntry(r.Context(), r.PathValue("entryId"), req.Fields)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleReorder handles PUT /collections/{id}/order.
func (h *EntryHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	const op = "api.reorder"
	var req reorderRequest
	if err := decodeBody(op, w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if req.EntryIDs == nil {
		writeDomainError(w, r, model.WrapKind(op, model.ErrInvalidArgument, fmt.Errorf("%w: entry_ids", ErrMissingParam)))
		return
	}
	entries, err := h.deps.Reorder(r.Context(), r.PathValue("id"), req.EntryIDs)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reorderResponse{Entries: entries})
}
