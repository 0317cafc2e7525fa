// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/pitwall/internal/domain/model"
)

// CollectionDependencies creates and reads collections.
type CollectionDependencies interface {
	CreateCollection(ctx context.Context, kind model.CollectionKind, name, ownerID string) (model.Collection, error)
	GetCollection(ctx context.Context, id string) (model.CollectionWithEntries, error)
}

// CollectionHandler handles collection requests.
type CollectionHandler struct {
	deps CollectionDependencies
}

// NewCollectionHandler creates a new collection handler.
func NewCollectionHandler(deps CollectionDependencies) *CollectionHandler {
	return &CollectionHandler{deps: deps}
}

// createCollectionRequest mirrors the OpenAPI schema for POST /collections.
type createCollectionRequest struct {
	Kind    model.CollectionKind `json:"kind"`
	Name    string               `json:"name"`
	OwnerID string               `json:"owner_id"`
}

// HandleCreate handles POST /collections.
func (h *CollectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_collection"
	var req createCollectionRequest
	if err := decodeBody(op, w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	c, err := h.deps.CreateCollection(r.Context(), req.Kind, req.Name, req.OwnerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /collections/{id}.
func (h *CollectionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if c.Entries == nil {
		c.Entries = []model.Entry{}
	}
	writeJSON(w, http.StatusOK, c)
}
