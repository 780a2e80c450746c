package api

import (
	"database/sql"
	"net/http"

	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/store"
)

// HubsHandler handles hub management endpoints.
type HubsHandler struct {
	DB *sql.DB
}

type createHubRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type addStewardRequest struct {
	UserID int64 `json:"user_id"`
}

// List handles GET /api/hubs.
func (h *HubsHandler) List(w http.ResponseWriter, r *http.Request) {
	hubs, err := store.ListHubs(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list hubs")
		return
	}
	if hubs == nil {
		hubs = []model.Hub{}
	}
	jsonResponse(w, http.StatusOK, hubs)
}

// Get handles GET /api/hubs/{id}.
func (h *HubsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid hub id")
		return
	}

	hub, err := store.GetHub(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get hub")
		return
	}
	if hub == nil {
		jsonError(w, http.StatusNotFound, "hub not found")
		return
	}
	jsonResponse(w, http.StatusOK, hub)
}

// Create handles POST /api/hubs.
func (h *HubsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createHubRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	hub, err := store.CreateHub(r.Context(), h.DB, req.Name, req.Address)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create hub")
		return
	}
	jsonResponse(w, http.StatusCreated, hub)
}

// AddSteward handles POST /api/hubs/{id}/stewards.
func (h *HubsHandler) AddSteward(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid hub id")
		return
	}

	var req addStewardRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, req.UserID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if !model.RoleAtLeast(user.Role, model.RoleSteward) {
		jsonError(w, http.StatusBadRequest, "user is not a steward")
		return
	}

	if err := store.AddSteward(r.Context(), h.DB, id, req.UserID); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to add steward")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "steward added"})
}
