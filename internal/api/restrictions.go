package api

import (
	"net/http"

	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/restriction"
)

// RestrictionsHandler exposes the borrowing restriction state.
type RestrictionsHandler struct {
	Service *restriction.Service
}

type liftRestrictionRequest struct {
	Reason string `json:"reason"`
}

// Status handles GET /api/users/{id}/restriction. Users may check
// themselves; anyone else requires steward or admin.
func (h *RestrictionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID != id && !model.RoleAtLeast(claims.Role, model.RoleSteward) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	status, err := h.Service.GetStatus(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

// Lift handles POST /api/users/{id}/restriction/lift.
func (h *RestrictionsHandler) Lift(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req liftRestrictionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		jsonError(w, http.StatusBadRequest, "reason required")
		return
	}

	claims := GetClaims(r.Context())
	lifted, err := h.Service.LiftRestriction(r.Context(), id, claims.Name, req.Reason)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to lift restriction")
		return
	}
	if !lifted {
		jsonError(w, http.StatusConflict, "user is not restricted")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "restriction lifted"})
}
