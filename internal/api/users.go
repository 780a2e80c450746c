package api

import (
	"database/sql"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/store"
)

// UsersHandler handles user management endpoints.
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Name == "" {
		jsonError(w, http.StatusBadRequest, "email and name required")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = model.RoleBorrower
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleSteward && req.Role != model.RoleBorrower {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	existing, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "email already in use")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Email, req.Name, string(hash), req.Role)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}. Users may fetch themselves; anyone
// else requires steward or admin.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	jsonResponse(w, http.StatusOK, user)
}
