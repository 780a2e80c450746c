package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/flokr/lendhub/internal/ledger"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/reservation"
	"github.com/flokr/lendhub/internal/store"
)

// ReservationsHandler handles the reservation lifecycle endpoints.
type ReservationsHandler struct {
	DB      *sql.DB
	Service *reservation.Service
}

type createReservationRequest struct {
	ItemID             int64  `json:"item_id"`
	Quantity           int    `json:"quantity"`
	PickupDate         string `json:"pickup_date"`
	ExpectedReturnDate string `json:"expected_return_date"`
}

type approveExtensionRequest struct {
	NewReturnDate string `json:"new_return_date"`
}

// reservationError maps service errors to HTTP status codes.
func reservationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, reservation.ErrRestricted):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reservation.ErrInvalidTransition):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		jsonError(w, http.StatusBadRequest, err.Error())
	}
}

// Create handles POST /api/reservations.
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pickup, err := model.ParseDate(req.PickupDate)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid pickup_date, expected YYYY-MM-DD")
		return
	}
	expectedReturn, err := model.ParseDate(req.ExpectedReturnDate)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid expected_return_date, expected YYYY-MM-DD")
		return
	}

	claims := GetClaims(r.Context())
	res, err := h.Service.Create(r.Context(), claims.UserID, req.ItemID, req.Quantity, pickup, expectedReturn)
	if err != nil {
		reservationError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// List handles GET /api/reservations. Borrowers see only their own;
// stewards and admins may filter by user_id, hub_id, and status.
func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var userID, hubID int64
	if v := r.URL.Query().Get("user_id"); v != "" {
		var err error
		userID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
	}
	if v := r.URL.Query().Get("hub_id"); v != "" {
		var err error
		hubID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid hub_id")
			return
		}
	}

	if !model.RoleAtLeast(claims.Role, model.RoleSteward) {
		userID = claims.UserID
	}

	reservations, err := store.ListReservations(r.Context(), h.DB, userID, hubID, r.URL.Query().Get("status"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list reservations")
		return
	}
	if reservations == nil {
		reservations = []model.Reservation{}
	}
	jsonResponse(w, http.StatusOK, reservations)
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	res, err := store.GetReservation(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get reservation")
		return
	}
	if res == nil {
		jsonError(w, http.StatusNotFound, "reservation not found")
		return
	}

	claims := GetClaims(r.Context())
	if res.UserID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleSteward) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Pickup handles POST /api/reservations/{id}/pickup.
func (h *ReservationsHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	claims := GetClaims(r.Context())
	res, err := h.Service.Pickup(r.Context(), id, claims.UserID, claims.Role)
	if err != nil {
		reservationError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Return handles POST /api/reservations/{id}/return.
func (h *ReservationsHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	claims := GetClaims(r.Context())
	res, err := h.Service.Return(r.Context(), id, claims.UserID, claims.Role)
	if err != nil {
		reservationError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	claims := GetClaims(r.Context())
	res, err := h.Service.Cancel(r.Context(), id, claims.UserID, claims.Role)
	if err != nil {
		reservationError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// RequestExtension handles POST /api/reservations/{id}/extension.
func (h *ReservationsHandler) RequestExtension(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	claims := GetClaims(r.Context())
	res, err := h.Service.RequestExtension(r.Context(), id, claims.UserID)
	if err != nil {
		reservationError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// ApproveExtension handles POST /api/reservations/{id}/extension/approve.
func (h *ReservationsHandler) ApproveExtension(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	var req approveExtensionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newDate, err := model.ParseDate(req.NewReturnDate)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid new_return_date, expected YYYY-MM-DD")
		return
	}

	res, err := h.Service.ApproveExtension(r.Context(), id, newDate)
	if err != nil {
		reservationError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
