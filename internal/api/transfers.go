package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/flokr/lendhub/internal/ledger"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/store"
	"github.com/flokr/lendhub/internal/transfer"
)

// TransfersHandler handles inter-hub transfer endpoints.
type TransfersHandler struct {
	DB      *sql.DB
	Service *transfer.Service
}

type initiateTransferRequest struct {
	ItemID    int64  `json:"item_id"`
	FromHubID int64  `json:"from_hub_id"`
	ToHubID   int64  `json:"to_hub_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type completeTransferRequest struct {
	Notes string `json:"notes"`
}

type cancelTransferRequest struct {
	Reason string `json:"reason"`
}

func transferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, transfer.ErrInvalidTransition):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		jsonError(w, http.StatusBadRequest, err.Error())
	}
}

// Initiate handles POST /api/transfers.
func (h *TransfersHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Initiate(r.Context(), req.ItemID, req.FromHubID, req.ToHubID,
		req.Quantity, claims.UserID, req.Reason)
	if err != nil {
		transferError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, t)
}

// List handles GET /api/transfers. Filterable by hub_id and status.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	var hubID int64
	if v := r.URL.Query().Get("hub_id"); v != "" {
		var err error
		hubID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid hub_id")
			return
		}
	}

	transfers, err := store.ListTransfers(r.Context(), h.DB, hubID, r.URL.Query().Get("status"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	t, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}
	if t == nil {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Approve handles POST /api/transfers/{id}/approve.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Approve(r.Context(), id, claims.UserID)
	if err != nil {
		transferError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Complete handles POST /api/transfers/{id}/complete.
func (h *TransfersHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	var req completeTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Complete(r.Context(), id, claims.UserID, req.Notes)
	if err != nil {
		transferError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Cancel handles POST /api/transfers/{id}/cancel.
func (h *TransfersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	var req cancelTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := GetClaims(r.Context())
	t, err := h.Service.Cancel(r.Context(), id, claims.UserID, req.Reason)
	if err != nil {
		transferError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, t)
}
