package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flokr/lendhub/internal/imaging"
	"github.com/flokr/lendhub/internal/ledger"
	"github.com/flokr/lendhub/internal/model"
	"github.com/flokr/lendhub/internal/notify"
	"github.com/flokr/lendhub/internal/store"
)

// ItemsHandler handles item catalog, incident reporting, and photos.
type ItemsHandler struct {
	DB       *sql.DB
	Notifier notify.Notifier
}

type createItemRequest struct {
	HubID       int64  `json:"hub_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Quantity    int    `json:"quantity"`
}

type unflagRequest struct {
	Notes string `json:"notes"`
}

// List handles GET /api/items. Filterable by hub_id and status.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	var hubID int64
	if v := r.URL.Query().Get("hub_id"); v != "" {
		var err error
		hubID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid hub_id")
			return
		}
	}

	items, err := store.ListItems(r.Context(), h.DB, hubID, r.URL.Query().Get("status"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// ListFlagged handles GET /api/items/flagged.
func (h *ItemsHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	var hubID int64
	if v := r.URL.Query().Get("hub_id"); v != "" {
		var err error
		hubID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid hub_id")
			return
		}
	}

	items, err := store.ListFlaggedItems(r.Context(), h.DB, hubID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list flagged items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Quantity < 0 {
		jsonError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	hub, err := store.GetHub(r.Context(), h.DB, req.HubID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hub == nil {
		jsonError(w, http.StatusBadRequest, "hub not found")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, req.HubID, req.Name, req.Description, req.Category, req.Quantity)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// ReportIncident handles POST /api/items/{id}/incidents. Any
// authenticated user can report; at the threshold the item is flagged
// and marked damaged, and the hub stewards are alerted.
func (h *ItemsHandler) ReportIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer tx.Rollback()

	count, err := ledger.RecordIncident(r.Context(), tx, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to record incident")
		return
	}

	flagged := false
	if count >= ledger.FlagThreshold && !item.IsFlagged {
		if err := ledger.Flag(r.Context(), tx, id, time.Now()); err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to flag item")
			return
		}
		flagged = true
	}

	if err := tx.Commit(); err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if flagged {
		h.alertStewardsFlagged(r, item, count)
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"incident_report_count": count,
		"is_flagged":            flagged || item.IsFlagged,
	})
}

func (h *ItemsHandler) alertStewardsFlagged(r *http.Request, item *model.Item, count int) {
	stewards, err := store.ListStewardIDs(r.Context(), h.DB, item.HubID)
	if err != nil {
		slog.Error("listing stewards for flag alert", "hub", item.HubID, "error", err)
		return
	}
	for _, stewardID := range stewards {
		h.Notifier.Notify(r.Context(), stewardID, notify.Notification{
			Kind:  notify.KindItemFlagged,
			Title: "Item flagged for inspection",
			Message: fmt.Sprintf("'%s' has received %d incident reports and was marked damaged.",
				item.Name, count),
			Data: notify.ItemFlagData{
				ItemID:        item.ID,
				ItemName:      item.Name,
				IncidentCount: count,
			},
		})
	}
}

// Unflag handles POST /api/items/{id}/unflag. Resolution notes are
// required; the flag is cleared and a damaged item is reactivated.
func (h *ItemsHandler) Unflag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req unflagRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Notes == "" {
		jsonError(w, http.StatusBadRequest, "resolution notes required")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if !item.IsFlagged {
		jsonError(w, http.StatusConflict, "item is not flagged")
		return
	}

	tx, err := h.DB.BeginTx(r.Context(), nil)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer tx.Rollback()

	if err := ledger.Unflag(r.Context(), tx, id); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to unflag item")
		return
	}

	if err := tx.Commit(); err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item flag resolved", "item", id, "by", claims.Name, "notes", req.Notes)

	updated, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	photo, err := imaging.Process(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image for item")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
