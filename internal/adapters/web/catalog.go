package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"booking-engine/internal/app"
	"booking-engine/internal/core"
)

// registerAsset handles POST /api/assets.
func (h *Handler) registerAsset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetTag      string           `json:"assetTag" validate:"required,max=100"`
		Type          string           `json:"type" validate:"required"`
		Brand         string           `json:"brand" validate:"required"`
		Model         string           `json:"model" validate:"required"`
		SerialNumber  string           `json:"serialNumber" validate:"required"`
		ScanCode      string           `json:"scanCode" validate:"required"`
		PurchasePrice *decimal.Decimal `json:"purchasePrice"`
		LocationID    string           `json:"locationId" validate:"required"`
		Status        string           `json:"status" validate:"omitempty,oneof=AVAILABLE MAINTENANCE RETIRED"`
		Notes         *string          `json:"notes" validate:"omitempty,max=2000"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	asset, err := h.svc.RegisterAsset(r.Context(), actorFrom(r), app.RegisterAssetRequest{
		AssetTag:      body.AssetTag,
		Type:          body.Type,
		Brand:         body.Brand,
		Model:         body.Model,
		SerialNumber:  body.SerialNumber,
		ScanCode:      body.ScanCode,
		PurchasePrice: body.PurchasePrice,
		LocationID:    body.LocationID,
		Status:        body.Status,
		Notes:         body.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, asset)
}

func (h *Handler) getAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := h.svc.GetAsset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, asset)
}

// setAssetStatus handles PATCH /api/assets/{id}/status.
func (h *Handler) setAssetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status" validate:"required,oneof=AVAILABLE MAINTENANCE RETIRED"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	asset, err := h.svc.SetAssetStatus(r.Context(), actorFrom(r), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, asset)
}

// assetStatuses handles POST /api/assets/statuses. Unknown ids are omitted
// from the result map.
func (h *Handler) assetStatuses(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssetIDs []string `json:"assetIds" validate:"required,max=500,dive,required"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	result, err := h.svc.GetAssetStatuses(r.Context(), body.AssetIDs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, struct {
		Statuses map[string]core.EffectiveStatus `json:"statuses"`
	}{result.Statuses})
}

// createBulkSku handles POST /api/bulk-skus.
func (h *Handler) createBulkSku(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name" validate:"required,max=200"`
		Category        string `json:"category" validate:"required"`
		Unit            string `json:"unit"`
		LocationID      string `json:"locationId" validate:"required"`
		BinScanCode     string `json:"binScanCode" validate:"required"`
		MinThreshold    int    `json:"minThreshold" validate:"gte=0"`
		InitialQuantity int    `json:"initialQuantity" validate:"gte=0"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	sku, err := h.svc.CreateBulkSku(r.Context(), actorFrom(r), app.CreateBulkSkuRequest{
		Name:            body.Name,
		Category:        body.Category,
		Unit:            body.Unit,
		LocationID:      body.LocationID,
		BinScanCode:     body.BinScanCode,
		MinThreshold:    body.MinThreshold,
		InitialQuantity: body.InitialQuantity,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, sku)
}

// listBulkSkus handles GET /api/bulk-skus?locationId=.
func (h *Handler) listBulkSkus(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListBulkSkus(r.Context(), r.URL.Query().Get("locationId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, struct {
		Skus []core.BulkSku `json:"skus"`
	}{result.Skus})
}

// adjustBulkStock handles POST /api/bulk-skus/{id}/adjust.
func (h *Handler) adjustBulkStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QuantityDelta int    `json:"quantityDelta" validate:"required"`
		Reason        string `json:"reason" validate:"required,min=3,max=500"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	change, err := h.svc.AdjustBulkStock(r.Context(), actorFrom(r), chi.URLParam(r, "id"), app.AdjustStockRequest{
		Delta:  body.QuantityDelta,
		Reason: body.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, change)
}

// listMovements handles GET /api/bulk-skus/{id}/movements?limit=.
func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err.Error(), "VALIDATION", http.StatusBadRequest)
		return
	}
	result, err := h.svc.ListStockMovements(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, struct {
		Movements []core.BulkStockMovement `json:"movements"`
	}{result.Movements})
}

// listAudit handles GET /api/audit/{entityType}/{entityId}.
func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListAudit(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, struct {
		Entries []core.AuditEntry `json:"entries"`
	}{result.Entries})
}

// integrity handles GET /api/integrity. Admin only.
func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	if actorFrom(r).Role != core.RoleAdmin {
		writeError(w, r, "Only admins can run the integrity scan", string(core.KindForbidden), http.StatusForbidden)
		return
	}
	report, err := h.svc.RunIntegrityScan(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}
