package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"booking-engine/internal/app"
	"booking-engine/internal/core"
)

// startScanSession handles POST /api/checkouts/{id}/start-scan-session.
// The body is optional; phase defaults to CHECKOUT. Returns 201 when a new
// session was opened and 200 when the open one was reused.
func (h *Handler) startScanSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phase string `json:"phase"`
	}
	if !decodeOptionalJSON(w, r, &body) {
		return
	}
	if body.Phase == "" {
		body.Phase = string(core.ScanPhaseCheckout)
	}
	result, err := h.svc.StartScanSession(r.Context(), actorFrom(r), chi.URLParam(r, "id"), body.Phase)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, result.Session)
}

type scanBody struct {
	Phase         string  `json:"phase"`
	ScanType      string  `json:"scanType" validate:"required,oneof=SERIALIZED BULK_BIN"`
	ScanValue     string  `json:"scanValue" validate:"required"`
	Quantity      *int    `json:"quantity" validate:"omitempty,gt=0"`
	DeviceContext *string `json:"deviceContext" validate:"omitempty,max=500"`
}

func (h *Handler) recordScan(w http.ResponseWriter, r *http.Request, phase core.ScanPhase) {
	var body scanBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	event, err := h.svc.RecordScan(r.Context(), actorFrom(r), chi.URLParam(r, "id"), phase, app.RecordScanRequest{
		Phase:         body.Phase,
		ScanType:      body.ScanType,
		ScanValue:     body.ScanValue,
		Quantity:      body.Quantity,
		DeviceContext: body.DeviceContext,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, event)
}

// recordCheckoutScan handles POST /api/checkouts/{id}/checkout-scan.
func (h *Handler) recordCheckoutScan(w http.ResponseWriter, r *http.Request) {
	h.recordScan(w, r, core.ScanPhaseCheckout)
}

// recordCheckinScan handles POST /api/checkouts/{id}/checkin-scan.
func (h *Handler) recordCheckinScan(w http.ResponseWriter, r *http.Request) {
	h.recordScan(w, r, core.ScanPhaseCheckin)
}

// scanState handles GET /api/checkouts/{id}/scan-state?phase=.
func (h *Handler) scanState(w http.ResponseWriter, r *http.Request) {
	phase := r.URL.Query().Get("phase")
	if phase == "" {
		phase = string(core.ScanPhaseCheckout)
	}
	state, err := h.svc.GetScanState(r.Context(), chi.URLParam(r, "id"), phase)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, state)
}

// completeCheckout handles POST /api/checkouts/{id}/complete-checkout.
// An incomplete scan returns 400 with the same body shape as success.
func (h *Handler) completeCheckout(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CompleteCheckoutScan(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// completeCheckin handles POST /api/checkouts/{id}/complete-checkin.
func (h *Handler) completeCheckin(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CompleteCheckin(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// createAdminOverride handles POST /api/checkouts/{id}/admin-override.
func (h *Handler) createAdminOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason  string         `json:"reason" validate:"required,min=5,max=1000"`
		Details map[string]any `json:"details"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	event, err := h.svc.CreateAdminOverride(r.Context(), actorFrom(r), chi.URLParam(r, "id"), app.OverrideRequest{
		Reason:  body.Reason,
		Details: body.Details,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, event)
}
