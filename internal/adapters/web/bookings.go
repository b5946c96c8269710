package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"booking-engine/internal/app"
	"booking-engine/internal/core"
)

type bulkItemBody struct {
	BulkSkuID string `json:"bulkSkuId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func toBulkRequests(items []bulkItemBody) []core.BulkRequest {
	if items == nil {
		return nil
	}
	out := make([]core.BulkRequest, len(items))
	for i, it := range items {
		out[i] = core.BulkRequest{BulkSkuID: it.BulkSkuID, Quantity: it.Quantity}
	}
	return out
}

type bookingListResponse struct {
	Bookings []core.Booking `json:"bookings"`
	Total    int            `json:"total"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

// checkAvailability handles POST /api/availability/check.
func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LocationID         string         `json:"locationId" validate:"required"`
		StartsAt           string         `json:"startsAt" validate:"required"`
		EndsAt             string         `json:"endsAt" validate:"required"`
		SerializedAssetIDs []string       `json:"serializedAssetIds" validate:"dive,required"`
		BulkItems          []bulkItemBody `json:"bulkItems" validate:"dive"`
		ExcludeBookingID   string         `json:"excludeBookingId"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	report, err := h.svc.CheckAvailability(r.Context(), app.AvailabilityRequest{
		LocationID:         body.LocationID,
		StartsAt:           body.StartsAt,
		EndsAt:             body.EndsAt,
		SerializedAssetIDs: body.SerializedAssetIDs,
		BulkItems:          toBulkRequests(body.BulkItems),
		ExcludeBookingID:   body.ExcludeBookingID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, report)
}

type createBookingBody struct {
	Title               string         `json:"title" validate:"required,max=200"`
	RequesterUserID     string         `json:"requesterUserId"`
	LocationID          string         `json:"locationId" validate:"required"`
	StartsAt            string         `json:"startsAt" validate:"required"`
	EndsAt              string         `json:"endsAt" validate:"required"`
	SerializedAssetIDs  []string       `json:"serializedAssetIds" validate:"dive,required"`
	BulkItems           []bulkItemBody `json:"bulkItems" validate:"dive"`
	Notes               *string        `json:"notes" validate:"omitempty,max=2000"`
	SourceReservationID *string        `json:"sourceReservationId"`
}

func (b createBookingBody) request() app.CreateBookingRequest {
	return app.CreateBookingRequest{
		Title:               b.Title,
		RequesterUserID:     b.RequesterUserID,
		LocationID:          b.LocationID,
		StartsAt:            b.StartsAt,
		EndsAt:              b.EndsAt,
		SerializedAssetIDs:  b.SerializedAssetIDs,
		BulkItems:           toBulkRequests(b.BulkItems),
		Notes:               b.Notes,
		SourceReservationID: b.SourceReservationID,
	}
}

// createReservation handles POST /api/reservations.
func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	var body createBookingBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	booking, err := h.svc.CreateReservation(r.Context(), actorFrom(r), body.request())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, booking)
}

// createCheckout handles POST /api/checkouts. A sourceReservationId converts
// that reservation into the new checkout atomically.
func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var body createBookingBody
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	booking, err := h.svc.CreateCheckout(r.Context(), actorFrom(r), body.request())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, booking)
}

// amendReservation handles PATCH /api/reservations/{id}.
func (h *Handler) amendReservation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title              *string        `json:"title" validate:"omitempty,min=1,max=200"`
		RequesterUserID    *string        `json:"requesterUserId"`
		LocationID         *string        `json:"locationId"`
		StartsAt           *string        `json:"startsAt"`
		EndsAt             *string        `json:"endsAt"`
		Notes              *string        `json:"notes" validate:"omitempty,max=2000"`
		SerializedAssetIDs []string       `json:"serializedAssetIds" validate:"omitempty,dive,required"`
		BulkItems          []bulkItemBody `json:"bulkItems" validate:"omitempty,dive"`
		Status             *string        `json:"status" validate:"omitempty,oneof=BOOKED CANCELLED"`
	}
	if !h.decodeAndValidate(w, r, &body) {
		return
	}
	booking, err := h.svc.AmendReservation(r.Context(), actorFrom(r), chi.URLParam(r, "id"), app.AmendReservationRequest{
		Title:              body.Title,
		RequesterUserID:    body.RequesterUserID,
		LocationID:         body.LocationID,
		StartsAt:           body.StartsAt,
		EndsAt:             body.EndsAt,
		Notes:              body.Notes,
		SerializedAssetIDs: body.SerializedAssetIDs,
		BulkItems:          toBulkRequests(body.BulkItems),
		Status:             body.Status,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, booking)
}

// cancelReservation handles POST /api/reservations/{id}/cancel.
func (h *Handler) cancelReservation(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.CancelReservation(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, booking)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, booking)
}

func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.GetCheckout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, booking)
}

func listRequest(w http.ResponseWriter, r *http.Request) (app.ListBookingsRequest, bool) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err.Error(), "VALIDATION", http.StatusBadRequest)
		return app.ListBookingsRequest{}, false
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err.Error(), "VALIDATION", http.StatusBadRequest)
		return app.ListBookingsRequest{}, false
	}
	q := r.URL.Query()
	return app.ListBookingsRequest{
		Status:     q.Get("status"),
		LocationID: q.Get("locationId"),
		Limit:      limit,
		Offset:     offset,
	}, true
}

func writeBookingList(w http.ResponseWriter, result *app.BookingListResult) {
	writeJSON(w, bookingListResponse{
		Bookings: result.Bookings,
		Total:    result.Total,
		Limit:    result.Limit,
		Offset:   result.Offset,
	})
}

// listReservations handles GET /api/reservations?status=&locationId=&limit=&offset=.
func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	req, ok := listRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ListReservations(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeBookingList(w, result)
}

// listCheckouts handles GET /api/checkouts?status=&locationId=&limit=&offset=.
func (h *Handler) listCheckouts(w http.ResponseWriter, r *http.Request) {
	req, ok := listRequest(w, r)
	if !ok {
		return
	}
	result, err := h.svc.ListCheckouts(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeBookingList(w, result)
}
