package app

import (
	"github.com/shopspring/decimal"

	"booking-engine/internal/core"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   core.Role
}

// AvailabilityRequest is the input for a read-only availability check.
// Timestamps are ISO-8601 with zone offset.
type AvailabilityRequest struct {
	LocationID         string
	StartsAt           string
	EndsAt             string
	SerializedAssetIDs []string
	BulkItems          []core.BulkRequest
	ExcludeBookingID   string
}

// CreateBookingRequest is the input for creating a reservation or checkout.
// An empty RequesterUserID defaults to the actor.
type CreateBookingRequest struct {
	Title               string
	RequesterUserID     string
	LocationID          string
	StartsAt            string
	EndsAt              string
	SerializedAssetIDs  []string
	BulkItems           []core.BulkRequest
	Notes               *string
	SourceReservationID *string // checkouts only
}

// AmendReservationRequest is a partial update; nil fields are left unchanged.
type AmendReservationRequest struct {
	Title              *string
	RequesterUserID    *string
	LocationID         *string
	StartsAt           *string
	EndsAt             *string
	Notes              *string
	SerializedAssetIDs []string
	BulkItems          []core.BulkRequest
	Status             *string // BOOKED or CANCELLED
}

// ListBookingsRequest filters a bookings listing.
type ListBookingsRequest struct {
	Status     string
	LocationID string
	Limit      int
	Offset     int
}

// RecordScanRequest is one scan. Phase is implied by the endpoint; when the
// client also sends it, it must agree.
type RecordScanRequest struct {
	Phase         string
	ScanType      string
	ScanValue     string
	Quantity      *int
	DeviceContext *string
}

// OverrideRequest is the input for an admin override.
type OverrideRequest struct {
	Reason  string
	Details map[string]any
}

// RegisterAssetRequest is the input for adding a serialized asset.
type RegisterAssetRequest struct {
	AssetTag      string
	Type          string
	Brand         string
	Model         string
	SerialNumber  string
	ScanCode      string
	PurchasePrice *decimal.Decimal
	LocationID    string
	Status        string
	Notes         *string
}

// CreateBulkSkuRequest is the input for adding a bulk SKU.
type CreateBulkSkuRequest struct {
	Name            string
	Category        string
	Unit            string
	LocationID      string
	BinScanCode     string
	MinThreshold    int
	InitialQuantity int
}

// AdjustStockRequest is a signed manual stock correction.
type AdjustStockRequest struct {
	Delta  int
	Reason string
}
