package core

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type BookingKind string

const (
	BookingKindReservation BookingKind = "RESERVATION"
	BookingKindCheckout    BookingKind = "CHECKOUT"
)

func (k BookingKind) Valid() bool {
	return k == BookingKindReservation || k == BookingKindCheckout
}

// BookingStatus moves DRAFT -> BOOKED -> CANCELLED for reservations and
// OPEN -> COMPLETED | CANCELLED for checkouts.
type BookingStatus string

const (
	BookingStatusDraft     BookingStatus = "DRAFT"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusOpen      BookingStatus = "OPEN"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Blocking reports whether a booking in this status holds its allocations.
func (s BookingStatus) Blocking() bool {
	return s == BookingStatusBooked || s == BookingStatusOpen
}

type AssetStatus string

const (
	AssetStatusAvailable   AssetStatus = "AVAILABLE"
	AssetStatusMaintenance AssetStatus = "MAINTENANCE"
	AssetStatusRetired     AssetStatus = "RETIRED"
)

func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStatusAvailable, AssetStatusMaintenance, AssetStatusRetired:
		return true
	}
	return false
}

// EffectiveStatus is the derived, never-stored status of a serialized asset.
type EffectiveStatus string

const (
	EffectiveAvailable   EffectiveStatus = "AVAILABLE"
	EffectiveCheckedOut  EffectiveStatus = "CHECKED_OUT"
	EffectiveReserved    EffectiveStatus = "RESERVED"
	EffectiveMaintenance EffectiveStatus = "MAINTENANCE"
	EffectiveRetired     EffectiveStatus = "RETIRED"
)

type MovementKind string

const (
	MovementCheckout   MovementKind = "CHECKOUT"
	MovementCheckin    MovementKind = "CHECKIN"
	MovementAdjustment MovementKind = "ADJUSTMENT"
)

type ScanPhase string

const (
	ScanPhaseCheckout ScanPhase = "CHECKOUT"
	ScanPhaseCheckin  ScanPhase = "CHECKIN"
)

func (p ScanPhase) Valid() bool {
	return p == ScanPhaseCheckout || p == ScanPhaseCheckin
}

type ScanType string

const (
	ScanTypeSerialized ScanType = "SERIALIZED"
	ScanTypeBulkBin    ScanType = "BULK_BIN"
)

type ScanSessionStatus string

const (
	ScanSessionOpen      ScanSessionStatus = "OPEN"
	ScanSessionCompleted ScanSessionStatus = "COMPLETED"
	ScanSessionCancelled ScanSessionStatus = "CANCELLED"
)

// Booking is a reservation or a checkout with its requested items.
type Booking struct {
	ID                  string                  `json:"id"`
	Kind                BookingKind             `json:"kind"`
	Title               string                  `json:"title"`
	RequesterUserID     string                  `json:"requesterUserId"`
	LocationID          string                  `json:"locationId"`
	StartsAt            time.Time               `json:"startsAt"`
	EndsAt              time.Time               `json:"endsAt"`
	Status              BookingStatus           `json:"status"`
	Notes               *string                 `json:"notes,omitempty"`
	SourceReservationID *string                 `json:"sourceReservationId,omitempty"`
	CreatedBy           string                  `json:"createdBy"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
	SerializedItems     []BookingSerializedItem `json:"serializedItems"`
	BulkItems           []BookingBulkItem       `json:"bulkItems"`
}

func (b *Booking) Window() TimeRange {
	return TimeRange{Start: b.StartsAt, End: b.EndsAt}
}

// AssetIDs returns the serialized asset ids on the booking in item order.
func (b *Booking) AssetIDs() []string {
	ids := make([]string, 0, len(b.SerializedItems))
	for _, it := range b.SerializedItems {
		ids = append(ids, it.AssetID)
	}
	return ids
}

// BulkRequests returns the bulk lines as planned quantities.
func (b *Booking) BulkRequests() []BulkRequest {
	reqs := make([]BulkRequest, 0, len(b.BulkItems))
	for _, it := range b.BulkItems {
		reqs = append(reqs, BulkRequest{BulkSkuID: it.BulkSkuID, Quantity: it.PlannedQuantity})
	}
	return reqs
}

type BookingSerializedItem struct {
	ID               string `json:"id"`
	AssetID          string `json:"assetId"`
	AssetTag         string `json:"assetTag"`
	ScanCode         string `json:"scanCode"`
	AllocationStatus string `json:"allocationStatus"`
}

// BookingBulkItem tracks planned vs scanned quantities for one SKU.
// CheckedOutQuantity is nil on reservations.
type BookingBulkItem struct {
	ID                 string `json:"id"`
	BulkSkuID          string `json:"bulkSkuId"`
	SkuName            string `json:"skuName"`
	BinScanCode        string `json:"binScanCode"`
	PlannedQuantity    int    `json:"plannedQuantity"`
	CheckedOutQuantity *int   `json:"checkedOutQuantity"`
	CheckedInQuantity  *int   `json:"checkedInQuantity"`
}

// BulkRequest is a requested quantity of a bulk SKU.
type BulkRequest struct {
	BulkSkuID string `json:"bulkSkuId"`
	Quantity  int    `json:"quantity"`
}

type Asset struct {
	ID            string              `json:"id"`
	AssetTag      string              `json:"assetTag"`
	Type          string              `json:"type"`
	Brand         string              `json:"brand"`
	Model         string              `json:"model"`
	SerialNumber  string              `json:"serialNumber"`
	ScanCode      string              `json:"scanCode"`
	PurchasePrice decimal.NullDecimal `json:"purchasePrice"`
	LocationID    string              `json:"locationId"`
	Status        AssetStatus         `json:"status"`
	Notes         *string             `json:"notes,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// AssetView is an asset with its derived status.
type AssetView struct {
	Asset
	EffectiveStatus EffectiveStatus `json:"effectiveStatus"`
}

type BulkSku struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	Unit           string    `json:"unit"`
	LocationID     string    `json:"locationId"`
	BinScanCode    string    `json:"binScanCode"`
	MinThreshold   int       `json:"minThreshold"`
	Active         bool      `json:"active"`
	OnHand         int       `json:"onHand"`
	BelowThreshold bool      `json:"belowThreshold"`
	CreatedAt      time.Time `json:"createdAt"`
}

type BulkStockMovement struct {
	ID          string       `json:"id"`
	BulkSkuID   string       `json:"bulkSkuId"`
	LocationID  string       `json:"locationId"`
	BookingID   *string      `json:"bookingId,omitempty"`
	ActorUserID string       `json:"actorUserId"`
	Kind        MovementKind `json:"kind"`
	Quantity    int          `json:"quantity"`
	Delta       int          `json:"delta"`
	Reason      *string      `json:"reason,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type ScanSession struct {
	ID          string            `json:"id"`
	BookingID   string            `json:"bookingId"`
	ActorUserID string            `json:"actorUserId"`
	Phase       ScanPhase         `json:"phase"`
	Status      ScanSessionStatus `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// ScanEvent is an immutable record of one scan, successful or not.
type ScanEvent struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"bookingId"`
	ActorUserID   string    `json:"actorUserId"`
	ScanType      ScanType  `json:"scanType"`
	ScanValue     string    `json:"scanValue"`
	Phase         ScanPhase `json:"phase"`
	Success       bool      `json:"success"`
	AssetID       *string   `json:"assetId,omitempty"`
	BulkSkuID     *string   `json:"bulkSkuId,omitempty"`
	Quantity      *int      `json:"quantity,omitempty"`
	DeviceContext *string   `json:"deviceContext,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type OverrideEvent struct {
	ID          string          `json:"id"`
	BookingID   string          `json:"bookingId"`
	ActorUserID string          `json:"actorUserId"`
	Reason      string          `json:"reason"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type AuditEntry struct {
	ID          string          `json:"id"`
	ActorUserID *string         `json:"actorUserId,omitempty"`
	EntityType  string          `json:"entityType"`
	EntityID    string          `json:"entityId"`
	Action      string          `json:"action"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
