package app

import (
	"context"

	"booking-engine/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples transport from the booking engine: it parses raw request
// values into engine inputs and never formats output.
type ApplicationService interface {
	// CheckAvailability runs the availability checker without writing.
	CheckAvailability(ctx context.Context, req AvailabilityRequest) (*core.AvailabilityReport, error)

	// CreateReservation creates a BOOKED reservation.
	CreateReservation(ctx context.Context, actor Actor, req CreateBookingRequest) (*core.Booking, error)

	// AmendReservation applies a partial update to a reservation.
	AmendReservation(ctx context.Context, actor Actor, id string, req AmendReservationRequest) (*core.Booking, error)

	// CancelReservation cancels a reservation and releases its allocations.
	CancelReservation(ctx context.Context, actor Actor, id string) (*core.Booking, error)

	// GetReservation returns a reservation; checkouts are reported as not found.
	GetReservation(ctx context.Context, id string) (*core.Booking, error)

	// ListReservations returns a page of reservations.
	ListReservations(ctx context.Context, req ListBookingsRequest) (*BookingListResult, error)

	// CreateCheckout creates an OPEN checkout, optionally converting a reservation.
	CreateCheckout(ctx context.Context, actor Actor, req CreateBookingRequest) (*core.Booking, error)

	// GetCheckout returns a checkout; reservations are reported as not found.
	GetCheckout(ctx context.Context, id string) (*core.Booking, error)

	// ListCheckouts returns a page of checkouts.
	ListCheckouts(ctx context.Context, req ListBookingsRequest) (*BookingListResult, error)

	// StartScanSession opens or reuses the scan session for a phase.
	StartScanSession(ctx context.Context, actor Actor, checkoutID, phase string) (*ScanSessionResult, error)

	// RecordScan records one scan in the given phase.
	RecordScan(ctx context.Context, actor Actor, checkoutID string, phase core.ScanPhase, req RecordScanRequest) (*core.ScanEvent, error)

	// GetScanState reports progress of a phase.
	GetScanState(ctx context.Context, checkoutID, phase string) (*core.ScanState, error)

	// CompleteCheckoutScan gates the checkout phase on scan completeness.
	CompleteCheckoutScan(ctx context.Context, actor Actor, checkoutID string) (*core.ScanCompletion, error)

	// CompleteCheckin gates the check-in phase and finalizes the checkout.
	CompleteCheckin(ctx context.Context, actor Actor, checkoutID string) (*core.ScanCompletion, error)

	// CreateAdminOverride records an admin override on a checkout.
	CreateAdminOverride(ctx context.Context, actor Actor, checkoutID string, req OverrideRequest) (*core.OverrideEvent, error)

	// RegisterAsset adds a serialized asset.
	RegisterAsset(ctx context.Context, actor Actor, req RegisterAssetRequest) (*core.Asset, error)

	// GetAsset returns an asset with its effective status.
	GetAsset(ctx context.Context, id string) (*core.AssetView, error)

	// SetAssetStatus changes an asset's stored status.
	SetAssetStatus(ctx context.Context, actor Actor, id, status string) (*core.Asset, error)

	// GetAssetStatuses evaluates effective statuses for many assets at once.
	GetAssetStatuses(ctx context.Context, ids []string) (*AssetStatusesResult, error)

	// CreateBulkSku adds a bulk SKU with an opening quantity.
	CreateBulkSku(ctx context.Context, actor Actor, req CreateBulkSkuRequest) (*core.BulkSku, error)

	// ListBulkSkus returns SKUs with balances, optionally for one location.
	ListBulkSkus(ctx context.Context, locationID string) (*BulkSkuListResult, error)

	// AdjustBulkStock applies a manual stock correction.
	AdjustBulkStock(ctx context.Context, actor Actor, skuID string, req AdjustStockRequest) (*core.BalanceChange, error)

	// ListStockMovements returns a SKU's movement history, newest first.
	ListStockMovements(ctx context.Context, skuID string, limit int) (*MovementListResult, error)

	// ListAudit returns the audit trail of one entity.
	ListAudit(ctx context.Context, entityType, entityID string) (*AuditResult, error)

	// RunIntegrityScan checks stored allocations and balances for violations.
	RunIntegrityScan(ctx context.Context) (*core.IntegrityReport, error)
}
