package app

import "booking-engine/internal/core"

// BookingListResult is returned by ListReservations and ListCheckouts.
type BookingListResult struct {
	Bookings []core.Booking
	Total    int
	Limit    int
	Offset   int
}

// ScanSessionResult is returned by StartScanSession.
type ScanSessionResult struct {
	Session *core.ScanSession
	Created bool
}

// AssetStatusesResult is returned by GetAssetStatuses.
type AssetStatusesResult struct {
	Statuses map[string]core.EffectiveStatus
}

// BulkSkuListResult is returned by ListBulkSkus.
type BulkSkuListResult struct {
	Skus []core.BulkSku
}

// MovementListResult is returned by ListStockMovements.
type MovementListResult struct {
	Movements []core.BulkStockMovement
}

// AuditResult is returned by ListAudit.
type AuditResult struct {
	Entries []core.AuditEntry
}
