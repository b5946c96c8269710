package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const bookingColumns = `id, kind, title, requester_user_id, location_id, starts_at, ends_at,
	status, notes, source_reservation_id, created_by, created_at, updated_at`

func scanBooking(row pgx.Row, b *Booking) error {
	return row.Scan(&b.ID, &b.Kind, &b.Title, &b.RequesterUserID, &b.LocationID, &b.StartsAt, &b.EndsAt,
		&b.Status, &b.Notes, &b.SourceReservationID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
}

// loadBooking fetches a booking with its items. forUpdate row-locks the
// booking for the rest of the transaction. A missing booking returns (nil, nil).
func loadBooking(ctx context.Context, q pgxQuerier, id string, forUpdate bool) (*Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var b Booking
	if err := scanBooking(q.QueryRow(ctx, sql, id), &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load booking %s: %w", id, err)
	}
	if err := loadBookingItems(ctx, q, []*Booking{&b}); err != nil {
		return nil, err
	}
	return &b, nil
}

// loadBookingItems fills SerializedItems and BulkItems for every booking with
// one query per item table.
func loadBookingItems(ctx context.Context, q pgxQuerier, bookings []*Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[string]*Booking, len(bookings))
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		b.SerializedItems = []BookingSerializedItem{}
		b.BulkItems = []BookingBulkItem{}
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT i.booking_id, i.id, i.asset_id, a.asset_tag, a.scan_code, i.allocation_status
		FROM booking_serialized_items i
		JOIN assets a ON a.id = i.asset_id
		WHERE i.booking_id = ANY($1)
		ORDER BY i.booking_id, a.asset_tag
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query serialized items: %w", err)
	}
	for rows.Next() {
		var bookingID string
		var it BookingSerializedItem
		if err := rows.Scan(&bookingID, &it.ID, &it.AssetID, &it.AssetTag, &it.ScanCode, &it.AllocationStatus); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan serialized item: %w", err)
		}
		b := byID[bookingID]
		b.SerializedItems = append(b.SerializedItems, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read serialized items: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT i.booking_id, i.id, i.bulk_sku_id, s.name, s.bin_scan_code,
		       i.planned_quantity, i.checked_out_quantity, i.checked_in_quantity
		FROM booking_bulk_items i
		JOIN bulk_skus s ON s.id = i.bulk_sku_id
		WHERE i.booking_id = ANY($1)
		ORDER BY i.booking_id, s.name
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query bulk items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bookingID string
		var it BookingBulkItem
		if err := rows.Scan(&bookingID, &it.ID, &it.BulkSkuID, &it.SkuName, &it.BinScanCode,
			&it.PlannedQuantity, &it.CheckedOutQuantity, &it.CheckedInQuantity); err != nil {
			return fmt.Errorf("failed to scan bulk item: %w", err)
		}
		b := byID[bookingID]
		b.BulkItems = append(b.BulkItems, it)
	}
	return rows.Err()
}

// insertBookingItemsTx writes item rows and, for every serialized asset, an
// active allocation over the booking window. Checkout bulk lines start with
// a checked-out quantity of zero; reservation lines leave it NULL.
func insertBookingItemsTx(ctx context.Context, tx pgx.Tx, bookingID string, kind BookingKind, window TimeRange, assetIDs []string, bulk []BulkRequest) error {
	for _, assetID := range assetIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_serialized_items (booking_id, asset_id, allocation_status)
			VALUES ($1, $2, 'active')
		`, bookingID, assetID); err != nil {
			return fmt.Errorf("failed to insert serialized item: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO asset_allocations (asset_id, booking_id, starts_at, ends_at, kind, active)
			VALUES ($1, $2, $3, $4, $5, true)
		`, assetID, bookingID, window.Start, window.End, kind); err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}

	var checkedOut *int
	if kind == BookingKindCheckout {
		zero := 0
		checkedOut = &zero
	}
	for _, it := range bulk {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_bulk_items (booking_id, bulk_sku_id, planned_quantity, checked_out_quantity)
			VALUES ($1, $2, $3, $4)
		`, bookingID, it.BulkSkuID, it.Quantity, checkedOut); err != nil {
			return fmt.Errorf("failed to insert bulk item: %w", err)
		}
	}
	return nil
}

// deleteBookingItemsTx removes all item and allocation rows of a booking.
func deleteBookingItemsTx(ctx context.Context, tx pgx.Tx, bookingID string) error {
	for _, sql := range []string{
		`DELETE FROM asset_allocations WHERE booking_id = $1`,
		`DELETE FROM booking_serialized_items WHERE booking_id = $1`,
		`DELETE FROM booking_bulk_items WHERE booking_id = $1`,
	} {
		if _, err := tx.Exec(ctx, sql, bookingID); err != nil {
			return fmt.Errorf("failed to clear booking items: %w", err)
		}
	}
	return nil
}

// releaseAllocationsTx deactivates every allocation held by a booking.
func releaseAllocationsTx(ctx context.Context, tx pgx.Tx, bookingID, itemStatus string) error {
	if _, err := tx.Exec(ctx, `UPDATE asset_allocations SET active = false WHERE booking_id = $1 AND active = true`, bookingID); err != nil {
		return fmt.Errorf("failed to release allocations: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE booking_serialized_items SET allocation_status = $2 WHERE booking_id = $1`, bookingID, itemStatus); err != nil {
		return fmt.Errorf("failed to update serialized items: %w", err)
	}
	return nil
}

// bookingSnapshot is the audited view of a booking.
type bookingSnapshot struct {
	Kind                BookingKind   `json:"kind"`
	Title               string        `json:"title"`
	Status              BookingStatus `json:"status"`
	RequesterUserID     string        `json:"requesterUserId"`
	LocationID          string        `json:"locationId"`
	Window              TimeRange     `json:"window"`
	Notes               *string       `json:"notes,omitempty"`
	SerializedAssetIDs  []string      `json:"serializedAssetIds"`
	BulkItems           []BulkRequest `json:"bulkItems"`
	SourceReservationID *string       `json:"sourceReservationId,omitempty"`
}

func snapshotOf(b *Booking) bookingSnapshot {
	return bookingSnapshot{
		Kind:                b.Kind,
		Title:               b.Title,
		Status:              b.Status,
		RequesterUserID:     b.RequesterUserID,
		LocationID:          b.LocationID,
		Window:              b.Window(),
		Notes:               b.Notes,
		SerializedAssetIDs:  b.AssetIDs(),
		BulkItems:           b.BulkRequests(),
		SourceReservationID: b.SourceReservationID,
	}
}
