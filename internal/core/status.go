package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActiveAllocation is the slice of allocation state status derivation needs.
type ActiveAllocation struct {
	Kind          BookingKind
	BookingStatus BookingStatus
	Window        TimeRange
}

// DeriveEffectiveStatus computes an asset's effective status from its stored
// status and its active allocations at instant now.
//
// Stored MAINTENANCE and RETIRED win outright. Otherwise an OPEN checkout
// means CHECKED_OUT, and a BOOKED reservation whose window contains now means
// RESERVED. Future reservations do not affect the current status.
func DeriveEffectiveStatus(stored AssetStatus, allocs []ActiveAllocation, now time.Time) EffectiveStatus {
	switch stored {
	case AssetStatusMaintenance:
		return EffectiveMaintenance
	case AssetStatusRetired:
		return EffectiveRetired
	}

	reserved := false
	for _, a := range allocs {
		switch {
		case a.Kind == BookingKindCheckout && a.BookingStatus == BookingStatusOpen:
			return EffectiveCheckedOut
		case a.Kind == BookingKindReservation && a.BookingStatus == BookingStatusBooked && a.Window.Contains(now):
			reserved = true
		}
	}
	if reserved {
		return EffectiveReserved
	}
	return EffectiveAvailable
}

// StatusDeriver evaluates effective statuses against the database.
type StatusDeriver struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStatusDeriver(pool *pgxpool.Pool) *StatusDeriver {
	return &StatusDeriver{pool: pool, now: time.Now}
}

// Status returns the effective status of one asset.
func (d *StatusDeriver) Status(ctx context.Context, assetID string) (EffectiveStatus, error) {
	statuses, err := d.Statuses(ctx, []string{assetID})
	if err != nil {
		return "", err
	}
	s, ok := statuses[assetID]
	if !ok {
		return "", NotFoundf("Asset not found")
	}
	return s, nil
}

// Statuses evaluates many assets with one query for stored statuses and one
// for the active allocations of assets still in rotation. Unknown ids are
// absent from the result.
func (d *StatusDeriver) Statuses(ctx context.Context, assetIDs []string) (map[string]EffectiveStatus, error) {
	return d.statuses(ctx, d.pool, dedupeIDs(assetIDs), d.now().UTC())
}

func (d *StatusDeriver) statuses(ctx context.Context, q pgxQuerier, assetIDs []string, now time.Time) (map[string]EffectiveStatus, error) {
	result := make(map[string]EffectiveStatus, len(assetIDs))
	if len(assetIDs) == 0 {
		return result, nil
	}

	stored := make(map[string]AssetStatus, len(assetIDs))
	rows, err := q.Query(ctx, `SELECT id, status FROM assets WHERE id = ANY($1)`, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset statuses: %w", err)
	}
	for rows.Next() {
		var id string
		var s AssetStatus
		if err := rows.Scan(&id, &s); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan asset status: %w", err)
		}
		stored[id] = s
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read asset statuses: %w", err)
	}

	allocs := make(map[string][]ActiveAllocation, len(stored))
	inRotation := allocationCheckIDs(stored)
	if len(inRotation) == 0 {
		for id, s := range stored {
			result[id] = DeriveEffectiveStatus(s, nil, now)
		}
		return result, nil
	}
	rows, err = q.Query(ctx, `
		SELECT a.asset_id, b.kind, b.status, a.starts_at, a.ends_at
		FROM asset_allocations a
		JOIN bookings b ON b.id = a.booking_id
		WHERE a.asset_id = ANY($1) AND a.active = true AND b.status IN ('BOOKED', 'OPEN')
	`, inRotation)
	if err != nil {
		return nil, fmt.Errorf("failed to query active allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var assetID string
		var a ActiveAllocation
		if err := rows.Scan(&assetID, &a.Kind, &a.BookingStatus, &a.Window.Start, &a.Window.End); err != nil {
			return nil, fmt.Errorf("failed to scan active allocation: %w", err)
		}
		allocs[assetID] = append(allocs[assetID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active allocations: %w", err)
	}

	for id, s := range stored {
		result[id] = DeriveEffectiveStatus(s, allocs[id], now)
	}
	return result, nil
}

// allocationCheckIDs returns the ids whose stored status is AVAILABLE, sorted.
// MAINTENANCE and RETIRED assets never need their allocations read.
func allocationCheckIDs(stored map[string]AssetStatus) []string {
	ids := make([]string, 0, len(stored))
	for id, s := range stored {
		if s == AssetStatusAvailable {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// storedAssetStatus reads one asset's stored status.
func storedAssetStatus(ctx context.Context, q pgxQuerier, assetID string) (AssetStatus, error) {
	var s AssetStatus
	if err := q.QueryRow(ctx, `SELECT status FROM assets WHERE id = $1`, assetID).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NotFoundf("Asset not found")
		}
		return "", fmt.Errorf("failed to load asset: %w", err)
	}
	return s, nil
}
