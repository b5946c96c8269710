package core

import (
	"context"
	"fmt"
	"time"
)

// AvailabilityRequest describes a prospective booking to check.
// ExcludeBookingID, when set, ignores that booking's own allocations so an
// amended reservation never conflicts with itself.
type AvailabilityRequest struct {
	LocationID         string
	Window             TimeRange
	SerializedAssetIDs []string
	BulkItems          []BulkRequest
	ExcludeBookingID   string
}

type AllocationConflict struct {
	AssetID              string    `json:"assetId"`
	ConflictingBookingID string    `json:"conflictingBookingId"`
	StartsAt             time.Time `json:"startsAt"`
	EndsAt               time.Time `json:"endsAt"`
}

type BulkShortage struct {
	BulkSkuID string `json:"bulkSkuId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// UnavailableAsset reports an asset whose stored status is not AVAILABLE.
// Status is NOT_FOUND when the id does not exist.
type UnavailableAsset struct {
	AssetID string `json:"assetId"`
	Status  string `json:"status"`
}

const unavailableNotFound = "NOT_FOUND"

// AvailabilityReport collects every reason a booking cannot be made. All three
// checks always run so the caller sees the full picture.
type AvailabilityReport struct {
	Conflicts         []AllocationConflict `json:"conflicts"`
	Shortages         []BulkShortage       `json:"shortages"`
	UnavailableAssets []UnavailableAsset   `json:"unavailableAssets"`
}

// OK reports whether the request can be satisfied.
func (r *AvailabilityReport) OK() bool {
	return len(r.Conflicts) == 0 && len(r.Shortages) == 0 && len(r.UnavailableAssets) == 0
}

func newAvailabilityReport() *AvailabilityReport {
	return &AvailabilityReport{
		Conflicts:         []AllocationConflict{},
		Shortages:         []BulkShortage{},
		UnavailableAssets: []UnavailableAsset{},
	}
}

// AvailabilityChecker answers "can this set of items be booked for this
// window at this location". It is read-only and runs against whatever
// querier it is given, so booking writes call it inside their own
// serializable transaction.
type AvailabilityChecker struct{}

func NewAvailabilityChecker() *AvailabilityChecker {
	return &AvailabilityChecker{}
}

func (c *AvailabilityChecker) Check(ctx context.Context, q pgxQuerier, req AvailabilityRequest) (*AvailabilityReport, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	report := newAvailabilityReport()
	assetIDs := dedupeIDs(req.SerializedAssetIDs)

	if len(assetIDs) > 0 {
		conflicts, err := c.serializedConflicts(ctx, q, assetIDs, req.Window, req.ExcludeBookingID)
		if err != nil {
			return nil, err
		}
		report.Conflicts = conflicts

		unavailable, err := c.unavailableAssets(ctx, q, assetIDs)
		if err != nil {
			return nil, err
		}
		report.UnavailableAssets = unavailable
	}

	if len(req.BulkItems) > 0 {
		shortages, err := c.bulkShortages(ctx, q, req.LocationID, req.BulkItems)
		if err != nil {
			return nil, err
		}
		report.Shortages = shortages
	}
	return report, nil
}

func (c *AvailabilityChecker) serializedConflicts(ctx context.Context, q pgxQuerier, assetIDs []string, window TimeRange, excludeBookingID string) ([]AllocationConflict, error) {
	rows, err := q.Query(ctx, `
		SELECT a.asset_id, a.booking_id, a.starts_at, a.ends_at
		FROM asset_allocations a
		JOIN bookings b ON b.id = a.booking_id
		WHERE a.asset_id = ANY($1)
		  AND a.active = true
		  AND b.status IN ('BOOKED', 'OPEN')
		  AND a.starts_at < $3
		  AND a.ends_at > $2
		  AND ($4::text = '' OR a.booking_id <> $4::text)
		ORDER BY a.asset_id, a.starts_at
	`, assetIDs, window.Start, window.End, excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []AllocationConflict{}
	for rows.Next() {
		var c AllocationConflict
		if err := rows.Scan(&c.AssetID, &c.ConflictingBookingID, &c.StartsAt, &c.EndsAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (c *AvailabilityChecker) unavailableAssets(ctx context.Context, q pgxQuerier, assetIDs []string) ([]UnavailableAsset, error) {
	rows, err := q.Query(ctx, `SELECT id, status FROM assets WHERE id = ANY($1)`, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset statuses: %w", err)
	}
	defer rows.Close()

	found := make(map[string]AssetStatus, len(assetIDs))
	for rows.Next() {
		var id string
		var status AssetStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan asset status: %w", err)
		}
		found[id] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read asset statuses: %w", err)
	}

	unavailable := []UnavailableAsset{}
	for _, id := range assetIDs {
		status, ok := found[id]
		switch {
		case !ok:
			unavailable = append(unavailable, UnavailableAsset{AssetID: id, Status: unavailableNotFound})
		case status != AssetStatusAvailable:
			unavailable = append(unavailable, UnavailableAsset{AssetID: id, Status: string(status)})
		}
	}
	return unavailable, nil
}

func (c *AvailabilityChecker) bulkShortages(ctx context.Context, q pgxQuerier, locationID string, items []BulkRequest) ([]BulkShortage, error) {
	skuIDs := make([]string, 0, len(items))
	for _, it := range items {
		skuIDs = append(skuIDs, it.BulkSkuID)
	}

	rows, err := q.Query(ctx, `
		SELECT bulk_sku_id, on_hand_quantity
		FROM bulk_stock_balances
		WHERE location_id = $1 AND bulk_sku_id = ANY($2)
	`, locationID, skuIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query bulk balances: %w", err)
	}
	defer rows.Close()

	onHand := make(map[string]int, len(items))
	for rows.Next() {
		var skuID string
		var qty int
		if err := rows.Scan(&skuID, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan bulk balance: %w", err)
		}
		onHand[skuID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bulk balances: %w", err)
	}

	// A missing balance row means nothing is on hand.
	shortages := []BulkShortage{}
	for _, it := range items {
		if available := onHand[it.BulkSkuID]; available < it.Quantity {
			shortages = append(shortages, BulkShortage{BulkSkuID: it.BulkSkuID, Requested: it.Quantity, Available: available})
		}
	}
	return shortages, nil
}

// dedupeIDs drops empty and repeated ids, keeping first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
