package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OverlapViolation is a pair of active allocations on one asset whose windows
// intersect. The exclusion constraint should make this impossible; the scan
// exists to prove it.
type OverlapViolation struct {
	AssetID        string    `json:"assetId"`
	FirstBookingID string    `json:"firstBookingId"`
	FirstStartsAt  time.Time `json:"firstStartsAt"`
	FirstEndsAt    time.Time `json:"firstEndsAt"`
	OtherBookingID string    `json:"otherBookingId"`
	OtherStartsAt  time.Time `json:"otherStartsAt"`
	OtherEndsAt    time.Time `json:"otherEndsAt"`
}

// BalanceDrift is a balance row that disagrees with the sum of its movements.
type BalanceDrift struct {
	BulkSkuID   string `json:"bulkSkuId"`
	LocationID  string `json:"locationId"`
	OnHand      int    `json:"onHand"`
	LedgerTotal int    `json:"ledgerTotal"`
}

type IntegrityReport struct {
	Overlaps []OverlapViolation `json:"overlaps"`
	Drift    []BalanceDrift     `json:"drift"`
}

// Clean reports whether no violations were found.
func (r *IntegrityReport) Clean() bool {
	return len(r.Overlaps) == 0 && len(r.Drift) == 0
}

// IntegrityScanner checks persisted state against the engine's invariants.
type IntegrityScanner struct {
	pool *pgxpool.Pool
}

func NewIntegrityScanner(pool *pgxpool.Pool) *IntegrityScanner {
	return &IntegrityScanner{pool: pool}
}

func (s *IntegrityScanner) Scan(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{Overlaps: []OverlapViolation{}, Drift: []BalanceDrift{}}

	rows, err := s.pool.Query(ctx, `
		SELECT a1.asset_id,
		       a1.booking_id, a1.starts_at, a1.ends_at,
		       a2.booking_id, a2.starts_at, a2.ends_at
		FROM asset_allocations a1
		JOIN asset_allocations a2 ON a2.asset_id = a1.asset_id AND a1.id < a2.id
		JOIN bookings b1 ON b1.id = a1.booking_id
		JOIN bookings b2 ON b2.id = a2.booking_id
		WHERE a1.active AND a2.active
		  AND b1.status IN ('BOOKED', 'OPEN') AND b2.status IN ('BOOKED', 'OPEN')
		  AND a1.starts_at < a2.ends_at AND a1.ends_at > a2.starts_at
		ORDER BY a1.asset_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping allocations: %w", err)
	}
	for rows.Next() {
		var v OverlapViolation
		if err := rows.Scan(&v.AssetID, &v.FirstBookingID, &v.FirstStartsAt, &v.FirstEndsAt,
			&v.OtherBookingID, &v.OtherStartsAt, &v.OtherEndsAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan overlap: %w", err)
		}
		report.Overlaps = append(report.Overlaps, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read overlaps: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT b.bulk_sku_id, b.location_id, b.on_hand_quantity, COALESCE(SUM(m.delta), 0)::int
		FROM bulk_stock_balances b
		LEFT JOIN bulk_stock_movements m
		       ON m.bulk_sku_id = b.bulk_sku_id AND m.location_id = b.location_id
		GROUP BY b.bulk_sku_id, b.location_id, b.on_hand_quantity
		HAVING b.on_hand_quantity <> COALESCE(SUM(m.delta), 0)
		ORDER BY b.bulk_sku_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance drift: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d BalanceDrift
		if err := rows.Scan(&d.BulkSkuID, &d.LocationID, &d.OnHand, &d.LedgerTotal); err != nil {
			return nil, fmt.Errorf("failed to scan balance drift: %w", err)
		}
		report.Drift = append(report.Drift, d)
	}
	return report, rows.Err()
}
