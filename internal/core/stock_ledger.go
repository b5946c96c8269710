package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Movement is one change to a (SKU, location) balance. Quantity is the
// magnitude; for CHECKOUT it decreases the balance, for CHECKIN it increases
// it, and for ADJUSTMENT Delta carries the sign.
type Movement struct {
	BulkSkuID   string
	LocationID  string
	BookingID   *string
	ActorUserID string
	Kind        MovementKind
	Quantity    int
	Delta       int // ADJUSTMENT only
	Reason      *string
}

// signedDelta returns the effect of the movement on the balance.
func (m Movement) signedDelta() (int, error) {
	switch m.Kind {
	case MovementCheckout:
		if m.Quantity <= 0 {
			return 0, Validationf("Checkout quantity must be positive")
		}
		return -m.Quantity, nil
	case MovementCheckin:
		if m.Quantity <= 0 {
			return 0, Validationf("Checkin quantity must be positive")
		}
		return m.Quantity, nil
	case MovementAdjustment:
		if m.Delta == 0 {
			return 0, Validationf("Adjustment delta must be non-zero")
		}
		return m.Delta, nil
	}
	return 0, Validationf("Unknown movement kind %q", m.Kind)
}

// BalanceChange is the balance before and after a movement.
type BalanceChange struct {
	Current int `json:"current"`
	Next    int `json:"next"`
}

// BulkStockLedger keeps on-hand balances of bulk SKUs per location. Every
// balance change is written together with an append-only movement row, and
// a balance never goes below zero.
type BulkStockLedger interface {
	// Standalone operations (manage their own transactions).

	// Adjust applies a signed manual correction with a mandatory reason.
	Adjust(ctx context.Context, skuID, actorUserID string, delta int, reason string) (*BalanceChange, error)
	// Movements lists movements of a SKU, newest first.
	Movements(ctx context.Context, skuID string, limit int) ([]BulkStockMovement, error)

	// TX-scoped operations: work within a caller-provided transaction.
	// Used by the booking lifecycle so stock moves atomically with status changes.

	// ApplyMovementTx locks the balance row, applies the movement, and appends
	// the movement log entry. A result below zero fails with CONFLICT.
	ApplyMovementTx(ctx context.Context, tx pgx.Tx, m Movement) (*BalanceChange, error)
}

type bulkStockLedger struct {
	pool   *pgxpool.Pool
	runner *TxRunner
	events EventPublisher
	log    *zap.Logger
}

func NewBulkStockLedger(pool *pgxpool.Pool, runner *TxRunner, events EventPublisher, log *zap.Logger) BulkStockLedger {
	if events == nil {
		events = NopPublisher()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &bulkStockLedger{pool: pool, runner: runner, events: events, log: log}
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (l *bulkStockLedger) Adjust(ctx context.Context, skuID, actorUserID string, delta int, reason string) (*BalanceChange, error) {
	reason = strings.TrimSpace(reason)
	if delta == 0 {
		return nil, Validationf("delta must be a non-zero integer")
	}
	if n := len([]rune(reason)); n < 3 || n > 500 {
		return nil, Validationf("reason must be between 3 and 500 characters")
	}

	var change *BalanceChange
	err := l.runner.Serializable(ctx, func(tx pgx.Tx) error {
		var locationID string
		if err := tx.QueryRow(ctx, `SELECT location_id FROM bulk_skus WHERE id = $1`, skuID).Scan(&locationID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return NotFoundf("Bulk SKU not found")
			}
			return fmt.Errorf("failed to load bulk SKU: %w", err)
		}

		var err error
		change, err = l.ApplyMovementTx(ctx, tx, Movement{
			BulkSkuID:   skuID,
			LocationID:  locationID,
			ActorUserID: actorUserID,
			Kind:        MovementAdjustment,
			Delta:       delta,
			Reason:      &reason,
		})
		if err != nil {
			if e, ok := AsError(err); ok && e.Kind == KindConflict {
				return Conflict(e.Data, "Adjustment would drop stock below zero. Current: %d", onHandFrom(e))
			}
			return err
		}

		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: actorUserID,
			EntityType:  EntityBulkSku,
			EntityID:    skuID,
			Action:      "stock_adjusted",
			Before:      map[string]any{"onHand": change.Current},
			After:       map[string]any{"onHand": change.Next, "delta": delta, "reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}

	publishAfterCommit(ctx, l.events, l.log, Event{
		Type:        EventStockAdjusted,
		EntityID:    skuID,
		ActorUserID: actorUserID,
		Payload:     map[string]any{"current": change.Current, "next": change.Next, "delta": delta},
	})
	return change, nil
}

// onHandFrom extracts the current balance from an insufficient-stock error.
func onHandFrom(e *Error) int {
	if s, ok := e.Data.(*InsufficientStock); ok {
		return s.OnHand
	}
	return 0
}

func (l *bulkStockLedger) Movements(ctx context.Context, skuID string, limit int) ([]BulkStockMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, bulk_sku_id, location_id, booking_id, actor_user_id, kind, quantity, delta, reason, created_at
		FROM bulk_stock_movements
		WHERE bulk_sku_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, skuID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	movements := []BulkStockMovement{}
	for rows.Next() {
		var m BulkStockMovement
		if err := rows.Scan(&m.ID, &m.BulkSkuID, &m.LocationID, &m.BookingID, &m.ActorUserID,
			&m.Kind, &m.Quantity, &m.Delta, &m.Reason, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

// InsufficientStock is attached to the CONFLICT raised when a movement would
// take a balance below zero.
type InsufficientStock struct {
	BulkSkuID  string `json:"bulkSkuId"`
	LocationID string `json:"locationId"`
	OnHand     int    `json:"onHand"`
	Requested  int    `json:"requested"`
}

func (l *bulkStockLedger) ApplyMovementTx(ctx context.Context, tx pgx.Tx, m Movement) (*BalanceChange, error) {
	delta, err := m.signedDelta()
	if err != nil {
		return nil, err
	}

	// Row lock serialises concurrent movements on the same balance. A missing
	// row means nothing on hand yet.
	var current int
	err = tx.QueryRow(ctx, `
		SELECT on_hand_quantity FROM bulk_stock_balances
		WHERE bulk_sku_id = $1 AND location_id = $2
		FOR UPDATE
	`, m.BulkSkuID, m.LocationID).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to lock stock balance: %w", err)
	}

	next := current + delta
	if next < 0 {
		return nil, Conflict(&InsufficientStock{
			BulkSkuID:  m.BulkSkuID,
			LocationID: m.LocationID,
			OnHand:     current,
			Requested:  -delta,
		}, "Insufficient bulk stock for %s: on hand %d, required %d", m.BulkSkuID, current, -delta)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bulk_stock_balances (bulk_sku_id, location_id, on_hand_quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (bulk_sku_id, location_id)
		DO UPDATE SET on_hand_quantity = EXCLUDED.on_hand_quantity, updated_at = NOW()
	`, m.BulkSkuID, m.LocationID, next); err != nil {
		return nil, fmt.Errorf("failed to update stock balance: %w", err)
	}

	magnitude := delta
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO bulk_stock_movements
			(bulk_sku_id, location_id, booking_id, actor_user_id, kind, quantity, delta, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.BulkSkuID, m.LocationID, m.BookingID, m.ActorUserID, m.Kind, magnitude, delta, m.Reason); err != nil {
		return nil, fmt.Errorf("failed to record stock movement: %w", err)
	}

	return &BalanceChange{Current: current, Next: next}, nil
}
