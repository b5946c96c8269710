package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Locker is a best-effort mutual exclusion hint keyed by string. Correctness
// never depends on it; serializable transactions remain the guard.
type Locker interface {
	// TryLock returns a release func. When the lock cannot be obtained the
	// caller proceeds anyway and the returned func is a no-op.
	TryLock(ctx context.Context, key string) (unlock func())
}

type nopLocker struct{}

func (nopLocker) TryLock(context.Context, string) func() { return func() {} }

// NopLocker never locks.
func NopLocker() Locker { return nopLocker{} }

// RecordScanInput is one scan from a handheld device.
type RecordScanInput struct {
	BookingID     string
	ActorUserID   string
	Phase         ScanPhase
	ScanType      ScanType
	ScanValue     string
	Quantity      *int
	DeviceContext *string
}

// OverrideInput is an admin's authorization to complete despite missing scans.
type OverrideInput struct {
	BookingID   string
	ActorUserID string
	ActorRole   Role
	Reason      string
	Details     map[string]any
}

// ScanState is the progress of one phase of a checkout.
type ScanState struct {
	BookingID         string        `json:"bookingId"`
	Phase             ScanPhase     `json:"phase"`
	Sessions          []ScanSession `json:"sessions"`
	Events            []ScanEvent   `json:"events"`
	MissingSerialized []string      `json:"missingSerialized"`
	MissingBulk       []MissingBulk `json:"missingBulk"`
	OverrideExists    bool          `json:"overrideExists"`
}

// ScanService runs the checkout and check-in scan workflow: sessions, scan
// recording, completion gating, and admin overrides.
type ScanService interface {
	// StartSession returns the open session for (booking, phase), creating it
	// if none exists. created reports whether a new session was made.
	StartSession(ctx context.Context, bookingID, actorUserID string, phase ScanPhase) (session *ScanSession, created bool, err error)
	// RecordScan stores a scan event. A scan that matches no item on the
	// checkout is stored as a failed event and reported as a validation error.
	RecordScan(ctx context.Context, in RecordScanInput) (*ScanEvent, error)
	// State reports sessions, scans, and what is still missing for a phase.
	State(ctx context.Context, bookingID string, phase ScanPhase) (*ScanState, error)
	// CompleteCheckout closes the checkout scan phase once everything has been
	// scanned or an override exists.
	CompleteCheckout(ctx context.Context, bookingID, actorUserID string) (*ScanCompletion, error)
	// CompleteCheckin closes the check-in phase and finalizes the checkout.
	CompleteCheckin(ctx context.Context, bookingID, actorUserID string) (*ScanCompletion, error)
	// CreateAdminOverride records an admin's override for a checkout.
	CreateAdminOverride(ctx context.Context, in OverrideInput) (*OverrideEvent, error)
}

type scanService struct {
	pool     *pgxpool.Pool
	runner   *TxRunner
	bookings BookingService
	users    UserService
	locker   Locker
	events   EventPublisher
	log      *zap.Logger
}

func NewScanService(pool *pgxpool.Pool, runner *TxRunner, bookings BookingService, users UserService, locker Locker, events EventPublisher, log *zap.Logger) ScanService {
	if locker == nil {
		locker = NopLocker()
	}
	if events == nil {
		events = NopPublisher()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &scanService{pool: pool, runner: runner, bookings: bookings, users: users, locker: locker, events: events, log: log}
}

// loadCheckout loads a booking and rejects anything that is not a checkout.
func loadCheckout(ctx context.Context, q pgxQuerier, id string, forUpdate bool) (*Booking, error) {
	b, err := loadBooking(ctx, q, id, forUpdate)
	if err != nil {
		return nil, err
	}
	if b == nil || b.Kind != BookingKindCheckout {
		return nil, NotFoundf("Checkout not found")
	}
	return b, nil
}

const scanSessionColumns = `id, booking_id, actor_user_id, phase, status, started_at, completed_at`

func scanScanSession(row pgx.Row, s *ScanSession) error {
	return row.Scan(&s.ID, &s.BookingID, &s.ActorUserID, &s.Phase, &s.Status, &s.StartedAt, &s.CompletedAt)
}

// ── Sessions ──────────────────────────────────────────────────────────────────

func (s *scanService) StartSession(ctx context.Context, bookingID, actorUserID string, phase ScanPhase) (*ScanSession, bool, error) {
	if !phase.Valid() {
		return nil, false, Validationf("phase must be CHECKOUT or CHECKIN")
	}

	var session ScanSession
	created := false
	err := s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		created = false
		b, err := loadCheckout(ctx, tx, bookingID, false)
		if err != nil {
			return err
		}
		if b.Status != BookingStatusOpen {
			return Validationf("Checkout must be open")
		}

		err = scanScanSession(tx.QueryRow(ctx, `
			SELECT `+scanSessionColumns+` FROM scan_sessions
			WHERE booking_id = $1 AND phase = $2 AND status = 'OPEN'
		`, bookingID, phase), &session)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to query scan session: %w", err)
		}

		if err := scanScanSession(tx.QueryRow(ctx, `
			INSERT INTO scan_sessions (booking_id, actor_user_id, phase, status)
			VALUES ($1, $2, $3, 'OPEN')
			RETURNING `+scanSessionColumns, bookingID, actorUserID, phase), &session); err != nil {
			return fmt.Errorf("failed to create scan session: %w", err)
		}
		created = true

		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: actorUserID,
			EntityType:  EntityBooking,
			EntityID:    bookingID,
			Action:      "scan_session_started",
			After:       map[string]any{"sessionId": session.ID, "phase": phase},
		})
	})
	if err != nil && isUniqueViolation(err) {
		// Lost a race to create the session; the winner's session is the answer.
		if err := scanScanSession(s.pool.QueryRow(ctx, `
			SELECT `+scanSessionColumns+` FROM scan_sessions
			WHERE booking_id = $1 AND phase = $2 AND status = 'OPEN'
		`, bookingID, phase), &session); err != nil {
			return nil, false, fmt.Errorf("failed to load scan session: %w", err)
		}
		return &session, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &session, created, nil
}

// ── Scans ─────────────────────────────────────────────────────────────────────

func (s *scanService) RecordScan(ctx context.Context, in RecordScanInput) (*ScanEvent, error) {
	if !in.Phase.Valid() {
		return nil, Validationf("phase must be CHECKOUT or CHECKIN")
	}
	if in.ScanType != ScanTypeSerialized && in.ScanType != ScanTypeBulkBin {
		return nil, Validationf("scanType must be SERIALIZED or BULK_BIN")
	}
	in.ScanValue = strings.TrimSpace(in.ScanValue)
	if in.ScanValue == "" {
		return nil, Validationf("scanValue is required")
	}
	if in.DeviceContext != nil && len(*in.DeviceContext) > 500 {
		return nil, Validationf("deviceContext must be at most 500 characters")
	}
	if in.ScanType == ScanTypeBulkBin && (in.Quantity == nil || *in.Quantity <= 0) {
		return nil, Validationf("Bulk scans require a positive quantity")
	}

	b, err := loadCheckout(ctx, s.pool, in.BookingID, false)
	if err != nil {
		return nil, err
	}

	event := ScanEvent{
		BookingID:     in.BookingID,
		ActorUserID:   in.ActorUserID,
		ScanType:      in.ScanType,
		ScanValue:     in.ScanValue,
		Phase:         in.Phase,
		DeviceContext: in.DeviceContext,
	}

	switch in.ScanType {
	case ScanTypeSerialized:
		for _, it := range b.SerializedItems {
			if it.ScanCode == in.ScanValue {
				assetID := it.AssetID
				event.AssetID = &assetID
				break
			}
		}
		if event.AssetID == nil {
			return nil, s.rejectScan(ctx, &event, "Scanned serialized code does not belong to this checkout")
		}
	case ScanTypeBulkBin:
		for _, it := range b.BulkItems {
			if it.BinScanCode == in.ScanValue {
				skuID := it.BulkSkuID
				event.BulkSkuID = &skuID
				break
			}
		}
		event.Quantity = in.Quantity
		if event.BulkSkuID == nil {
			return nil, s.rejectScan(ctx, &event, "Scanned bulk bin code does not belong to this checkout")
		}
	}

	event.Success = true
	err = s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		if err := insertScanEvent(ctx, tx, &event); err != nil {
			return err
		}
		if event.BulkSkuID == nil {
			return nil
		}
		column := "checked_out_quantity"
		if in.Phase == ScanPhaseCheckin {
			column = "checked_in_quantity"
		}
		if _, err := tx.Exec(ctx, `
			UPDATE booking_bulk_items
			SET `+column+` = COALESCE(`+column+`, 0) + $3
			WHERE booking_id = $1 AND bulk_sku_id = $2
		`, in.BookingID, *event.BulkSkuID, *event.Quantity); err != nil {
			return fmt.Errorf("failed to update scanned quantity: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// rejectScan persists a failed scan and returns the validation error for it.
func (s *scanService) rejectScan(ctx context.Context, event *ScanEvent, message string) error {
	event.Success = false
	if err := insertScanEvent(ctx, s.pool, event); err != nil {
		return err
	}
	return Validationf("%s", message)
}

func insertScanEvent(ctx context.Context, q pgxQuerier, e *ScanEvent) error {
	if err := q.QueryRow(ctx, `
		INSERT INTO scan_events
			(booking_id, actor_user_id, scan_type, scan_value, phase, success, asset_id, bulk_sku_id, quantity, device_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`, e.BookingID, e.ActorUserID, e.ScanType, e.ScanValue, e.Phase, e.Success,
		e.AssetID, e.BulkSkuID, e.Quantity, e.DeviceContext).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("failed to record scan event: %w", err)
	}
	return nil
}

func loadScanEvents(ctx context.Context, q pgxQuerier, bookingID string, phase ScanPhase, successOnly bool) ([]ScanEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT id, booking_id, actor_user_id, scan_type, scan_value, phase, success,
		       asset_id, bulk_sku_id, quantity, device_context, created_at
		FROM scan_events
		WHERE booking_id = $1 AND phase = $2 AND (NOT $3 OR success)
		ORDER BY created_at, id
	`, bookingID, phase, successOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan events: %w", err)
	}
	defer rows.Close()

	events := []ScanEvent{}
	for rows.Next() {
		var e ScanEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.ActorUserID, &e.ScanType, &e.ScanValue, &e.Phase, &e.Success,
			&e.AssetID, &e.BulkSkuID, &e.Quantity, &e.DeviceContext, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func overrideExists(ctx context.Context, q pgxQuerier, bookingID string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM override_events WHERE booking_id = $1)`, bookingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check overrides: %w", err)
	}
	return exists, nil
}

func (s *scanService) State(ctx context.Context, bookingID string, phase ScanPhase) (*ScanState, error) {
	if !phase.Valid() {
		return nil, Validationf("phase must be CHECKOUT or CHECKIN")
	}
	b, err := loadCheckout(ctx, s.pool, bookingID, false)
	if err != nil {
		return nil, err
	}
	events, err := loadScanEvents(ctx, s.pool, bookingID, phase, false)
	if err != nil {
		return nil, err
	}
	override, err := overrideExists(ctx, s.pool, bookingID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+scanSessionColumns+` FROM scan_sessions
		WHERE booking_id = $1 AND phase = $2
		ORDER BY started_at
	`, bookingID, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan sessions: %w", err)
	}
	defer rows.Close()
	sessions := []ScanSession{}
	for rows.Next() {
		var ss ScanSession
		if err := scanScanSession(rows, &ss); err != nil {
			return nil, fmt.Errorf("failed to scan scan session: %w", err)
		}
		sessions = append(sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scan sessions: %w", err)
	}

	missingSerialized, missingBulk := ComputeMissing(b, events, phase)
	return &ScanState{
		BookingID:         bookingID,
		Phase:             phase,
		Sessions:          sessions,
		Events:            events,
		MissingSerialized: missingSerialized,
		MissingBulk:       missingBulk,
		OverrideExists:    override,
	}, nil
}

// ── Completion ────────────────────────────────────────────────────────────────

func (s *scanService) CompleteCheckout(ctx context.Context, bookingID, actorUserID string) (*ScanCompletion, error) {
	result, err := s.complete(ctx, bookingID, actorUserID, ScanPhaseCheckout)
	if err != nil {
		return nil, err
	}
	publishAfterCommit(ctx, s.events, s.log, Event{
		Type:        EventCheckoutScanCompleted,
		EntityID:    bookingID,
		ActorUserID: actorUserID,
		Payload:     result,
	})
	return result, nil
}

func (s *scanService) CompleteCheckin(ctx context.Context, bookingID, actorUserID string) (*ScanCompletion, error) {
	result, err := s.complete(ctx, bookingID, actorUserID, ScanPhaseCheckin)
	if err != nil {
		return nil, err
	}
	publishAfterCommit(ctx, s.events, s.log, Event{
		Type:        EventCheckoutCompleted,
		EntityID:    bookingID,
		ActorUserID: actorUserID,
		Payload:     result,
	})
	return result, nil
}

// complete gates a phase on scan completeness. The existence of any override
// for the booking authorizes completion despite missing scans.
func (s *scanService) complete(ctx context.Context, bookingID, actorUserID string, phase ScanPhase) (*ScanCompletion, error) {
	unlock := s.locker.TryLock(ctx, "scan-complete:"+bookingID)
	defer unlock()

	var result *ScanCompletion
	err := s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		b, err := loadCheckout(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		if b.Status != BookingStatusOpen {
			return Validationf("Checkout must be open")
		}

		events, err := loadScanEvents(ctx, tx, bookingID, phase, true)
		if err != nil {
			return err
		}
		missingSerialized, missingBulk := ComputeMissing(b, events, phase)
		override, err := overrideExists(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		result = &ScanCompletion{
			MissingSerialized: missingSerialized,
			MissingBulk:       missingBulk,
		}
		if !result.Complete() {
			if !override {
				return IncompleteScan(result, "Scan requirements not met")
			}
			result.OverrideUsed = true
		}
		result.Success = true

		if phase == ScanPhaseCheckin {
			_, err := s.bookings.FinalizeCheckinTx(ctx, tx, bookingID, actorUserID)
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE scan_sessions SET status = 'COMPLETED', completed_at = NOW()
			WHERE booking_id = $1 AND phase = 'CHECKOUT' AND status = 'OPEN'
		`, bookingID); err != nil {
			return fmt.Errorf("failed to complete checkout session: %w", err)
		}
		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: actorUserID,
			EntityType:  EntityBooking,
			EntityID:    bookingID,
			Action:      "checkout_scan_completed",
			After:       result,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ── Overrides ─────────────────────────────────────────────────────────────────

func (s *scanService) CreateAdminOverride(ctx context.Context, in OverrideInput) (*OverrideEvent, error) {
	if in.ActorRole != RoleAdmin {
		return nil, Forbiddenf("Only admins can create overrides")
	}
	if err := s.users.RequireAdmin(ctx, in.ActorUserID); err != nil {
		return nil, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if n := len([]rune(in.Reason)); n < 5 || n > 1000 {
		return nil, Validationf("reason must be between 5 and 1000 characters")
	}
	var details []byte
	if len(in.Details) > 0 {
		var err error
		if details, err = json.Marshal(in.Details); err != nil {
			return nil, Validationf("details must be a JSON object")
		}
	}

	override := OverrideEvent{
		BookingID:   in.BookingID,
		ActorUserID: in.ActorUserID,
		Reason:      in.Reason,
		Details:     details,
	}
	err := s.runner.Serializable(ctx, func(tx pgx.Tx) error {
		if _, err := loadCheckout(ctx, tx, in.BookingID, false); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO override_events (booking_id, actor_user_id, reason, details)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, in.BookingID, in.ActorUserID, in.Reason, details).Scan(&override.ID, &override.CreatedAt); err != nil {
			return fmt.Errorf("failed to record override: %w", err)
		}
		return writeAuditTx(ctx, tx, auditRecord{
			ActorUserID: in.ActorUserID,
			EntityType:  EntityBooking,
			EntityID:    in.BookingID,
			Action:      "admin_override",
			After:       map[string]any{"overrideId": override.ID, "reason": in.Reason, "details": json.RawMessage(nullJSON(details))},
		})
	})
	if err != nil {
		return nil, err
	}

	publishAfterCommit(ctx, s.events, s.log, Event{
		Type:        EventOverrideCreated,
		EntityID:    in.BookingID,
		ActorUserID: in.ActorUserID,
		Payload:     map[string]any{"overrideId": override.ID, "reason": override.Reason},
	})
	return &override, nil
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
