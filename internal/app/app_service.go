package app

import (
	"context"
	"strings"

	"booking-engine/internal/core"
)

type appService struct {
	bookings  core.BookingService
	scans     core.ScanService
	catalog   core.CatalogService
	ledger    core.BulkStockLedger
	audit     core.AuditService
	integrity *core.IntegrityScanner
}

// NewAppService constructs the ApplicationService implementation.
func NewAppService(
	bookings core.BookingService,
	scans core.ScanService,
	catalog core.CatalogService,
	ledger core.BulkStockLedger,
	audit core.AuditService,
	integrity *core.IntegrityScanner,
) ApplicationService {
	return &appService{
		bookings:  bookings,
		scans:     scans,
		catalog:   catalog,
		ledger:    ledger,
		audit:     audit,
		integrity: integrity,
	}
}

// ── Availability & bookings ───────────────────────────────────────────────────

func (s *appService) CheckAvailability(ctx context.Context, req AvailabilityRequest) (*core.AvailabilityReport, error) {
	window, err := core.ParseTimeRange(req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	return s.bookings.CheckAvailability(ctx, core.AvailabilityRequest{
		LocationID:         req.LocationID,
		Window:             window,
		SerializedAssetIDs: req.SerializedAssetIDs,
		BulkItems:          req.BulkItems,
		ExcludeBookingID:   req.ExcludeBookingID,
	})
}

func (s *appService) createBooking(ctx context.Context, actor Actor, kind core.BookingKind, req CreateBookingRequest) (*core.Booking, error) {
	window, err := core.ParseTimeRange(req.StartsAt, req.EndsAt)
	if err != nil {
		return nil, err
	}
	requester := req.RequesterUserID
	if requester == "" {
		requester = actor.UserID
	}
	var source *string
	if req.SourceReservationID != nil && strings.TrimSpace(*req.SourceReservationID) != "" {
		id := strings.TrimSpace(*req.SourceReservationID)
		source = &id
	}
	return s.bookings.Create(ctx, core.CreateBookingInput{
		Kind:                kind,
		Title:               req.Title,
		RequesterUserID:     requester,
		LocationID:          req.LocationID,
		Window:              window,
		SerializedAssetIDs:  req.SerializedAssetIDs,
		BulkItems:           req.BulkItems,
		Notes:               req.Notes,
		CreatedBy:           actor.UserID,
		SourceReservationID: source,
	})
}

func (s *appService) CreateReservation(ctx context.Context, actor Actor, req CreateBookingRequest) (*core.Booking, error) {
	if req.SourceReservationID != nil && *req.SourceReservationID != "" {
		return nil, core.Validationf("sourceReservationId is only accepted when creating a checkout")
	}
	return s.createBooking(ctx, actor, core.BookingKindReservation, req)
}

func (s *appService) CreateCheckout(ctx context.Context, actor Actor, req CreateBookingRequest) (*core.Booking, error) {
	return s.createBooking(ctx, actor, core.BookingKindCheckout, req)
}

func (s *appService) AmendReservation(ctx context.Context, actor Actor, id string, req AmendReservationRequest) (*core.Booking, error) {
	in := core.AmendReservationInput{
		Title:              req.Title,
		RequesterUserID:    req.RequesterUserID,
		LocationID:         req.LocationID,
		Notes:              req.Notes,
		SerializedAssetIDs: req.SerializedAssetIDs,
		BulkItems:          req.BulkItems,
	}
	if req.StartsAt != nil {
		t, err := core.ParseInstant(*req.StartsAt)
		if err != nil {
			return nil, core.Validationf("Invalid startsAt or endsAt")
		}
		in.StartsAt = &t
	}
	if req.EndsAt != nil {
		t, err := core.ParseInstant(*req.EndsAt)
		if err != nil {
			return nil, core.Validationf("Invalid startsAt or endsAt")
		}
		in.EndsAt = &t
	}
	if req.Status != nil {
		st := core.BookingStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		in.Status = &st
	}
	return s.bookings.AmendReservation(ctx, id, actor.UserID, in)
}

func (s *appService) CancelReservation(ctx context.Context, actor Actor, id string) (*core.Booking, error) {
	return s.bookings.CancelReservation(ctx, id, actor.UserID)
}

func (s *appService) GetReservation(ctx context.Context, id string) (*core.Booking, error) {
	return s.bookings.GetOfKind(ctx, id, core.BookingKindReservation)
}

func (s *appService) GetCheckout(ctx context.Context, id string) (*core.Booking, error) {
	return s.bookings.GetOfKind(ctx, id, core.BookingKindCheckout)
}

func (s *appService) listBookings(ctx context.Context, kind core.BookingKind, req ListBookingsRequest) (*BookingListResult, error) {
	limit, offset := core.NormalizePage(req.Limit, req.Offset)
	bookings, total, err := s.bookings.List(ctx, core.BookingFilter{
		Kind:       kind,
		Status:     core.BookingStatus(strings.ToUpper(req.Status)),
		LocationID: req.LocationID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	return &BookingListResult{Bookings: bookings, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *appService) ListReservations(ctx context.Context, req ListBookingsRequest) (*BookingListResult, error) {
	return s.listBookings(ctx, core.BookingKindReservation, req)
}

func (s *appService) ListCheckouts(ctx context.Context, req ListBookingsRequest) (*BookingListResult, error) {
	return s.listBookings(ctx, core.BookingKindCheckout, req)
}

// ── Scans ─────────────────────────────────────────────────────────────────────

func parsePhase(raw string) (core.ScanPhase, error) {
	phase := core.ScanPhase(strings.ToUpper(strings.TrimSpace(raw)))
	if !phase.Valid() {
		return "", core.Validationf("phase must be CHECKOUT or CHECKIN")
	}
	return phase, nil
}

func (s *appService) StartScanSession(ctx context.Context, actor Actor, checkoutID, phase string) (*ScanSessionResult, error) {
	p, err := parsePhase(phase)
	if err != nil {
		return nil, err
	}
	session, created, err := s.scans.StartSession(ctx, checkoutID, actor.UserID, p)
	if err != nil {
		return nil, err
	}
	return &ScanSessionResult{Session: session, Created: created}, nil
}

func (s *appService) RecordScan(ctx context.Context, actor Actor, checkoutID string, phase core.ScanPhase, req RecordScanRequest) (*core.ScanEvent, error) {
	if req.Phase != "" && core.ScanPhase(strings.ToUpper(req.Phase)) != phase {
		return nil, core.Validationf("phase %s does not match this endpoint (%s)", req.Phase, phase)
	}
	return s.scans.RecordScan(ctx, core.RecordScanInput{
		BookingID:     checkoutID,
		ActorUserID:   actor.UserID,
		Phase:         phase,
		ScanType:      core.ScanType(strings.ToUpper(strings.TrimSpace(req.ScanType))),
		ScanValue:     req.ScanValue,
		Quantity:      req.Quantity,
		DeviceContext: req.DeviceContext,
	})
}

func (s *appService) GetScanState(ctx context.Context, checkoutID, phase string) (*core.ScanState, error) {
	p, err := parsePhase(phase)
	if err != nil {
		return nil, err
	}
	return s.scans.State(ctx, checkoutID, p)
}

func (s *appService) CompleteCheckoutScan(ctx context.Context, actor Actor, checkoutID string) (*core.ScanCompletion, error) {
	return s.scans.CompleteCheckout(ctx, checkoutID, actor.UserID)
}

func (s *appService) CompleteCheckin(ctx context.Context, actor Actor, checkoutID string) (*core.ScanCompletion, error) {
	return s.scans.CompleteCheckin(ctx, checkoutID, actor.UserID)
}

func (s *appService) CreateAdminOverride(ctx context.Context, actor Actor, checkoutID string, req OverrideRequest) (*core.OverrideEvent, error) {
	return s.scans.CreateAdminOverride(ctx, core.OverrideInput{
		BookingID:   checkoutID,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		Reason:      req.Reason,
		Details:     req.Details,
	})
}

// ── Catalog & stock ───────────────────────────────────────────────────────────

func (s *appService) RegisterAsset(ctx context.Context, actor Actor, req RegisterAssetRequest) (*core.Asset, error) {
	return s.catalog.RegisterAsset(ctx, core.RegisterAssetInput{
		AssetTag:      req.AssetTag,
		Type:          req.Type,
		Brand:         req.Brand,
		Model:         req.Model,
		SerialNumber:  req.SerialNumber,
		ScanCode:      req.ScanCode,
		PurchasePrice: req.PurchasePrice,
		LocationID:    req.LocationID,
		Status:        core.AssetStatus(strings.ToUpper(req.Status)),
		Notes:         req.Notes,
		ActorUserID:   actor.UserID,
	})
}

func (s *appService) GetAsset(ctx context.Context, id string) (*core.AssetView, error) {
	return s.catalog.GetAsset(ctx, id)
}

func (s *appService) SetAssetStatus(ctx context.Context, actor Actor, id, status string) (*core.Asset, error) {
	return s.catalog.SetAssetStatus(ctx, id, actor.UserID, core.AssetStatus(strings.ToUpper(strings.TrimSpace(status))))
}

func (s *appService) GetAssetStatuses(ctx context.Context, ids []string) (*AssetStatusesResult, error) {
	statuses, err := s.catalog.EffectiveStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &AssetStatusesResult{Statuses: statuses}, nil
}

func (s *appService) CreateBulkSku(ctx context.Context, actor Actor, req CreateBulkSkuRequest) (*core.BulkSku, error) {
	return s.catalog.CreateBulkSku(ctx, core.CreateBulkSkuInput{
		Name:            req.Name,
		Category:        req.Category,
		Unit:            req.Unit,
		LocationID:      req.LocationID,
		BinScanCode:     req.BinScanCode,
		MinThreshold:    req.MinThreshold,
		InitialQuantity: req.InitialQuantity,
		ActorUserID:     actor.UserID,
	})
}

func (s *appService) ListBulkSkus(ctx context.Context, locationID string) (*BulkSkuListResult, error) {
	skus, err := s.catalog.ListBulkSkus(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return &BulkSkuListResult{Skus: skus}, nil
}

func (s *appService) AdjustBulkStock(ctx context.Context, actor Actor, skuID string, req AdjustStockRequest) (*core.BalanceChange, error) {
	return s.ledger.Adjust(ctx, skuID, actor.UserID, req.Delta, req.Reason)
}

func (s *appService) ListStockMovements(ctx context.Context, skuID string, limit int) (*MovementListResult, error) {
	movements, err := s.ledger.Movements(ctx, skuID, limit)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{Movements: movements}, nil
}

// ── Audit & integrity ─────────────────────────────────────────────────────────

func (s *appService) ListAudit(ctx context.Context, entityType, entityID string) (*AuditResult, error) {
	entries, err := s.audit.List(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return &AuditResult{Entries: entries}, nil
}

func (s *appService) RunIntegrityScan(ctx context.Context) (*core.IntegrityReport, error) {
	return s.integrity.Scan(ctx)
}
