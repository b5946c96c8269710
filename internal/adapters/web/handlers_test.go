package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-engine/internal/app"
	"booking-engine/internal/core"
)

const testSecret = "test-secret"

// fakeService implements only the methods a test sets; the rest panic through
// the nil embedded interface.
type fakeService struct {
	app.ApplicationService

	createReservation func(actor app.Actor, req app.CreateBookingRequest) (*core.Booking, error)
	startScanSession  func(id, phase string) (*app.ScanSessionResult, error)
	completeCheckout  func(id string) (*core.ScanCompletion, error)
	adjust            func(id string, req app.AdjustStockRequest) (*core.BalanceChange, error)
	integrityCalls    int
}

func (f *fakeService) CreateReservation(_ context.Context, actor app.Actor, req app.CreateBookingRequest) (*core.Booking, error) {
	return f.createReservation(actor, req)
}

func (f *fakeService) StartScanSession(_ context.Context, _ app.Actor, id, phase string) (*app.ScanSessionResult, error) {
	return f.startScanSession(id, phase)
}

func (f *fakeService) CompleteCheckoutScan(_ context.Context, _ app.Actor, id string) (*core.ScanCompletion, error) {
	return f.completeCheckout(id)
}

func (f *fakeService) AdjustBulkStock(_ context.Context, _ app.Actor, id string, req app.AdjustStockRequest) (*core.BalanceChange, error) {
	return f.adjust(id, req)
}

func (f *fakeService) RunIntegrityScan(context.Context) (*core.IntegrityReport, error) {
	f.integrityCalls++
	return &core.IntegrityReport{Overlaps: []core.OverlapViolation{}, Drift: []core.BalanceDrift{}}, nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func newTestHandler(svc app.ApplicationService, store IdempotencyStore) http.Handler {
	return NewHandler(svc, Options{JWTSecret: testSecret, Idempotency: store})
}

func do(t *testing.T, h http.Handler, method, path, body string, role core.Role, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := IssueToken(testSecret, "user-1", role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const reservationBody = `{"title":"Shoot","locationId":"loc-1","startsAt":"2026-03-01T10:00:00Z","endsAt":"2026-03-01T12:00:00Z","serializedAssetIds":["asset-1"]}`

func TestHealth_Public(t *testing.T) {
	h := newTestHandler(&fakeService{}, nil)
	rec := do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRequireAuth_RejectsMissingAndForgedTokens(t *testing.T) {
	h := newTestHandler(&fakeService{}, nil)

	rec := do(t, h, http.MethodGet, "/api/reservations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := IssueToken("other-secret", "user-1", core.RoleAdmin, time.Hour)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/reservations", "", "", "Authorization", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe_ReturnsActor(t *testing.T) {
	h := newTestHandler(&fakeService{}, nil)
	rec := do(t, h, http.MethodGet, "/api/auth/me", "", core.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "user-1", body["userId"])
	assert.Equal(t, "STAFF", body["role"])
}

func TestCreateReservation_Created(t *testing.T) {
	var gotActor app.Actor
	var gotReq app.CreateBookingRequest
	svc := &fakeService{createReservation: func(actor app.Actor, req app.CreateBookingRequest) (*core.Booking, error) {
		gotActor, gotReq = actor, req
		return &core.Booking{ID: "b-1", Kind: core.BookingKindReservation, Status: core.BookingStatusBooked}, nil
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "b-1", decodeBody(t, rec)["id"])
	assert.Equal(t, "user-1", gotActor.UserID)
	assert.Equal(t, core.RoleStaff, gotActor.Role)
	assert.Equal(t, []string{"asset-1"}, gotReq.SerializedAssetIDs)
	assert.Equal(t, "2026-03-01T10:00:00Z", gotReq.StartsAt)
}

func TestCreateReservation_ValidationFailure(t *testing.T) {
	h := newTestHandler(&fakeService{}, nil)
	rec := do(t, h, http.MethodPost, "/api/reservations",
		`{"locationId":"loc-1","startsAt":"2026-03-01T10:00:00Z","endsAt":"2026-03-01T12:00:00Z"}`, core.RoleStaff)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, "title is required", body["error"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data["fields"], "title")
}

func TestCreateReservation_BulkQuantityMustBePositive(t *testing.T) {
	h := newTestHandler(&fakeService{}, nil)
	rec := do(t, h, http.MethodPost, "/api/reservations",
		`{"title":"x","locationId":"loc-1","startsAt":"2026-03-01T10:00:00Z","endsAt":"2026-03-01T12:00:00Z","bulkItems":[{"bulkSkuId":"sku-1","quantity":0}]}`,
		core.RoleStaff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateReservation_ConflictCarriesReport(t *testing.T) {
	svc := &fakeService{createReservation: func(app.Actor, app.CreateBookingRequest) (*core.Booking, error) {
		report := &core.AvailabilityReport{
			Conflicts:         []core.AllocationConflict{{AssetID: "asset-1", ConflictingBookingID: "b-0"}},
			Shortages:         []core.BulkShortage{},
			UnavailableAssets: []core.UnavailableAsset{},
		}
		return nil, core.Conflict(report, "Availability conflict")
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "CONFLICT", body["code"])
	assert.Equal(t, "Availability conflict", body["error"])
	assert.NotContains(t, body, "conflicts")
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "report should be nested under data")
	conflicts, ok := data["conflicts"].([]any)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []any{}, data["shortages"])
	assert.Equal(t, "b-0", conflicts[0].(map[string]any)["conflictingBookingId"])
}

func TestUnexpectedError_Hidden(t *testing.T) {
	svc := &fakeService{createReservation: func(app.Actor, app.CreateBookingRequest) (*core.Booking, error) {
		return nil, assert.AnError
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, body["error"], assert.AnError.Error())
	assert.NotContains(t, body, "data")
}

func TestIdempotencyKey_RejectsReplay(t *testing.T) {
	calls := 0
	svc := &fakeService{createReservation: func(app.Actor, app.CreateBookingRequest) (*core.Booking, error) {
		calls++
		return &core.Booking{ID: "b-1"}, nil
	}}
	h := newTestHandler(svc, &memoryIdempotency{keys: map[string]bool{}})

	rec := do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff, "Idempotency-Key", "k1")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", decodeBody(t, rec)["code"])
	assert.Equal(t, 1, calls)
}

func TestIdempotencyKey_ReleasedAfterFailure(t *testing.T) {
	fail := true
	svc := &fakeService{createReservation: func(app.Actor, app.CreateBookingRequest) (*core.Booking, error) {
		if fail {
			return nil, core.Conflict(nil, "Availability conflict")
		}
		return &core.Booking{ID: "b-1"}, nil
	}}
	h := newTestHandler(svc, &memoryIdempotency{keys: map[string]bool{}})

	rec := do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff, "Idempotency-Key", "k2")
	require.Equal(t, http.StatusConflict, rec.Code)

	fail = false
	rec = do(t, h, http.MethodPost, "/api/reservations", reservationBody, core.RoleStaff, "Idempotency-Key", "k2")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStartScanSession_CreatedVersusReused(t *testing.T) {
	created := true
	var gotPhase string
	svc := &fakeService{startScanSession: func(id, phase string) (*app.ScanSessionResult, error) {
		gotPhase = phase
		return &app.ScanSessionResult{
			Session: &core.ScanSession{ID: "s-1", BookingID: id, Phase: core.ScanPhase(phase), Status: "OPEN"},
			Created: created,
		}, nil
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/checkouts/c-1/start-scan-session", "", core.RoleStaff)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "CHECKOUT", gotPhase)

	created = false
	rec = do(t, h, http.MethodPost, "/api/checkouts/c-1/start-scan-session", `{"phase":"CHECKIN"}`, core.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CHECKIN", gotPhase)
	assert.Equal(t, "s-1", decodeBody(t, rec)["id"])
}

func TestCompleteCheckout_IncompleteKeepsShape(t *testing.T) {
	svc := &fakeService{completeCheckout: func(string) (*core.ScanCompletion, error) {
		result := &core.ScanCompletion{
			Success:           false,
			MissingSerialized: []string{"asset-2"},
			MissingBulk:       []core.MissingBulk{},
		}
		return nil, core.IncompleteScan(result, "Scan requirements not met")
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/checkouts/c-1/complete-checkout", "", core.RoleStaff)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INCOMPLETE_SCAN", body["code"])
	assert.Equal(t, "Scan requirements not met", body["error"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing lists should be nested under data")
	assert.Equal(t, []any{"asset-2"}, data["missingSerialized"])
	assert.Equal(t, []any{}, data["missingBulk"])
	assert.Equal(t, false, data["overrideUsed"])
}

func TestCompleteCheckout_Success(t *testing.T) {
	svc := &fakeService{completeCheckout: func(string) (*core.ScanCompletion, error) {
		return &core.ScanCompletion{Success: true, MissingSerialized: []string{}, MissingBulk: []core.MissingBulk{}, OverrideUsed: true}, nil
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/checkouts/c-1/complete-checkout", "", core.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["overrideUsed"])
	assert.Equal(t, []any{}, body["missingSerialized"])
}

func TestAdjustBulkStock(t *testing.T) {
	var got app.AdjustStockRequest
	svc := &fakeService{adjust: func(id string, req app.AdjustStockRequest) (*core.BalanceChange, error) {
		got = req
		return &core.BalanceChange{Current: 10, Next: 7}, nil
	}}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodPost, "/api/bulk-skus/sku-1/adjust", `{"quantityDelta":-3,"reason":"Broken"}`, core.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -3, got.Delta)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["current"])
	assert.Equal(t, float64(7), body["next"])

	rec = do(t, h, http.MethodPost, "/api/bulk-skus/sku-1/adjust", `{"quantityDelta":0,"reason":"Broken"}`, core.RoleStaff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/bulk-skus/sku-1/adjust", `{"quantityDelta":2,"reason":"ok"}`, core.RoleStaff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrity_AdminOnly(t *testing.T) {
	svc := &fakeService{}
	h := newTestHandler(svc, nil)

	rec := do(t, h, http.MethodGet, "/api/integrity", "", core.RoleStaff)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, svc.integrityCalls)

	rec = do(t, h, http.MethodGet, "/api/integrity", "", core.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.integrityCalls)
}

func TestRequestID_EchoedOrGenerated(t *testing.T) {
	h := newTestHandler(&fakeService{}, nil)

	rec := do(t, h, http.MethodGet, "/api/health", "", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/api/health", "", "", "X-Request-ID", "bad id!")
	assert.NotEqual(t, "bad id!", rec.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
