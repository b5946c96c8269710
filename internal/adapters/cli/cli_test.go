package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"booking-engine/internal/app"
	"booking-engine/internal/core"
)

type fakeService struct {
	app.ApplicationService
	report    *core.IntegrityReport
	adjusted  *app.AdjustStockRequest
	adjustSku string
}

func (f *fakeService) RunIntegrityScan(context.Context) (*core.IntegrityReport, error) {
	return f.report, nil
}

func (f *fakeService) AdjustBulkStock(_ context.Context, _ app.Actor, skuID string, req app.AdjustStockRequest) (*core.BalanceChange, error) {
	f.adjustSku, f.adjusted = skuID, &req
	return &core.BalanceChange{Current: 4, Next: 4 + req.Delta}, nil
}

func (f *fakeService) GetAssetStatuses(_ context.Context, ids []string) (*app.AssetStatusesResult, error) {
	out := map[string]core.EffectiveStatus{}
	for _, id := range ids {
		out[id] = core.EffectiveAvailable
	}
	return &app.AssetStatusesResult{Statuses: out}, nil
}

func TestRun_IntegrityClean(t *testing.T) {
	svc := &fakeService{report: &core.IntegrityReport{}}
	var out bytes.Buffer
	if err := Run(context.Background(), svc, Options{}, []string{"integrity"}, &out); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(out.String(), "OK") {
		t.Errorf("Expected OK in output, got:\n%s", out.String())
	}
}

func TestRun_IntegrityViolations(t *testing.T) {
	svc := &fakeService{report: &core.IntegrityReport{
		Drift: []core.BalanceDrift{{BulkSkuID: "sku-1", LocationID: "loc-1", OnHand: 5, LedgerTotal: 4}},
	}}
	var out bytes.Buffer
	err := Run(context.Background(), svc, Options{}, []string{"integrity"}, &out)
	if !errors.Is(err, ErrIntegrityViolations) {
		t.Fatalf("Expected ErrIntegrityViolations, got %v", err)
	}
	if !strings.Contains(out.String(), "sku sku-1 @ loc-1: on hand 5, ledger 4") {
		t.Errorf("Expected drift line in output, got:\n%s", out.String())
	}
}

func TestRun_Adjust(t *testing.T) {
	svc := &fakeService{}
	var out bytes.Buffer
	err := Run(context.Background(), svc, Options{ActorUserID: "admin-1"},
		[]string{"adjust", "sku-1", "-2", "two", "broken"}, &out)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if svc.adjustSku != "sku-1" || svc.adjusted.Delta != -2 || svc.adjusted.Reason != "two broken" {
		t.Errorf("Unexpected adjustment: sku=%s req=%+v", svc.adjustSku, svc.adjusted)
	}
	if got := out.String(); got != "On hand: 4 -> 2\n" {
		t.Errorf("Expected 'On hand: 4 -> 2', got %q", got)
	}
}

func TestRun_AdjustRequiresActor(t *testing.T) {
	err := Run(context.Background(), &fakeService{}, Options{}, []string{"adjust", "sku-1", "1", "found"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error without ACTOR_USER_ID")
	}
}

func TestRun_StatusesSorted(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), &fakeService{}, Options{}, []string{"statuses", "b", "a"}, &out); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "a ") || !strings.HasPrefix(lines[2], "b ") {
		t.Errorf("Expected header then a, b; got %q", lines)
	}
}

func TestRun_TokenRejectsUnknownRole(t *testing.T) {
	err := Run(context.Background(), &fakeService{}, Options{JWTSecret: "s"}, []string{"token", "u1", "JANITOR"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error for unknown role")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	err := Run(context.Background(), &fakeService{}, Options{}, []string{"bogus"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown command: bogus") {
		t.Fatalf("Expected unknown command error, got %v", err)
	}
}
