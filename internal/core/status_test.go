package core

import (
	"testing"
	"time"
)

func TestDeriveEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	current := TimeRange{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}
	future := TimeRange{Start: now.Add(24 * time.Hour), End: now.Add(26 * time.Hour)}
	endsNow := TimeRange{Start: now.Add(-2 * time.Hour), End: now}

	openCheckout := ActiveAllocation{Kind: BookingKindCheckout, BookingStatus: BookingStatusOpen, Window: future}
	currentReservation := ActiveAllocation{Kind: BookingKindReservation, BookingStatus: BookingStatusBooked, Window: current}

	cases := []struct {
		name   string
		stored AssetStatus
		allocs []ActiveAllocation
		want   EffectiveStatus
	}{
		{"idle", AssetStatusAvailable, nil, EffectiveAvailable},
		{"maintenance wins over checkout", AssetStatusMaintenance, []ActiveAllocation{openCheckout}, EffectiveMaintenance},
		{"retired wins over reservation", AssetStatusRetired, []ActiveAllocation{currentReservation}, EffectiveRetired},
		{"open checkout regardless of window", AssetStatusAvailable, []ActiveAllocation{openCheckout}, EffectiveCheckedOut},
		{"checkout beats reservation", AssetStatusAvailable, []ActiveAllocation{currentReservation, openCheckout}, EffectiveCheckedOut},
		{"current reservation", AssetStatusAvailable, []ActiveAllocation{currentReservation}, EffectiveReserved},
		{"future reservation", AssetStatusAvailable, []ActiveAllocation{{Kind: BookingKindReservation, BookingStatus: BookingStatusBooked, Window: future}}, EffectiveAvailable},
		{"reservation ending now", AssetStatusAvailable, []ActiveAllocation{{Kind: BookingKindReservation, BookingStatus: BookingStatusBooked, Window: endsNow}}, EffectiveAvailable},
		{"completed checkout", AssetStatusAvailable, []ActiveAllocation{{Kind: BookingKindCheckout, BookingStatus: BookingStatusCompleted, Window: current}}, EffectiveAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveEffectiveStatus(tc.stored, tc.allocs, now); got != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestAllocationCheckIDs_OnlyAssetsInRotation(t *testing.T) {
	got := allocationCheckIDs(map[string]AssetStatus{
		"asset-3": AssetStatusAvailable,
		"asset-1": AssetStatusAvailable,
		"asset-2": AssetStatusMaintenance,
		"asset-4": AssetStatusRetired,
	})
	if len(got) != 2 || got[0] != "asset-1" || got[1] != "asset-3" {
		t.Errorf("Expected [asset-1 asset-3], got %v", got)
	}
	if got := allocationCheckIDs(map[string]AssetStatus{"asset-2": AssetStatusRetired}); len(got) != 0 {
		t.Errorf("Expected no ids, got %v", got)
	}
}
