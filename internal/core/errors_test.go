package core

import (
	"fmt"
	"net/http"
	"testing"
)

func TestErrorKind_Status(t *testing.T) {
	cases := map[ErrorKind]int{
		KindValidation:     http.StatusBadRequest,
		KindIncompleteScan: http.StatusBadRequest,
		KindConflict:       http.StatusConflict,
		KindNotFound:       http.StatusNotFound,
		KindForbidden:      http.StatusForbidden,
		ErrorKind("OTHER"): http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestAsError_UnwrapsWrapped(t *testing.T) {
	report := newAvailabilityReport()
	wrapped := fmt.Errorf("create failed: %w", Conflict(report, "Availability conflict"))

	e, ok := AsError(wrapped)
	if !ok {
		t.Fatal("Expected AsError to find the engine error")
	}
	if e.Kind != KindConflict || e.Message != "Availability conflict" {
		t.Errorf("Unexpected error: %+v", e)
	}
	if e.Data != report {
		t.Error("Expected the attached report to survive wrapping")
	}
	if IsKind(wrapped, KindValidation) {
		t.Error("Expected IsKind(VALIDATION) to be false")
	}
	if _, ok := AsError(fmt.Errorf("plain")); ok {
		t.Error("Expected plain errors not to be engine errors")
	}
}

func TestValidationf_Formats(t *testing.T) {
	err := Validationf("phase %s does not match", "CHECKIN")
	if err.Error() != "phase CHECKIN does not match" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
