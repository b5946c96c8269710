package db

import (
	"context"
	"testing"
)

func TestNewPool_RequiresURL(t *testing.T) {
	if _, err := NewPool(context.Background(), ""); err == nil || err.Error() != "DATABASE_URL not set" {
		t.Errorf("Expected missing URL error, got %v", err)
	}
}

func TestNewPool_RejectsMalformedURL(t *testing.T) {
	if _, err := NewPool(context.Background(), "postgres://%zz"); err == nil {
		t.Error("Expected parse error for malformed URL")
	}
}
