package config

import (
	"os"
	"testing"
	"time"
)

// unsetenv removes key for the duration of the test. envconfig treats a set
// but empty variable as a value, so defaults only apply to unset keys.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/booking_test")
	unsetenv(t, "SERVER_PORT")
	unsetenv(t, "SERIALIZABLE_RETRIES")
	unsetenv(t, "IDEMPOTENCY_TTL")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.ServerPort != "8080" {
		t.Errorf("Expected default port 8080, got %q", c.ServerPort)
	}
	if c.SerializableRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", c.SerializableRetries)
	}
	if c.IdempotencyTTL != 24*time.Hour {
		t.Errorf("Expected 24h idempotency TTL, got %s", c.IdempotencyTTL)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	unsetenv(t, "DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error when DATABASE_URL is empty")
	}
}

func TestOrigins(t *testing.T) {
	c := Config{AllowedOrigins: " https://a.example , ,https://b.example"}
	got := c.Origins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("Unexpected origins: %v", got)
	}
}
