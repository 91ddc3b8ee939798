package testutil

import (
	"os"
	"testing"
)

// RequirePostgres skips the test unless CHARLA_TEST_POSTGRES_DSN is
// set, and returns the DSN. Use this for tests that need a live
// database.
func RequirePostgres(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CHARLA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skipping postgres test: CHARLA_TEST_POSTGRES_DSN is not set")
	}
	return dsn
}

// SkipIfNoNetwork skips the test if CHARLA_TEST_SKIP_NETWORK is set.
// Use this for tests that bind TCP listeners, which may not be
// available in sandboxed environments.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("CHARLA_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: CHARLA_TEST_SKIP_NETWORK is set")
	}
}
