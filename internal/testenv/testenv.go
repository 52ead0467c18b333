// Package testenv gates tests that need a live database on environment
// variables and hands them connection settings.
//
// Tests calling SurrealDB or PostgreSQL are skipped unless the corresponding
// variable is set, so the default test run needs no external services.
package testenv

import (
	"os"
	"regexp"
	"strings"
	"testing"
)

const (
	// EnvSurrealDBURL is the WebSocket RPC URL of a SurrealDB instance, for
	// example ws://localhost:8000/rpc.
	EnvSurrealDBURL = "SURREALDB_URL"

	// EnvSurrealDBUser and EnvSurrealDBPass override the root credentials.
	EnvSurrealDBUser = "SURREALDB_USER"
	EnvSurrealDBPass = "SURREALDB_PASS"

	// EnvPostgresDSN is a PostgreSQL connection string.
	EnvPostgresDSN = "POSTGRES_DSN"

	// Namespace is the SurrealDB namespace used by tests.
	Namespace = "ganttsync_test"
)

// SurrealDB holds settings for a live SurrealDB test.
type SurrealDB struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// RequireSurrealDB skips t unless SURREALDB_URL is set. The database name is
// derived from the test name so parallel packages do not share state.
func RequireSurrealDB(t testing.TB) SurrealDB {
	t.Helper()
	u := os.Getenv(EnvSurrealDBURL)
	if u == "" {
		t.Skipf("%s not set", EnvSurrealDBURL)
	}
	return SurrealDB{
		URL:       u,
		Namespace: Namespace,
		Database:  DatabaseName(t),
		Username:  getEnv(EnvSurrealDBUser, "root"),
		Password:  getEnv(EnvSurrealDBPass, "root"),
	}
}

// RequirePostgres skips t unless POSTGRES_DSN is set and returns the DSN.
func RequirePostgres(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(EnvPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvPostgresDSN)
	}
	return dsn
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// DatabaseName turns the test name into an identifier.
func DatabaseName(t testing.TB) string {
	name := strings.ToLower(t.Name())
	name = unsafeChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
