// Package testutil holds shared scaffolding for package tests.
package testutil

import (
	"database/sql"
	"testing"

	"pacs-preloader/lib/telemetry"

	_ "modernc.org/sqlite"
)

// SetupDB opens an in-memory sqlite database with the given schema and
// configures test telemetry. The returned cleanup closes both.
func SetupDB(t testing.TB, name, schema string) (*sql.DB, func()) {
	cleanupTelemetry := telemetry.SetupForTesting(t, "test:"+name)

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			t.Fatal(err)
		}
	}

	return db, func() {
		db.Close()
		cleanupTelemetry()
	}
}
