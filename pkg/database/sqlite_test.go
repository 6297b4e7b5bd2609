package database

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestSQLiteMigrationsAreRepeatable(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "m.db"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := MigrateSQLite(ctx, db); err != nil {
			t.Fatalf("MigrateSQLite run %d: %v", i+1, err)
		}
	}
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("max open conns = %d, want 1", got)
	}
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	var timeout, fk int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if timeout != 5000 || fk != 0 {
		t.Fatalf("busy_timeout = %d foreign_keys = %d, want 5000 and 0", timeout, fk)
	}

	insert := `INSERT INTO bookings (id, event_id, user_id, attendees, status, created_at, updated_at)
		VALUES (?, 'e1', 'u1', 1, 'confirmed', datetime('now'), datetime('now'))`
	if _, err := db.ExecContext(ctx, insert, "b1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, insert, "b2"); err == nil {
		t.Fatal("second booking for the same user and event was accepted")
	}
}

func TestSQLitePragmasSurviveReconnect(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "r.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer db.Close()

	// Drop the pooled connection so the next query dials a fresh one.
	db.SetMaxIdleConns(0)
	db.SetMaxIdleConns(1)
	var timeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatal(err)
	}
	if timeout != 5000 {
		t.Fatalf("busy_timeout on new connection = %d, want 5000", timeout)
	}
}

func TestSQLiteDSN(t *testing.T) {
	for path, prefix := range map[string]string{
		"/data/app.db":               "file:/data/app.db?",
		"file:/data/app.db":          "file:/data/app.db?",
		"file:/data/app.db?mode=rwc": "file:/data/app.db?mode=rwc&",
	} {
		dsn := sqliteDSN(path)
		if !strings.HasPrefix(dsn, prefix) {
			t.Fatalf("sqliteDSN(%q) = %q, want prefix %q", path, dsn, prefix)
		}
		q, err := url.ParseQuery(dsn[len(prefix):])
		if err != nil {
			t.Fatal(err)
		}
		if got := q["_pragma"]; len(got) != len(sqlitePragmas) || got[0] != "busy_timeout(5000)" {
			t.Fatalf("pragmas = %v", got)
		}
	}
}

func TestNewSQLiteRequiresPath(t *testing.T) {
	if _, err := NewSQLite(context.Background(), "", nil); err == nil {
		t.Fatal("empty path accepted")
	}
}
