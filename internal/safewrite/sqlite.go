package safewrite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteProbe implements Probe for SQLite-backed stores (Firefox
// places.sqlite and friends).
type SQLiteProbe struct{}

// Locked probes for sidecar lock files first, then opens the database
// and attempts an immediate exclusive transaction. The busy timeout is
// zero so the probe never blocks; any failure along the way is treated
// as locked. mode=rw keeps the probe from creating an empty database
// when the path does not exist.
func (SQLiteProbe) Locked(path string) bool {
	if HasLockFile(path) {
		return true
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=rw&_busy_timeout=0", path))
	if err != nil {
		return true
	}
	defer db.Close()

	// Pin one connection; the pragma and the transaction must not land
	// on different pool connections.
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		return true
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA locking_mode = EXCLUSIVE"); err != nil {
		return true
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return true
	}
	_, _ = conn.ExecContext(ctx, "ROLLBACK")
	return false
}

// Check opens the database read-only and confirms it is readable by the
// linked SQLite, records its schema version, and runs a quick
// structural integrity check.
func (SQLiteProbe) Check(path string) error {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("opening read-only: %w", err)
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return fmt.Errorf("querying sqlite version: %w", err)
	}

	var schemaVersion int
	if err := db.QueryRow("PRAGMA user_version").Scan(&schemaVersion); err != nil {
		return fmt.Errorf("querying schema version: %w", err)
	}

	var integrity string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&integrity); err != nil {
		return fmt.Errorf("running quick check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("quick check reported %q", integrity)
	}
	return nil
}

// Verify runs a full integrity check against the mutated copy.
func (SQLiteProbe) Verify(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening copy: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check reported %q", integrity)
	}
	return nil
}

// Sidecars returns the write-ahead log and shared-memory paths that
// accompany a SQLite database.
func (SQLiteProbe) Sidecars(path string) []string {
	return []string{path + "-wal", path + "-shm"}
}
