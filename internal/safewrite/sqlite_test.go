package safewrite_test

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"bmsync/internal/safewrite"
)

func newTestDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "places.sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO items (name) VALUES ('original')`); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSQLiteProbe(t *testing.T) {
	t.Run("check passes on a healthy database", func(t *testing.T) {
		path := newTestDB(t, t.TempDir())
		if err := (safewrite.SQLiteProbe{}).Check(path); err != nil {
			t.Errorf("Check() error = %v, want nil", err)
		}
	})

	t.Run("check fails on a non-database file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "places.sqlite")
		if err := os.WriteFile(path, []byte("this is not sqlite"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := (safewrite.SQLiteProbe{}).Check(path); err == nil {
			t.Error("Check() error = nil, want failure")
		}
	})

	t.Run("unlocked database reports unlocked", func(t *testing.T) {
		path := newTestDB(t, t.TempDir())
		if (safewrite.SQLiteProbe{}).Locked(path) {
			t.Error("Locked() = true for an idle database")
		}
	})

	t.Run("lock file marks database locked", func(t *testing.T) {
		dir := t.TempDir()
		path := newTestDB(t, dir)
		if err := os.WriteFile(path+".lock", nil, 0644); err != nil {
			t.Fatal(err)
		}
		if !(safewrite.SQLiteProbe{}).Locked(path) {
			t.Error("Locked() = false with lock file present")
		}
	})

	t.Run("missing database reports locked without creating it", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "places.sqlite")
		if !(safewrite.SQLiteProbe{}).Locked(path) {
			t.Error("Locked() = false for a missing database")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Locked() created a file at %s", path)
		}
	})

	t.Run("sidecars name wal and shm", func(t *testing.T) {
		sides := (safewrite.SQLiteProbe{}).Sidecars("/p/places.sqlite")
		if len(sides) != 2 || sides[0] != "/p/places.sqlite-wal" || sides[1] != "/p/places.sqlite-shm" {
			t.Errorf("Sidecars() = %v", sides)
		}
	})
}

func TestGuardReplaceSQLite(t *testing.T) {
	t.Run("commits a verified sqlite mutation", func(t *testing.T) {
		dir := t.TempDir()
		path := newTestDB(t, dir)
		scratch := filepath.Join(dir, "scratch")

		guard := safewrite.NewGuard(scratch, safewrite.SQLiteProbe{}, safewrite.NopLogger{})
		err := guard.Replace(path, func(copyPath string) error {
			db, err := sql.Open("sqlite3", copyPath)
			if err != nil {
				return err
			}
			defer db.Close()
			_, err = db.Exec(`UPDATE items SET name = 'mutated'`)
			return err
		})
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}

		db, err := sql.Open("sqlite3", path)
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		var name string
		if err := db.QueryRow(`SELECT name FROM items`).Scan(&name); err != nil {
			t.Fatal(err)
		}
		if name != "mutated" {
			t.Errorf("item name = %q, want %q", name, "mutated")
		}
	})

	t.Run("corrupting the copy aborts without touching the original", func(t *testing.T) {
		dir := t.TempDir()
		path := newTestDB(t, dir)
		scratch := filepath.Join(dir, "scratch")
		before := hashFile(t, path)

		guard := safewrite.NewGuard(scratch, safewrite.SQLiteProbe{}, safewrite.NopLogger{})
		err := guard.Replace(path, func(copyPath string) error {
			return os.WriteFile(copyPath, []byte("corrupted beyond repair"), 0644)
		})

		var integrityErr *safewrite.IntegrityError
		if !errors.As(err, &integrityErr) {
			t.Fatalf("Replace() error = %v, want *IntegrityError", err)
		}
		if hashFile(t, path) != before {
			t.Error("original database changed after aborted write")
		}
		if n := scratchEntries(t, scratch); n != 0 {
			t.Errorf("scratch entries after abort = %d, want 0", n)
		}
	})
}
