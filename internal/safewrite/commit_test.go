package safewrite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// White-box tests for the commit step. The rename fallback cannot be
// reached through Replace in a single-filesystem temp dir, so it is
// exercised directly.

func TestCommitRenamesCopyOverOriginal(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(store, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	copyPath := filepath.Join(dir, "Bookmarks_copy.tmp")
	if err := os.WriteFile(copyPath, []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}

	g := NewGuard(dir, FileProbe{Parse: func(string) error { return nil }}, NopLogger{})
	if err := g.commit(copyPath, store); err != nil {
		t.Fatalf("commit() error = %v", err)
	}

	got, err := os.ReadFile(store)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("store content = %q, want %q", got, "new")
	}
	if _, err := os.Stat(copyPath); !os.IsNotExist(err) {
		t.Error("scratch copy still present after commit")
	}
}

func TestCommitFallbackFailureKeepsCopyAndStore(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(store, []byte(`{"roots":{}}`), 0644); err != nil {
		t.Fatal(err)
	}
	// A directory can be neither renamed over a file nor read as one,
	// so both commit strategies fail.
	badCopy := filepath.Join(dir, "scratch-copy")
	if err := os.Mkdir(badCopy, 0755); err != nil {
		t.Fatal(err)
	}

	g := NewGuard(dir, FileProbe{Parse: func(string) error { return nil }}, NopLogger{})
	err := g.commit(badCopy, store)
	if err == nil {
		t.Fatal("commit() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), badCopy) {
		t.Errorf("commit() error = %v, want the kept copy path in it", err)
	}

	// The live store must never be deleted, and the verified copy must
	// survive as the recovery point.
	if _, statErr := os.Stat(store); statErr != nil {
		t.Errorf("live store gone after failed commit: %v", statErr)
	}
	if _, statErr := os.Stat(badCopy); statErr != nil {
		t.Errorf("verified copy gone after failed commit: %v", statErr)
	}
}

type recordingLogger struct {
	NopLogger
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }

func TestRemoveAllLogsFailures(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory cannot be removed with os.Remove.
	stubborn := filepath.Join(dir, "stuck")
	if err := os.MkdirAll(filepath.Join(stubborn, "child"), 0755); err != nil {
		t.Fatal(err)
	}
	gone := filepath.Join(dir, "already-gone")

	logger := &recordingLogger{}
	g := NewGuard(dir, FileProbe{Parse: func(string) error { return nil }}, logger)

	g.removeAll([]string{stubborn, gone})

	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want exactly one for the undeletable path", logger.warns)
	}
}

func TestOverwriteKeepsDestinationOnFailure(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(dst, []byte("live"), 0644); err != nil {
		t.Fatal(err)
	}

	// Copying from a directory fails mid-stream, after dst is opened.
	src := filepath.Join(dir, "not-a-file")
	if err := os.Mkdir(src, 0755); err != nil {
		t.Fatal(err)
	}

	if err := overwrite(src, dst); err == nil {
		t.Fatal("overwrite() error = nil, want failure")
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination removed on failed overwrite: %v", err)
	}
}
