// Package safewrite guards every mutation of a native browser store
// behind copy, mutate, verify, atomically-replace semantics. Until the
// final commit the original file is never touched; any failure along
// the way leaves it bit-for-bit intact.
package safewrite

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrLocked reports that the target store is in use by another process.
// The pre-check fails closed: any ambiguity counts as locked.
var ErrLocked = errors.New("store is locked by a running process")

// IntegrityError reports that the mutated copy failed verification.
// The original store is guaranteed unchanged.
type IntegrityError struct {
	Path   string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Detail)
}

// Probe supplies the store-format-specific pieces of the protocol.
type Probe interface {
	// Locked reports whether the store at path is in use. Must not
	// block; a probe that cannot decide reports locked.
	Locked(path string) bool
	// Check opens the store read-only and confirms it is a version this
	// implementation understands, including a quick structural check.
	Check(path string) error
	// Verify runs a full integrity check against the mutated copy.
	Verify(path string) error
	// Sidecars lists side files (write-ahead logs, shared memory) that
	// must travel with the main file when it is copied.
	Sidecars(path string) []string
}

// Logger matches the service-layer logging interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Guard executes write operations against a store under the protocol.
type Guard struct {
	scratch string
	probe   Probe
	logger  Logger
}

// NewGuard creates a Guard writing scratch copies under scratchDir.
func NewGuard(scratchDir string, probe Probe, logger Logger) *Guard {
	return &Guard{scratch: scratchDir, probe: probe, logger: logger}
}

// Replace runs op against a private copy of the store at path and, only
// if op and the subsequent verification succeed, atomically replaces
// the original with the copy.
//
// The five steps, in order: lock pre-check, compatibility check, copy
// to scratch, mutate-and-verify on the copy, commit. A failure in any
// step before commit removes all scratch files and returns with the
// original unchanged.
func (g *Guard) Replace(path string, op func(copyPath string) error) error {
	g.logger.Info("starting guarded write", "path", path)

	if g.probe.Locked(path) {
		return fmt.Errorf("pre-check for %s: %w", path, ErrLocked)
	}

	if err := g.probe.Check(path); err != nil {
		return fmt.Errorf("compatibility check for %s: %w", path, err)
	}

	if err := os.MkdirAll(g.scratch, 0700); err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}

	copyPath := filepath.Join(g.scratch, fmt.Sprintf("%s_%s.tmp", filepath.Base(path), uuid.New().String()))
	g.logger.Debug("copying store to scratch", "copy", copyPath)

	if err := copyFile(path, copyPath); err != nil {
		return fmt.Errorf("copying store to scratch: %w", err)
	}
	var sideCopies []string
	for _, side := range g.probe.Sidecars(path) {
		if _, err := os.Stat(side); err != nil {
			continue
		}
		sideCopy := copyPath + sidecarSuffix(path, side)
		if err := copyFile(side, sideCopy); err != nil {
			g.removeAll(append(sideCopies, copyPath))
			return fmt.Errorf("copying side file %s: %w", side, err)
		}
		sideCopies = append(sideCopies, sideCopy)
	}

	cleanup := func() { g.removeAll(append(sideCopies, copyPath)) }

	if err := op(copyPath); err != nil {
		g.logger.Error("write operation failed, original unchanged", "path", path, "error", err)
		cleanup()
		return err
	}

	if err := g.probe.Verify(copyPath); err != nil {
		g.logger.Error("verification failed, original unchanged", "path", path, "error", err)
		cleanup()
		return &IntegrityError{Path: path, Detail: err.Error()}
	}

	// Commit. The copy is verified; a failed backup is logged but does
	// not block the replacement.
	backupPath := path + ".bak"
	if err := copyFile(path, backupPath); err != nil {
		g.logger.Warn("backup of original failed", "path", backupPath, "error", err)
	} else {
		g.logger.Debug("original backed up", "path", backupPath)
	}

	if err := g.commit(copyPath, path); err != nil {
		g.removeAll(sideCopies)
		return err
	}
	g.removeAll(sideCopies)

	g.logger.Info("guarded write committed", "path", path)
	return nil
}

// commit swaps the verified copy over the original. When rename fails
// (cross-filesystem scratch dir) it falls back to copying over the
// original in place; if that copy also fails the original may be
// partially overwritten, so the verified scratch copy is kept on disk
// and its path surfaces in the error as the recovery point.
func (g *Guard) commit(copyPath, path string) error {
	err := os.Rename(copyPath, path)
	if err == nil {
		return nil
	}
	g.logger.Debug("rename failed, falling back to copy", "error", err)

	if err := overwrite(copyPath, path); err != nil {
		g.logger.Error("fallback copy failed, keeping verified copy", "copy", copyPath, "error", err)
		return fmt.Errorf("replacing original store, verified copy kept at %s: %w", copyPath, err)
	}
	if err := os.Remove(copyPath); err != nil {
		g.logger.Warn("removing scratch copy failed", "path", copyPath, "error", err)
	}
	return nil
}

// sidecarSuffix maps an original side file path to the suffix to append
// to the scratch copy, e.g. places.sqlite-wal -> "-wal".
func sidecarSuffix(mainPath, sidePath string) string {
	base := filepath.Base(mainPath)
	side := filepath.Base(sidePath)
	if len(side) > len(base) && side[:len(base)] == base {
		return side[len(base):]
	}
	return "." + side
}

// removeAll deletes scratch files. Failures are only logged; scratch
// files are namespaced by uuid and harmless if they linger.
func (g *Guard) removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("removing scratch file failed", "path", p, "error", err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// overwrite copies src over dst in place. Unlike copyFile it never
// removes dst on failure: dst here is the live store, and even a
// partial overwrite must stay on disk alongside the kept scratch copy.
func overwrite(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LockFileNames are the sidecar lock files probed for next to a store.
var LockFileNames = []string{"lock", ".parentlock"}

// HasLockFile reports whether a conventional lock file sits next to the
// store at path.
func HasLockFile(path string) bool {
	dir := filepath.Dir(path)
	candidates := append([]string{filepath.Base(path) + ".lock"}, LockFileNames...)
	for _, name := range candidates {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
