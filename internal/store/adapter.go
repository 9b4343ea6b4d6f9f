// Package store normalizes heterogeneous native bookmark stores behind
// a single adapter contract over the shared tree model.
package store

import (
	"errors"
	"fmt"
	"runtime"

	"bmsync/internal/bookmark"
	"bmsync/internal/safewrite"
)

// ID identifies a supported browser family. Values are stable: they key
// the persisted sync-state file.
type ID string

const (
	Firefox ID = "firefox"
	Chrome  ID = "chrome"
	Brave   ID = "brave"
	Edge    ID = "edge"
	Safari  ID = "safari"
)

// AllIDs lists every supported store in registration order. The order
// is the merge precedence the orchestrator uses.
func AllIDs() []ID {
	return []ID{Firefox, Chrome, Brave, Edge, Safari}
}

// DisplayName returns the human-readable browser name.
func (id ID) DisplayName() string {
	switch id {
	case Firefox:
		return "Firefox"
	case Chrome:
		return "Chrome"
	case Brave:
		return "Brave"
	case Edge:
		return "Edge"
	case Safari:
		return "Safari"
	default:
		return string(id)
	}
}

// Parse maps a config or CLI string to a store ID.
func Parse(s string) (ID, error) {
	for _, id := range AllIDs() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown store: %q", s)
}

// ErrNotFound reports that a store does not exist on this machine or
// the platform is unsupported for that browser. Non-fatal: the adapter
// is excluded from the sync.
var ErrNotFound = errors.New("store not found")

// ReadError reports malformed or unsupported native data. The adapter
// is excluded from the merge set; the sync continues.
type ReadError struct {
	Store ID
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s store: %v", e.Store.DisplayName(), e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Adapter is the uniform contract over one native store format.
//
// Write must only be invoked through the safe mutation guard; concrete
// adapters route it there internally and never touch the original file
// directly. Read must not mutate the source. A store with zero
// extractable items reads as an empty tree, not an error.
type Adapter interface {
	Store() ID
	DetectPath() (string, error)
	Read() ([]bookmark.Node, error)
	Write(nodes []bookmark.Node) error
	Backup() (string, error)
	Validate(nodes []bookmark.Node) (bool, error)
}

// Env carries the filesystem context adapters operate in. Paths are
// injected at construction so tests can point adapters at fixtures
// without touching process environment.
type Env struct {
	Home    string
	Scratch string
	// OS overrides runtime.GOOS when non-empty (tests).
	OS string
	// Overrides maps a store to an explicit native-store path,
	// bypassing platform detection.
	Overrides map[ID]string

	Logger safewrite.Logger
}

func (e Env) os() string {
	if e.OS != "" {
		return e.OS
	}
	return runtime.GOOS
}

func (e Env) logger() safewrite.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return safewrite.NopLogger{}
}

func (e Env) override(id ID) (string, bool) {
	p, ok := e.Overrides[id]
	return p, ok && p != ""
}

// New constructs the adapter for a single store.
func New(id ID, env Env) (Adapter, error) {
	switch id {
	case Firefox:
		return NewFirefoxAdapter(env), nil
	case Chrome, Brave, Edge:
		return NewChromiumAdapter(id, env), nil
	case Safari:
		return NewSafariAdapter(env), nil
	default:
		return nil, fmt.Errorf("unknown store: %s", id)
	}
}

// RestoreGuard returns a mutation guard that checks the given store's
// native format, for replacing a live store with a restored backup
// payload.
func RestoreGuard(id ID, env Env) (*safewrite.Guard, error) {
	switch id {
	case Firefox:
		return safewrite.NewGuard(env.Scratch, safewrite.SQLiteProbe{}, env.logger()), nil
	case Chrome, Brave, Edge:
		probe := safewrite.FileProbe{Parse: func(path string) error {
			_, err := readChromiumDocument(path)
			return err
		}}
		return safewrite.NewGuard(env.Scratch, probe, env.logger()), nil
	case Safari:
		probe := safewrite.FileProbe{Parse: func(path string) error {
			_, err := readSafariRoot(path)
			return err
		}}
		return safewrite.NewGuard(env.Scratch, probe, env.logger()), nil
	default:
		return nil, fmt.Errorf("unknown store: %s", id)
	}
}

// NewAll constructs adapters for the requested stores in the given
// order. An empty list means every supported store.
func NewAll(ids []ID, env Env) ([]Adapter, error) {
	if len(ids) == 0 {
		ids = AllIDs()
	}
	adapters := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		a, err := New(id, env)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// validateTree is the shared Validate implementation: the whole tree
// must satisfy the folder-XOR-url invariant.
func validateTree(nodes []bookmark.Node) (bool, error) {
	if err := bookmark.Validate(nodes); err != nil {
		return false, err
	}
	return true, nil
}
