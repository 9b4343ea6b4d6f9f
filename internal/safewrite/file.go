package safewrite

// FileProbe implements Probe for plain-file stores (Chromium JSON
// documents, Safari property lists). Compatibility and verification are
// both a full re-parse by the owning adapter.
type FileProbe struct {
	// Parse must read the file at path and fail if it is not a
	// well-formed store of the adapter's format.
	Parse func(path string) error
}

// Locked checks sidecar lock files only; plain-file stores have no
// transactional liveness probe.
func (p FileProbe) Locked(path string) bool {
	return HasLockFile(path)
}

func (p FileProbe) Check(path string) error { return p.Parse(path) }

func (p FileProbe) Verify(path string) error { return p.Parse(path) }

func (p FileProbe) Sidecars(string) []string { return nil }

// NopLogger discards all log output. Use in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
