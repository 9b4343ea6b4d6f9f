package watch_test

import (
	"context"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"bmsync/internal/safewrite"
	"bmsync/internal/sync"
	"bmsync/internal/watch"
)

type countingRunner struct {
	mu    stdsync.Mutex
	count int
	fired chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{fired: make(chan struct{}, 16)}
}

func (r *countingRunner) Sync(opts sync.Options) (*sync.Report, error) {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	select {
	case r.fired <- struct{}{}:
	default:
	}
	return &sync.Report{}, nil
}

func (r *countingRunner) syncs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func TestRunExitsOnCancel(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(storePath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := newCountingRunner()
	w := watch.New(runner, []string{storePath}, time.Hour, time.Hour, safewrite.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not exit after cancel")
	}
}

func TestFileChangeTriggersSync(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(storePath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := newCountingRunner()
	w := watch.New(runner, []string{storePath}, time.Hour, 50*time.Millisecond, safewrite.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to register, then touch the store file.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(storePath, []byte(`{"changed":true}`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-runner.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("file change did not trigger a sync")
	}
}

func TestUnrelatedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(storePath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := newCountingRunner()
	w := watch.New(runner, []string{storePath}, time.Hour, 50*time.Millisecond, safewrite.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-runner.fired:
		t.Fatal("unrelated file triggered a sync")
	case <-time.After(500 * time.Millisecond):
	}
	if runner.syncs() != 0 {
		t.Errorf("syncs = %d, want 0", runner.syncs())
	}
}

func TestIntervalTriggersSync(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "Bookmarks")
	if err := os.WriteFile(storePath, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := newCountingRunner()
	w := watch.New(runner, []string{storePath}, 100*time.Millisecond, time.Hour, safewrite.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-runner.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("interval did not trigger a sync")
	}
}
