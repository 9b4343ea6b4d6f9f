// Package watch keeps stores in sync continuously. It combines a
// periodic interval with filesystem notifications on the store files
// themselves, so an edit in one browser propagates without waiting for
// the next tick.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"bmsync/internal/safewrite"
	"bmsync/internal/sync"
)

// Runner executes one sync pass. Satisfied by *sync.Engine.
type Runner interface {
	Sync(opts sync.Options) (*sync.Report, error)
}

// Watcher triggers incremental syncs on a timer and on store file
// changes. File events arm a debounce; browsers write their stores in
// bursts, and syncing mid-burst reads half-written data.
type Watcher struct {
	runner   Runner
	paths    []string
	interval time.Duration
	debounce time.Duration
	logger   safewrite.Logger
}

func New(runner Runner, storePaths []string, interval, debounce time.Duration, logger safewrite.Logger) *Watcher {
	if logger == nil {
		logger = safewrite.NopLogger{}
	}
	return &Watcher{
		runner:   runner,
		paths:    storePaths,
		interval: interval,
		debounce: debounce,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled. Every interval tick and every
// debounced store-file event runs one incremental sync. Sync failures
// are logged and the watch continues.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	// Watch parent directories; browsers replace store files via
	// rename, which drops a watch set on the file itself.
	watched := make(map[string]bool, len(w.paths))
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		watched[filepath.Clean(p)] = true
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", "dir", dir)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(w.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	w.logger.Info("watch started", "stores", len(w.paths), "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil

		case <-ticker.C:
			w.runSync("interval")

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			w.logger.Debug("store changed", "path", event.Name, "op", event.Op.String())
			debounce.Reset(w.debounce)

		case <-debounce.C:
			w.runSync("file change")

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) runSync(trigger string) {
	report, err := w.runner.Sync(sync.Options{Incremental: true})
	if err != nil {
		w.logger.Error("sync failed", "trigger", trigger, "error", err)
		return
	}
	w.logger.Info("sync complete", "trigger", trigger,
		"bookmarks", report.MergedCount, "changes", len(report.Changes), "issues", len(report.Issues))
}
