// Package sync orchestrates a full bookmark synchronization run across
// all configured stores: detect, read, merge, back up, write, verify.
// Failures are isolated per store; one unreadable or locked store never
// blocks the others.
package sync

import (
	"errors"
	"fmt"
	"os"

	"bmsync/internal/bookmark"
	"bmsync/internal/diff"
	"bmsync/internal/htmlio"
	"bmsync/internal/merge"
	"bmsync/internal/safewrite"
	"bmsync/internal/store"
)

// ErrNoStoresDetected means no supported browser store exists on this
// machine. The only error that aborts a run before it starts.
var ErrNoStoresDetected = errors.New("no bookmark stores detected")

// Options control a single run.
type Options struct {
	// DryRun stops after the merge and reports what would happen.
	DryRun bool
	// Verbose adds per-bookmark detail to the log.
	Verbose bool
	// Incremental diffs each store against the saved state and skips
	// the write phase entirely when nothing changed.
	Incremental bool
}

// Engine runs sync operations over a fixed set of adapters.
type Engine struct {
	adapters  []store.Adapter
	statePath string
	logger    safewrite.Logger
	clock     Clock
}

func NewEngine(adapters []store.Adapter, statePath string, logger safewrite.Logger, clock Clock) *Engine {
	if logger == nil {
		logger = safewrite.NopLogger{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{adapters: adapters, statePath: statePath, logger: logger, clock: clock}
}

// source is one successfully read store.
type source struct {
	adapter store.Adapter
	nodes   []bookmark.Node
}

// Sync executes the full pipeline and reports everything it did. The
// returned report is non-nil whenever the run got past detection.
func (e *Engine) Sync(opts Options) (*Report, error) {
	return e.run(nil, opts)
}

// ImportHTML parses a Netscape bookmark HTML file and runs a sync with
// its tree as an additional source. Imported bookmarks participate in
// dedup like any store.
func (e *Engine) ImportHTML(path string, opts Options) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	nodes, err := htmlio.Parse(f)
	if err != nil {
		return nil, err
	}
	e.logger.Info("parsed import file", "path", path, "bookmarks", bookmark.Count(nodes))
	return e.run([]merge.Source{{ID: "import", Nodes: nodes}}, opts)
}

func (e *Engine) run(extra []merge.Source, opts Options) (*Report, error) {
	report := newReport()
	report.DryRun = opts.DryRun
	now := e.clock.Now()

	detected := e.detect()
	if len(detected) == 0 {
		return nil, ErrNoStoresDetected
	}

	sources := e.readAll(detected, report, opts)
	if len(sources) == 0 {
		return report, fmt.Errorf("every detected store failed to read")
	}

	state, err := diff.Load(e.statePath)
	if err != nil {
		report.addWarning("sync state unreadable, running full sync: %v", err)
		state = diff.NewState()
	}

	mergeInput := make([]merge.Source, 0, len(sources)+len(extra))
	for _, s := range sources {
		mergeInput = append(mergeInput, merge.Source{ID: s.adapter.Store(), Nodes: s.nodes})
	}
	mergeInput = append(mergeInput, extra...)

	result := merge.Trees(mergeInput)
	merged := result.Nodes
	report.MergedCount = bookmark.Count(merged)
	report.DuplicatesRemoved = result.DuplicatesRemoved
	e.logger.Info("merged stores",
		"sources", len(mergeInput), "bookmarks", report.MergedCount,
		"duplicates_removed", report.DuplicatesRemoved)

	if opts.Incremental {
		sets := make([][]diff.Change, 0, len(sources))
		for _, s := range sources {
			changes := diff.Detect(bookmark.Flatten(s.nodes), state.Store(s.adapter.Store()), s.adapter.Store(), now)
			sets = append(sets, changes)
		}
		report.Changes = diff.Merge(sets...)
		if opts.Verbose {
			for _, c := range report.Changes {
				e.logger.Info("change detected", "kind", c.Kind.String(), "url", c.URL, "source", c.Source)
			}
		}
		if len(report.Changes) == 0 && len(extra) == 0 && !state.LastSyncTime.IsZero() {
			e.logger.Info("no changes since last sync")
			return report, nil
		}
	}

	if opts.DryRun {
		return report, nil
	}

	writable := e.backupAll(sources, report)
	e.writeAll(writable, merged, report)
	e.postValidate(report, merged)

	mergedHashes := diff.Hashes(bookmark.Flatten(merged))
	written := make(map[store.ID]bool, len(report.Written))
	for _, id := range report.Written {
		written[id] = true
	}
	for _, s := range sources {
		id := s.adapter.Store()
		hashes := mergedHashes
		if !written[id] {
			hashes = diff.Hashes(bookmark.Flatten(s.nodes))
		}
		state.SetStore(id, diff.StoreState{BookmarkHashes: hashes, LastModified: now})
	}
	state.LastSyncTime = now
	if err := state.Save(e.statePath); err != nil {
		report.addWarning("saving sync state: %v", err)
	}

	return report, nil
}

func (e *Engine) detect() []store.Adapter {
	var detected []store.Adapter
	for _, a := range e.adapters {
		path, err := a.DetectPath()
		if err != nil {
			e.logger.Debug("store not detected", "store", a.Store(), "reason", err)
			continue
		}
		e.logger.Debug("store detected", "store", a.Store(), "path", path)
		detected = append(detected, a)
	}
	return detected
}

func (e *Engine) readAll(detected []store.Adapter, report *Report, opts Options) []source {
	var sources []source
	for _, a := range detected {
		nodes, err := a.Read()
		if err != nil {
			report.addIssue(a.Store(), PhaseRead, err.Error())
			e.logger.Error("reading store failed", "store", a.Store(), "error", err)
			continue
		}
		count := bookmark.Count(nodes)
		report.SourceCounts[a.Store()] = count
		e.logger.Info("read store", "store", a.Store(), "bookmarks", count)
		if opts.Verbose {
			for _, entry := range bookmark.Flatten(nodes) {
				e.logger.Debug("bookmark", "store", a.Store(), "url", entry.URL, "folder", entry.FolderPath)
			}
		}
		sources = append(sources, source{adapter: a, nodes: nodes})
	}
	return sources
}

// backupAll backs up every readable store. A store whose backup fails
// is excluded from the write phase; writing without a rollback point is
// never worth it.
func (e *Engine) backupAll(sources []source, report *Report) []store.Adapter {
	var writable []store.Adapter
	for _, s := range sources {
		path, err := s.adapter.Backup()
		if err != nil {
			report.addIssue(s.adapter.Store(), PhaseBackup, err.Error())
			e.logger.Error("backup failed, skipping write", "store", s.adapter.Store(), "error", err)
			continue
		}
		report.Backups[s.adapter.Store()] = path
		writable = append(writable, s.adapter)
	}
	return writable
}

func (e *Engine) writeAll(writable []store.Adapter, merged []bookmark.Node, report *Report) {
	for _, a := range writable {
		if err := a.Write(merged); err != nil {
			report.addIssue(a.Store(), PhaseWrite, err.Error())
			if errors.Is(err, safewrite.ErrLocked) {
				e.logger.Warn("store locked, skipped", "store", a.Store())
			} else {
				e.logger.Error("writing store failed", "store", a.Store(), "error", err)
			}
			continue
		}
		report.Written = append(report.Written, a.Store())
		e.logger.Info("wrote store", "store", a.Store())
	}
}

// postValidate re-reads every written store and checks the write took.
// Problems here are warnings: the data is already committed and backed
// up, so the user decides what to do next.
func (e *Engine) postValidate(report *Report, merged []bookmark.Node) {
	byID := make(map[store.ID]store.Adapter, len(e.adapters))
	for _, a := range e.adapters {
		byID[a.Store()] = a
	}
	for _, id := range report.Written {
		a := byID[id]
		nodes, err := a.Read()
		if err != nil {
			report.addWarning("%s: re-read after write failed: %v", id.DisplayName(), err)
			continue
		}
		if err := bookmark.Validate(nodes); err != nil {
			report.addWarning("%s: written tree is invalid: %v", id.DisplayName(), err)
			continue
		}
		got, want := bookmark.Count(nodes), bookmark.Count(merged)
		if got != want {
			report.addWarning("%s: wrote %d bookmarks but read back %d", id.DisplayName(), want, got)
		}
	}
}

// Validate checks every store without modifying anything.
func (e *Engine) Validate(detailed bool) (*Report, error) {
	report := newReport()
	for _, a := range e.adapters {
		id := a.Store()
		if _, err := a.DetectPath(); err != nil {
			report.addIssue(id, PhaseDetect, "not detected")
			continue
		}
		nodes, err := a.Read()
		if err != nil {
			report.addIssue(id, PhaseRead, err.Error())
			continue
		}
		report.SourceCounts[id] = bookmark.Count(nodes)
		if ok, err := a.Validate(nodes); !ok {
			report.addIssue(id, PhaseValidate, err.Error())
			continue
		}
		if detailed {
			if dups := bookmark.DuplicateURLs(nodes); dups > 0 {
				report.addWarning("%s: %d duplicate URLs", id.DisplayName(), dups)
			}
			report.addWarning("%s: %d folders", id.DisplayName(), bookmark.CountFolders(nodes))
		}
	}
	return report, nil
}

// ListStores probes every adapter and reports what exists on this
// machine.
func (e *Engine) ListStores() []Detection {
	detections := make([]Detection, 0, len(e.adapters))
	for _, a := range e.adapters {
		d := Detection{Store: a.Store()}
		if path, err := a.DetectPath(); err == nil {
			d.Path = path
			d.Found = true
		}
		detections = append(detections, d)
	}
	return detections
}

// Cleanup prunes empty folders and collapses same-name sibling folders
// in every writable store. Each store is backed up before its write,
// same as a sync run. With DryRun set, nothing is written and the
// report shows what each store would lose.
func (e *Engine) Cleanup(opts Options) (*Report, error) {
	report := newReport()
	report.DryRun = opts.DryRun

	detected := e.detect()
	if len(detected) == 0 {
		return nil, ErrNoStoresDetected
	}
	sources := e.readAll(detected, report, opts)
	if len(sources) == 0 {
		return report, fmt.Errorf("every detected store failed to read")
	}

	var changed []source
	for _, s := range sources {
		id := s.adapter.Store()
		before := bookmark.CountFolders(s.nodes)
		cleaned := merge.MergeSiblingFolders(merge.RemoveEmptyFolders(s.nodes))
		removed := before - bookmark.CountFolders(cleaned)
		if removed == 0 {
			e.logger.Info("store already clean", "store", id)
			continue
		}
		e.logger.Info("folders to remove", "store", id, "count", removed)
		report.addWarning("%s: %d redundant folder(s)", id.DisplayName(), removed)
		changed = append(changed, source{adapter: s.adapter, nodes: cleaned})
	}

	if opts.DryRun || len(changed) == 0 {
		return report, nil
	}

	writable := e.backupAll(changed, report)
	byID := make(map[store.ID][]bookmark.Node, len(changed))
	for _, s := range changed {
		byID[s.adapter.Store()] = s.nodes
	}
	for _, a := range writable {
		if err := a.Write(byID[a.Store()]); err != nil {
			report.addIssue(a.Store(), PhaseWrite, err.Error())
			e.logger.Error("writing store failed", "store", a.Store(), "error", err)
			continue
		}
		report.Written = append(report.Written, a.Store())
		e.logger.Info("wrote store", "store", a.Store())
	}
	return report, nil
}

// ExportHTML merges all readable stores and writes the result as
// Netscape bookmark HTML. Returns the number of exported bookmarks.
func (e *Engine) ExportHTML(path string) (int, error) {
	detected := e.detect()
	if len(detected) == 0 {
		return 0, ErrNoStoresDetected
	}
	sources := e.readAll(detected, newReport(), Options{})
	if len(sources) == 0 {
		return 0, fmt.Errorf("every detected store failed to read")
	}

	mergeInput := make([]merge.Source, 0, len(sources))
	for _, s := range sources {
		mergeInput = append(mergeInput, merge.Source{ID: s.adapter.Store(), Nodes: s.nodes})
	}
	merged := merge.Trees(mergeInput).Nodes

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := htmlio.Export(f, merged); err != nil {
		return 0, err
	}
	count := bookmark.Count(merged)
	e.logger.Info("exported bookmarks", "path", path, "bookmarks", count)
	return count, nil
}
