package sync

import (
	"fmt"
	"sort"
	"strings"

	"bmsync/internal/diff"
	"bmsync/internal/store"
)

// Phase names the stage of a sync run an issue occurred in.
type Phase string

const (
	PhaseDetect   Phase = "detect"
	PhaseRead     Phase = "read"
	PhaseMerge    Phase = "merge"
	PhaseBackup   Phase = "backup"
	PhaseWrite    Phase = "write"
	PhaseValidate Phase = "validate"
)

// Issue is one store-level problem from a run. Issues never abort the
// run; each marks a store that was skipped or degraded.
type Issue struct {
	Store  store.ID
	Phase  Phase
	Reason string
}

// Detection is one store's probe result.
type Detection struct {
	Store store.ID
	Path  string
	Found bool
}

// Report collects everything a sync run did and found.
type Report struct {
	SourceCounts      map[store.ID]int
	MergedCount       int
	DuplicatesRemoved int
	Changes           []diff.Change
	Backups           map[store.ID]string
	Written           []store.ID
	Issues            []Issue
	Warnings          []string
	DryRun            bool
}

func newReport() *Report {
	return &Report{
		SourceCounts: make(map[store.ID]int),
		Backups:      make(map[store.ID]string),
	}
}

func (r *Report) addIssue(id store.ID, phase Phase, reason string) {
	r.Issues = append(r.Issues, Issue{Store: id, Phase: phase, Reason: reason})
}

func (r *Report) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Summary renders the report for terminal output.
func (r *Report) Summary() string {
	var b strings.Builder

	if r.DryRun {
		b.WriteString("Dry run, no store was modified.\n")
	}

	ids := make([]store.ID, 0, len(r.SourceCounts))
	for id := range r.SourceCounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(&b, "  %-10s %d bookmarks\n", id.DisplayName()+":", r.SourceCounts[id])
	}

	fmt.Fprintf(&b, "Merged: %d bookmarks", r.MergedCount)
	if r.DuplicatesRemoved > 0 {
		fmt.Fprintf(&b, " (%d duplicates removed)", r.DuplicatesRemoved)
	}
	b.WriteString("\n")

	if len(r.Changes) > 0 {
		fmt.Fprintf(&b, "Changes since last sync: %d\n", len(r.Changes))
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "  %-8s %s\n", c.Kind, c.URL)
		}
	}

	if len(r.Written) > 0 {
		names := make([]string, 0, len(r.Written))
		for _, id := range r.Written {
			names = append(names, id.DisplayName())
		}
		fmt.Fprintf(&b, "Written: %s\n", strings.Join(names, ", "))
	}

	for _, issue := range r.Issues {
		fmt.Fprintf(&b, "Issue: %s (%s): %s\n", issue.Store.DisplayName(), issue.Phase, issue.Reason)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}

	return b.String()
}
