package diff

import (
	"sort"
	"time"

	"bmsync/internal/bookmark"
	"bmsync/internal/store"
)

// Kind classifies a detected change.
type Kind int

const (
	Added Kind = iota
	Modified
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is one bookmark-level difference between a store's current
// contents and its last recorded snapshot.
type Change struct {
	URL        string
	Title      string
	FolderPath string
	Kind       Kind
	Timestamp  time.Time
	Source     store.ID
}

// Hashes fingerprints the entries, keyed by normalized URL. Later
// entries with the same normalized URL overwrite earlier ones, matching
// how the stores themselves treat a URL as one bookmark.
func Hashes(entries []bookmark.Entry) map[string]string {
	hashes := make(map[string]string, len(entries))
	for _, e := range entries {
		hashes[bookmark.NormalizeURL(e.URL)] = bookmark.FingerprintEntry(e)
	}
	return hashes
}

// Detect compares the current entries against the prior snapshot. A URL
// absent from the snapshot is added, a URL whose fingerprint moved is
// modified, and a snapshot URL no longer present is deleted. Deletions
// are emitted in URL order so repeated runs produce identical output.
func Detect(entries []bookmark.Entry, prior StoreState, source store.ID, now time.Time) []Change {
	var changes []Change
	current := make(map[string]bool, len(entries))

	for _, e := range entries {
		key := bookmark.NormalizeURL(e.URL)
		current[key] = true
		prev, known := prior.BookmarkHashes[key]
		switch {
		case !known:
			changes = append(changes, Change{
				URL: e.URL, Title: e.Title, FolderPath: e.FolderPath,
				Kind: Added, Timestamp: now, Source: source,
			})
		case prev != bookmark.FingerprintEntry(e):
			changes = append(changes, Change{
				URL: e.URL, Title: e.Title, FolderPath: e.FolderPath,
				Kind: Modified, Timestamp: now, Source: source,
			})
		}
	}

	var deleted []string
	for key := range prior.BookmarkHashes {
		if !current[key] {
			deleted = append(deleted, key)
		}
	}
	sort.Strings(deleted)
	for _, key := range deleted {
		changes = append(changes, Change{
			URL: key, Kind: Deleted, Timestamp: now, Source: source,
		})
	}
	return changes
}

// Merge resolves changes from multiple stores into one change per URL.
// A strictly later timestamp wins; on equal timestamps the first change
// encountered in argument order is kept. Output is sorted by URL.
func Merge(sets ...[]Change) []Change {
	winners := make(map[string]Change)
	var order []string

	for _, set := range sets {
		for _, c := range set {
			key := bookmark.NormalizeURL(c.URL)
			existing, ok := winners[key]
			if !ok {
				winners[key] = c
				order = append(order, key)
				continue
			}
			if c.Timestamp.After(existing.Timestamp) {
				winners[key] = c
			}
		}
	}

	sort.Strings(order)
	merged := make([]Change, 0, len(order))
	for _, key := range order {
		merged = append(merged, winners[key])
	}
	return merged
}
