// Package bookmark defines the shared in-memory bookmark tree model that
// every store adapter produces and consumes.
package bookmark

import (
	"fmt"
	"sort"
	"strings"
)

// Node is a single entry in a bookmark tree. A node is either a leaf
// (URL set, Folder false) or a folder (Folder true, URL empty, Children
// owned exclusively by this node). IDs are scoped to the source store
// and are not unique across stores.
type Node struct {
	ID       string
	Title    string
	URL      string
	Folder   bool
	Children []Node

	// Epoch milliseconds; 0 means unknown.
	DateAdded    int64
	DateModified int64
}

// Entry is a flattened leaf: the triple that fingerprints and dedup
// decisions are computed over.
type Entry struct {
	URL        string
	Title      string
	FolderPath string
}

// Validate walks the tree and reports the first node violating the
// folder-XOR-url invariant.
func Validate(nodes []Node) error {
	return validate(nodes, "")
}

func validate(nodes []Node, path string) error {
	for i := range nodes {
		n := &nodes[i]
		switch {
		case n.Folder && n.URL != "":
			return fmt.Errorf("folder %q has a URL (%s)", joinPath(path, n.Title), n.URL)
		case !n.Folder && n.URL == "":
			return fmt.Errorf("bookmark %q has no URL", joinPath(path, n.Title))
		}
		if n.Folder {
			if err := validate(n.Children, joinPath(path, n.Title)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Count returns the number of leaf bookmarks in the tree.
func Count(nodes []Node) int {
	total := 0
	for i := range nodes {
		if nodes[i].Folder {
			total += Count(nodes[i].Children)
		} else {
			total++
		}
	}
	return total
}

// CountFolders returns the number of folder nodes in the tree.
func CountFolders(nodes []Node) int {
	total := 0
	for i := range nodes {
		if nodes[i].Folder {
			total += 1 + CountFolders(nodes[i].Children)
		}
	}
	return total
}

// Flatten reduces a tree to its leaf entries with "/"-joined folder
// paths, in depth-first encounter order.
func Flatten(nodes []Node) []Entry {
	var entries []Entry
	flatten(nodes, "", &entries)
	return entries
}

func flatten(nodes []Node, path string, out *[]Entry) {
	for i := range nodes {
		n := &nodes[i]
		if n.Folder {
			flatten(n.Children, joinPath(path, n.Title), out)
			continue
		}
		*out = append(*out, Entry{URL: n.URL, Title: n.Title, FolderPath: path})
	}
}

// SortByTitle returns a copy of the tree with every level sorted by
// title. The sort is stable: equal titles keep their encounter order.
// The input is not modified; new child slices are built bottom-up.
func SortByTitle(nodes []Node) []Node {
	sorted := make([]Node, len(nodes))
	for i, n := range nodes {
		if n.Folder {
			n.Children = SortByTitle(n.Children)
		}
		sorted[i] = n
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Title < sorted[j].Title
	})
	return sorted
}

// Clone returns a deep copy of the tree.
func Clone(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.Children = Clone(n.Children)
		out[i] = n
	}
	return out
}

func joinPath(parent, title string) string {
	if parent == "" {
		return title
	}
	return parent + "/" + title
}

// DuplicateURLs returns how many leaves share a normalized URL with an
// earlier leaf in depth-first order.
func DuplicateURLs(nodes []Node) int {
	seen := make(map[string]struct{})
	dupes := 0
	var walk func([]Node)
	walk = func(ns []Node) {
		for i := range ns {
			if ns[i].Folder {
				walk(ns[i].Children)
				continue
			}
			key := NormalizeURL(ns[i].URL)
			if _, ok := seen[key]; ok {
				dupes++
				continue
			}
			seen[key] = struct{}{}
		}
	}
	walk(nodes)
	return dupes
}

// NormalizeURL produces the canonical form used for dedup and duplicate
// detection: trimmed, lowercased, trailing slash stripped, fragment
// stripped.
func NormalizeURL(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.IndexByte(normalized, '#'); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = strings.TrimSuffix(normalized, "/")
	return normalized
}
