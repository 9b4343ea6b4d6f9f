// Package merge combines bookmark trees from multiple stores into a
// single unified tree. Folders with the same name at the same level are
// unioned; bookmarks are deduplicated by normalized URL, keeping the
// first occurrence in source order.
package merge

import (
	"bmsync/internal/bookmark"
	"bmsync/internal/store"
)

// Source is one store's tree, tagged with its origin. The order of
// sources given to Trees decides which copy of a duplicate survives.
type Source struct {
	ID    store.ID
	Nodes []bookmark.Node
}

// Result is the unified tree plus merge accounting.
type Result struct {
	Nodes             []bookmark.Node
	DuplicatesRemoved int
}

// Trees merges the sources into one tree. The same input always yields
// the same output, and merging a merged tree with itself is a no-op.
func Trees(sources []Source) Result {
	lists := make([][]bookmark.Node, 0, len(sources))
	for _, s := range sources {
		lists = append(lists, s.Nodes)
	}

	m := &merger{seen: make(map[string]bool)}
	nodes := m.level(lists)
	return Result{
		Nodes:             bookmark.SortByTitle(nodes),
		DuplicatesRemoved: m.removed,
	}
}

type merger struct {
	seen    map[string]bool
	removed int
}

// level merges sibling lists from each source at one tree depth.
// Folders union by title across sources; leaves dedup across the whole
// merge, not just this level.
func (m *merger) level(lists [][]bookmark.Node) []bookmark.Node {
	var (
		order   []string
		folders = make(map[string][][]bookmark.Node)
		leaves  []bookmark.Node
	)

	for _, list := range lists {
		for i := range list {
			n := &list[i]
			if n.Folder {
				if _, ok := folders[n.Title]; !ok {
					order = append(order, n.Title)
				}
				folders[n.Title] = append(folders[n.Title], n.Children)
				continue
			}
			key := bookmark.NormalizeURL(n.URL)
			if key == "" {
				continue
			}
			if m.seen[key] {
				m.removed++
				continue
			}
			m.seen[key] = true
			leaf := *n
			leaf.ID = ""
			leaf.Children = nil
			leaves = append(leaves, leaf)
		}
	}

	merged := make([]bookmark.Node, 0, len(order)+len(leaves))
	for _, title := range order {
		merged = append(merged, bookmark.Node{
			Title:    title,
			Folder:   true,
			Children: m.level(folders[title]),
		})
	}
	return append(merged, leaves...)
}

// RemoveEmptyFolders prunes folders left childless, including folders
// that become empty once their own subfolders are pruned.
func RemoveEmptyFolders(nodes []bookmark.Node) []bookmark.Node {
	var kept []bookmark.Node
	for i := range nodes {
		n := nodes[i]
		if n.Folder {
			n.Children = RemoveEmptyFolders(n.Children)
			if len(n.Children) == 0 {
				continue
			}
		}
		kept = append(kept, n)
	}
	return kept
}

// MergeSiblingFolders collapses same-named sibling folders within a
// single tree without touching leaves. Useful for cleaning up trees
// produced by repeated partial syncs.
func MergeSiblingFolders(nodes []bookmark.Node) []bookmark.Node {
	var (
		order   []string
		folders = make(map[string][]bookmark.Node)
		out     []bookmark.Node
	)
	for i := range nodes {
		n := nodes[i]
		if !n.Folder {
			out = append(out, n)
			continue
		}
		if _, ok := folders[n.Title]; !ok {
			order = append(order, n.Title)
		}
		folders[n.Title] = append(folders[n.Title], n.Children...)
	}

	merged := make([]bookmark.Node, 0, len(order)+len(out))
	for _, title := range order {
		merged = append(merged, bookmark.Node{
			Title:    title,
			Folder:   true,
			Children: MergeSiblingFolders(folders[title]),
		})
	}
	return append(merged, out...)
}
