package merge_test

import (
	"reflect"
	"testing"

	"bmsync/internal/bookmark"
	"bmsync/internal/merge"
	"bmsync/internal/store"
)

func leaf(title, url string) bookmark.Node {
	return bookmark.Node{Title: title, URL: url}
}

func folder(title string, children ...bookmark.Node) bookmark.Node {
	return bookmark.Node{Title: title, Folder: true, Children: children}
}

func TestTreesUnionsFolders(t *testing.T) {
	result := merge.Trees([]merge.Source{
		{ID: store.Firefox, Nodes: []bookmark.Node{
			folder("Work", leaf("Jira", "https://jira.example")),
		}},
		{ID: store.Chrome, Nodes: []bookmark.Node{
			folder("Work", leaf("Wiki", "https://wiki.example")),
			leaf("News", "https://news.example"),
		}},
	})

	if result.DuplicatesRemoved != 0 {
		t.Errorf("DuplicatesRemoved = %d, want 0", result.DuplicatesRemoved)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(result.Nodes))
	}
	work := result.Nodes[0]
	if !work.Folder || work.Title != "Work" {
		t.Fatalf("nodes[0] = %+v, want unioned Work folder", work)
	}
	if len(work.Children) != 2 {
		t.Errorf("Work has %d children, want 2", len(work.Children))
	}
}

func TestTreesDedupsByNormalizedURL(t *testing.T) {
	result := merge.Trees([]merge.Source{
		{ID: store.Firefox, Nodes: []bookmark.Node{
			leaf("First", "https://Example.com/page/"),
		}},
		{ID: store.Chrome, Nodes: []bookmark.Node{
			leaf("Second", "https://example.com/page#section"),
			leaf("Third", "https://example.com/page"),
		}},
	})

	if result.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", result.DuplicatesRemoved)
	}
	if len(result.Nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(result.Nodes))
	}
	// First occurrence in source order wins, original URL untouched.
	if result.Nodes[0].Title != "First" || result.Nodes[0].URL != "https://Example.com/page/" {
		t.Errorf("survivor = %+v, want the Firefox copy", result.Nodes[0])
	}
}

func TestTreesDedupsAcrossFolders(t *testing.T) {
	result := merge.Trees([]merge.Source{
		{ID: store.Firefox, Nodes: []bookmark.Node{
			folder("A", leaf("Site", "https://dup.example")),
		}},
		{ID: store.Chrome, Nodes: []bookmark.Node{
			folder("B", leaf("Site", "https://dup.example")),
		}},
	})

	if result.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", result.DuplicatesRemoved)
	}
	if got := bookmark.Count(result.Nodes); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestTreesSortsByTitle(t *testing.T) {
	result := merge.Trees([]merge.Source{
		{ID: store.Chrome, Nodes: []bookmark.Node{
			leaf("zebra", "https://z.example"),
			folder("beta"),
			leaf("alpha", "https://a.example"),
		}},
	})

	var titles []string
	for _, n := range result.Nodes {
		titles = append(titles, n.Title)
	}
	// The merge keeps empty folders; pruning happens later in the
	// pipeline.
	want := []string{"alpha", "beta", "zebra"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("titles = %v, want %v", titles, want)
	}
}

func TestTreesIdempotent(t *testing.T) {
	sources := []merge.Source{
		{ID: store.Firefox, Nodes: []bookmark.Node{
			folder("Work", leaf("Jira", "https://jira.example"), leaf("Dup", "https://dup.example")),
			leaf("Dup2", "https://dup.example/"),
		}},
		{ID: store.Chrome, Nodes: []bookmark.Node{
			folder("Work", leaf("Wiki", "https://wiki.example")),
		}},
	}
	first := merge.Trees(sources)
	second := merge.Trees([]merge.Source{{ID: store.Firefox, Nodes: first.Nodes}})

	if second.DuplicatesRemoved != 0 {
		t.Errorf("re-merge removed %d duplicates, want 0", second.DuplicatesRemoved)
	}
	if !reflect.DeepEqual(first.Nodes, second.Nodes) {
		t.Errorf("re-merge changed the tree:\nfirst  = %+v\nsecond = %+v", first.Nodes, second.Nodes)
	}
}

func TestTreesEmptySources(t *testing.T) {
	result := merge.Trees(nil)
	if len(result.Nodes) != 0 || result.DuplicatesRemoved != 0 {
		t.Errorf("Trees(nil) = %+v, want empty result", result)
	}
}

func TestRemoveEmptyFolders(t *testing.T) {
	tree := []bookmark.Node{
		folder("Outer",
			folder("Inner"),
			folder("Full", leaf("L", "https://l.example")),
		),
		folder("Hollow", folder("Also Hollow")),
	}
	got := merge.RemoveEmptyFolders(tree)

	if len(got) != 1 || got[0].Title != "Outer" {
		t.Fatalf("got = %+v, want only Outer", got)
	}
	if len(got[0].Children) != 1 || got[0].Children[0].Title != "Full" {
		t.Errorf("Outer children = %+v, want only Full", got[0].Children)
	}
}

func TestMergeSiblingFolders(t *testing.T) {
	tree := []bookmark.Node{
		folder("Work", leaf("A", "https://a.example")),
		leaf("Loose", "https://loose.example"),
		folder("Work", leaf("B", "https://b.example")),
	}
	got := merge.MergeSiblingFolders(tree)

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	work := got[0]
	if work.Title != "Work" || len(work.Children) != 2 {
		t.Errorf("merged folder = %+v, want Work with 2 children", work)
	}
	if got[1].URL != "https://loose.example" {
		t.Errorf("got[1] = %+v, want the loose leaf", got[1])
	}
}
