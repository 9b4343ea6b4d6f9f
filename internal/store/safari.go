package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"howett.net/plist"

	"bmsync/internal/bookmark"
	"bmsync/internal/safewrite"
)

// Safari keeps bookmarks in ~/Library/Safari/Bookmarks.plist, usually
// binary-encoded. Node types: WebBookmarkTypeList for folders and the
// root, WebBookmarkTypeLeaf for bookmarks. The reading list lives in a
// regular list node titled com.apple.ReadingList; it is skipped on read
// and carried over untouched on write.
const (
	safariTypeList = "WebBookmarkTypeList"
	safariTypeLeaf = "WebBookmarkTypeLeaf"

	safariReadingList = "com.apple.ReadingList"
)

type safariNode struct {
	Title         string            `plist:"Title,omitempty"`
	Type          string            `plist:"WebBookmarkType"`
	UUID          string            `plist:"WebBookmarkUUID,omitempty"`
	URLString     string            `plist:"URLString,omitempty"`
	URIDictionary map[string]string `plist:"URIDictionary,omitempty"`
	Children      []safariNode      `plist:"Children,omitempty"`
}

// SafariAdapter reads and writes the Safari bookmarks property list.
// macOS only; detection fails with ErrNotFound elsewhere.
type SafariAdapter struct {
	env   Env
	guard *safewrite.Guard
}

var _ Adapter = (*SafariAdapter)(nil)

func NewSafariAdapter(env Env) *SafariAdapter {
	a := &SafariAdapter{env: env}
	probe := safewrite.FileProbe{Parse: func(path string) error {
		_, err := readSafariRoot(path)
		return err
	}}
	a.guard = safewrite.NewGuard(env.Scratch, probe, env.logger())
	return a
}

func (a *SafariAdapter) Store() ID { return Safari }

func (a *SafariAdapter) DetectPath() (string, error) {
	if p, ok := a.env.override(Safari); ok {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("safari override path %s: %w", p, ErrNotFound)
		}
		return p, nil
	}

	if a.env.os() != "darwin" {
		return "", fmt.Errorf("safari is only available on macOS: %w", ErrNotFound)
	}
	path := filepath.Join(a.env.Home, "Library", "Safari", "Bookmarks.plist")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("safari bookmarks file: %w", ErrNotFound)
	}
	return path, nil
}

func readSafariRoot(path string) (*safariNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var root safariNode
	if _, err := plist.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing bookmarks plist: %w", err)
	}
	if root.Type != safariTypeList {
		return nil, fmt.Errorf("unexpected root bookmark type %q", root.Type)
	}
	return &root, nil
}

// Read parses the plist into the tree model, skipping the reading list.
func (a *SafariAdapter) Read() ([]bookmark.Node, error) {
	path, err := a.DetectPath()
	if err != nil {
		return nil, err
	}

	root, err := readSafariRoot(path)
	if err != nil {
		return nil, &ReadError{Store: Safari, Err: err}
	}

	var tree []bookmark.Node
	for i := range root.Children {
		child := &root.Children[i]
		if child.Title == safariReadingList {
			continue
		}
		if node, ok := safariToNode(child); ok {
			tree = append(tree, node)
		}
	}
	if len(tree) == 0 {
		// Zero extractable items reads as an empty tree, never an
		// error; the gap is surfaced through logging only.
		a.env.logger().Warn("safari store has no extractable bookmarks", "path", path)
	}
	return tree, nil
}

func safariToNode(s *safariNode) (bookmark.Node, bool) {
	switch s.Type {
	case safariTypeList:
		node := bookmark.Node{ID: s.UUID, Title: s.Title, Folder: true}
		for i := range s.Children {
			if child, ok := safariToNode(&s.Children[i]); ok {
				node.Children = append(node.Children, child)
			}
		}
		return node, true
	case safariTypeLeaf:
		if s.URLString == "" {
			return bookmark.Node{}, false
		}
		title := s.URIDictionary["title"]
		if title == "" {
			title = s.Title
		}
		return bookmark.Node{ID: s.UUID, Title: title, URL: s.URLString}, true
	default:
		return bookmark.Node{}, false
	}
}

// Write rebuilds the plist with the replacement tree, preserving the
// reading list section from the current document, and swaps it in via
// the guard.
func (a *SafariAdapter) Write(nodes []bookmark.Node) error {
	path, err := a.DetectPath()
	if err != nil {
		return err
	}

	return a.guard.Replace(path, func(copyPath string) error {
		current, err := readSafariRoot(copyPath)
		if err != nil {
			return err
		}

		root := safariNode{
			Title: current.Title,
			Type:  safariTypeList,
			UUID:  current.UUID,
		}
		for i := range nodes {
			root.Children = append(root.Children, nodeToSafari(&nodes[i]))
		}
		for i := range current.Children {
			if current.Children[i].Title == safariReadingList {
				root.Children = append(root.Children, current.Children[i])
			}
		}

		data, err := plist.Marshal(&root, plist.BinaryFormat)
		if err != nil {
			return fmt.Errorf("encoding bookmarks plist: %w", err)
		}
		return os.WriteFile(copyPath, data, 0644)
	})
}

func nodeToSafari(n *bookmark.Node) safariNode {
	id := n.ID
	if id == "" {
		id = uuid.New().String()
	}
	if n.Folder {
		s := safariNode{Title: n.Title, Type: safariTypeList, UUID: id}
		for i := range n.Children {
			s.Children = append(s.Children, nodeToSafari(&n.Children[i]))
		}
		return s
	}
	return safariNode{
		Type:          safariTypeLeaf,
		UUID:          id,
		URLString:     n.URL,
		URIDictionary: map[string]string{"title": n.Title},
	}
}

// Backup copies the live plist to a sibling path.
func (a *SafariAdapter) Backup() (string, error) {
	path, err := a.DetectPath()
	if err != nil {
		return "", err
	}
	backupPath := path + ".backup"
	if err := copyFileContents(path, backupPath); err != nil {
		return "", fmt.Errorf("backing up safari store: %w", err)
	}
	return backupPath, nil
}

func (a *SafariAdapter) Validate(nodes []bookmark.Node) (bool, error) {
	return validateTree(nodes)
}
