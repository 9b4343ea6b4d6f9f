package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bmsync/internal/bookmark"
	"bmsync/internal/safewrite"
)

// Chromium-family browsers keep bookmarks in a JSON document named
// "Bookmarks" inside the profile directory. Timestamps are WebKit time:
// microseconds since 1601-01-01, encoded as decimal strings.
const webkitEpochOffsetMS = 11644473600000

// chromiumNode mirrors one entry of the native JSON document.
type chromiumNode struct {
	Children     []chromiumNode `json:"children,omitempty"`
	DateAdded    string         `json:"date_added"`
	DateLastUsed string         `json:"date_last_used"`
	DateModified string         `json:"date_modified,omitempty"`
	GUID         string         `json:"guid"`
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	URL          string         `json:"url,omitempty"`
}

type chromiumDocument struct {
	Checksum string                  `json:"checksum"`
	Roots    map[string]chromiumNode `json:"roots"`
	Version  int                     `json:"version"`
}

// ChromiumAdapter serves every Chromium-family browser; the concrete
// browser selects the profile directory.
type ChromiumAdapter struct {
	id    ID
	env   Env
	guard *safewrite.Guard
}

var _ Adapter = (*ChromiumAdapter)(nil)

func NewChromiumAdapter(id ID, env Env) *ChromiumAdapter {
	a := &ChromiumAdapter{id: id, env: env}
	probe := safewrite.FileProbe{Parse: func(path string) error {
		_, err := readChromiumDocument(path)
		return err
	}}
	a.guard = safewrite.NewGuard(env.Scratch, probe, env.logger())
	return a
}

func (a *ChromiumAdapter) Store() ID { return a.id }

// dataDir returns the browser's per-platform data directory.
func (a *ChromiumAdapter) dataDir() (string, error) {
	switch a.env.os() {
	case "darwin":
		switch a.id {
		case Chrome:
			return filepath.Join(a.env.Home, "Library", "Application Support", "Google", "Chrome"), nil
		case Brave:
			return filepath.Join(a.env.Home, "Library", "Application Support", "BraveSoftware", "Brave-Browser"), nil
		case Edge:
			return filepath.Join(a.env.Home, "Library", "Application Support", "Microsoft Edge"), nil
		}
	case "linux":
		switch a.id {
		case Chrome:
			return filepath.Join(a.env.Home, ".config", "google-chrome"), nil
		case Brave:
			return filepath.Join(a.env.Home, ".config", "BraveSoftware", "Brave-Browser"), nil
		case Edge:
			return filepath.Join(a.env.Home, ".config", "microsoft-edge"), nil
		}
	}
	return "", fmt.Errorf("%s is not supported on %s: %w", a.id.DisplayName(), a.env.os(), ErrNotFound)
}

// DetectPath locates the Default profile's Bookmarks file.
func (a *ChromiumAdapter) DetectPath() (string, error) {
	if p, ok := a.env.override(a.id); ok {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s override path %s: %w", a.id, p, ErrNotFound)
		}
		return p, nil
	}

	base, err := a.dataDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(base, "Default", "Bookmarks")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%s bookmarks file: %w", a.id.DisplayName(), ErrNotFound)
	}
	return path, nil
}

// Read parses the JSON document. All roots are unioned into one tree in
// document order (bookmark bar first).
func (a *ChromiumAdapter) Read() ([]bookmark.Node, error) {
	path, err := a.DetectPath()
	if err != nil {
		return nil, err
	}

	doc, err := readChromiumDocument(path)
	if err != nil {
		return nil, &ReadError{Store: a.id, Err: err}
	}

	var tree []bookmark.Node
	for _, rootKey := range []string{"bookmark_bar", "other", "synced"} {
		root, ok := doc.Roots[rootKey]
		if !ok {
			continue
		}
		for i := range root.Children {
			tree = append(tree, chromiumToNode(&root.Children[i]))
		}
	}
	return tree, nil
}

func readChromiumDocument(path string) (*chromiumDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc chromiumDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing bookmarks document: %w", err)
	}
	if doc.Roots == nil {
		return nil, fmt.Errorf("bookmarks document has no roots")
	}
	return &doc, nil
}

func chromiumToNode(c *chromiumNode) bookmark.Node {
	node := bookmark.Node{
		ID:           c.ID,
		Title:        c.Name,
		Folder:       c.Type == "folder",
		DateAdded:    webkitToMillis(c.DateAdded),
		DateModified: webkitToMillis(c.DateModified),
	}
	if node.Folder {
		for i := range c.Children {
			node.Children = append(node.Children, chromiumToNode(&c.Children[i]))
		}
	} else {
		node.URL = c.URL
	}
	return node
}

// Write rebuilds the document with the whole tree under the bookmark
// bar and empty other/synced roots, then swaps it in via the guard.
func (a *ChromiumAdapter) Write(nodes []bookmark.Node) error {
	path, err := a.DetectPath()
	if err != nil {
		return err
	}

	return a.guard.Replace(path, func(copyPath string) error {
		doc := buildChromiumDocument(nodes, time.Now().UnixMilli())
		data, err := json.MarshalIndent(doc, "", "   ")
		if err != nil {
			return fmt.Errorf("encoding bookmarks document: %w", err)
		}
		return os.WriteFile(copyPath, data, 0644)
	})
}

func buildChromiumDocument(nodes []bookmark.Node, nowMS int64) *chromiumDocument {
	nextID := int64(10) // past the fixed root ids
	var convert func(n *bookmark.Node) chromiumNode
	convert = func(n *bookmark.Node) chromiumNode {
		id := nextID
		nextID++
		c := chromiumNode{
			DateAdded:    millisToWebkit(orNow(n.DateAdded, nowMS)),
			DateLastUsed: "0",
			ID:           strconv.FormatInt(id, 10),
			Name:         n.Title,
		}
		if n.Folder {
			c.Type = "folder"
			c.GUID = fmt.Sprintf("folder-%d", id)
			c.DateModified = millisToWebkit(orNow(n.DateModified, nowMS))
			c.Children = make([]chromiumNode, 0, len(n.Children))
			for i := range n.Children {
				c.Children = append(c.Children, convert(&n.Children[i]))
			}
		} else {
			c.Type = "url"
			c.GUID = fmt.Sprintf("bookmark-%d", id)
			c.URL = n.URL
		}
		return c
	}

	children := make([]chromiumNode, 0, len(nodes))
	for i := range nodes {
		children = append(children, convert(&nodes[i]))
	}

	emptyRoot := func(name, guid, id string) chromiumNode {
		return chromiumNode{
			Children:     []chromiumNode{},
			DateAdded:    "0",
			DateLastUsed: "0",
			DateModified: "0",
			GUID:         guid,
			ID:           id,
			Name:         name,
			Type:         "folder",
		}
	}

	bar := emptyRoot("Bookmarks Bar", "00000000-0000-4000-a000-000000000002", "1")
	bar.Children = children

	return &chromiumDocument{
		Roots: map[string]chromiumNode{
			"bookmark_bar": bar,
			"other":        emptyRoot("Other Bookmarks", "00000000-0000-4000-a000-000000000003", "2"),
			"synced":       emptyRoot("Mobile Bookmarks", "00000000-0000-4000-a000-000000000004", "3"),
		},
		Version: 1,
	}
}

// Backup copies the live document to a sibling path.
func (a *ChromiumAdapter) Backup() (string, error) {
	path, err := a.DetectPath()
	if err != nil {
		return "", err
	}
	backupPath := path + ".backup"
	if err := copyFileContents(path, backupPath); err != nil {
		return "", fmt.Errorf("backing up %s store: %w", a.id, err)
	}
	return backupPath, nil
}

func (a *ChromiumAdapter) Validate(nodes []bookmark.Node) (bool, error) {
	return validateTree(nodes)
}

func webkitToMillis(s string) int64 {
	if s == "" || s == "0" {
		return 0
	}
	us, err := strconv.ParseInt(s, 10, 64)
	if err != nil || us == 0 {
		return 0
	}
	return us/1000 - webkitEpochOffsetMS
}

func millisToWebkit(ms int64) string {
	if ms == 0 {
		return "0"
	}
	return strconv.FormatInt((ms+webkitEpochOffsetMS)*1000, 10)
}

func orNow(ms, nowMS int64) int64 {
	if ms == 0 {
		return nowMS
	}
	return ms
}
