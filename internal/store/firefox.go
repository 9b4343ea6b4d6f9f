package store

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"bmsync/internal/bookmark"
	"bmsync/internal/safewrite"
)

// Firefox keeps bookmarks in places.sqlite inside a profile directory.
// Row types: 1 = bookmark, 2 = folder. Fixed root rows: 1 = root,
// 2 = menu, 3 = toolbar, 4 = tags, 5 = unfiled, 6 = mobile.
const (
	firefoxTypeBookmark = 1
	firefoxTypeFolder   = 2

	firefoxRootMenu    = 2
	firefoxRootToolbar = 3
	firefoxRootUnfiled = 5

	firefoxLastFixedID = 6
)

// FirefoxAdapter reads and writes Firefox places.sqlite databases.
type FirefoxAdapter struct {
	env   Env
	guard *safewrite.Guard
}

var _ Adapter = (*FirefoxAdapter)(nil)

func NewFirefoxAdapter(env Env) *FirefoxAdapter {
	return &FirefoxAdapter{
		env:   env,
		guard: safewrite.NewGuard(env.Scratch, safewrite.SQLiteProbe{}, env.logger()),
	}
}

func (a *FirefoxAdapter) Store() ID { return Firefox }

// DetectPath locates the first profile with a non-empty places.sqlite.
func (a *FirefoxAdapter) DetectPath() (string, error) {
	if p, ok := a.env.override(Firefox); ok {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("firefox override path %s: %w", p, ErrNotFound)
		}
		return p, nil
	}

	profiles, err := a.profiles()
	if err != nil {
		return "", err
	}
	for _, p := range profiles {
		if info, err := os.Stat(p); err == nil && info.Size() > 0 {
			return p, nil
		}
	}
	return profiles[0], nil
}

// profiles lists candidate places.sqlite paths under the platform's
// Firefox profile root.
func (a *FirefoxAdapter) profiles() ([]string, error) {
	if p, ok := a.env.override(Firefox); ok {
		return []string{p}, nil
	}

	var root string
	switch a.env.os() {
	case "darwin":
		root = filepath.Join(a.env.Home, "Library", "Application Support", "Firefox", "Profiles")
	case "linux":
		root = filepath.Join(a.env.Home, ".mozilla", "firefox")
	default:
		return nil, fmt.Errorf("firefox is not supported on %s: %w", a.env.os(), ErrNotFound)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("firefox profile directory: %w", ErrNotFound)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root, entry.Name(), "places.sqlite")
		if _, err := os.Stat(candidate); err == nil {
			paths = append(paths, candidate)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no firefox profiles with bookmarks: %w", ErrNotFound)
	}
	sort.Strings(paths)
	return paths, nil
}

type firefoxRow struct {
	node   bookmark.Node
	rowID  int64
	parent int64
}

// Read parses the places database into the tree model without mutating
// it: the connection is opened read-only.
func (a *FirefoxAdapter) Read() ([]bookmark.Node, error) {
	path, err := a.DetectPath()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, &ReadError{Store: Firefox, Err: err}
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT b.id, IFNULL(b.title, ''), IFNULL(p.url, ''), b.type, b.parent,
		       IFNULL(b.dateAdded, 0), IFNULL(b.lastModified, 0)
		FROM moz_bookmarks b
		LEFT JOIN moz_places p ON b.fk = p.id
		WHERE b.type IN (?, ?) AND b.parent >= ?
		ORDER BY b.parent, b.position`,
		firefoxTypeBookmark, firefoxTypeFolder, firefoxRootMenu)
	if err != nil {
		return nil, &ReadError{Store: Firefox, Err: err}
	}
	defer rows.Close()

	items := make(map[int64]*firefoxRow)
	children := make(map[int64][]int64)
	for rows.Next() {
		var (
			r         firefoxRow
			rowType   int
			addedUS   int64
			modifiedUS int64
			title, url string
		)
		if err := rows.Scan(&r.rowID, &title, &url, &rowType, &r.parent, &addedUS, &modifiedUS); err != nil {
			return nil, &ReadError{Store: Firefox, Err: err}
		}
		r.node = bookmark.Node{
			ID:           strconv.FormatInt(r.rowID, 10),
			Title:        title,
			Folder:       rowType == firefoxTypeFolder,
			DateAdded:    addedUS / 1000,
			DateModified: modifiedUS / 1000,
		}
		if !r.node.Folder {
			if url == "" {
				continue
			}
			r.node.URL = url
		}
		items[r.rowID] = &r
		children[r.parent] = append(children[r.parent], r.rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{Store: Firefox, Err: err}
	}

	var build func(id int64) (bookmark.Node, bool)
	build = func(id int64) (bookmark.Node, bool) {
		row, ok := items[id]
		if !ok {
			return bookmark.Node{}, false
		}
		node := row.node
		if node.Folder {
			for _, childID := range children[id] {
				if child, ok := build(childID); ok {
					node.Children = append(node.Children, child)
				}
			}
		}
		return node, true
	}

	var tree []bookmark.Node
	for _, rootID := range []int64{firefoxRootToolbar, firefoxRootMenu, firefoxRootUnfiled} {
		for _, childID := range children[rootID] {
			if node, ok := build(childID); ok {
				tree = append(tree, node)
			}
		}
	}
	return tree, nil
}

// Write replaces all user bookmarks with the given tree. The mutation
// runs against a guarded scratch copy; the live database is swapped in
// only after the copy passes a full integrity check.
func (a *FirefoxAdapter) Write(nodes []bookmark.Node) error {
	path, err := a.DetectPath()
	if err != nil {
		return err
	}

	return a.guard.Replace(path, func(copyPath string) error {
		db, err := sql.Open("sqlite3", copyPath)
		if err != nil {
			return fmt.Errorf("opening scratch copy: %w", err)
		}
		defer db.Close()

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		// Clear user rows, keep the fixed system roots.
		if _, err := tx.Exec(`DELETE FROM moz_bookmarks WHERE id > ? AND parent >= ?`,
			firefoxLastFixedID, firefoxRootMenu); err != nil {
			return fmt.Errorf("clearing existing bookmarks: %w", err)
		}

		nowUS := time.Now().UnixMicro()
		pos := 0
		for i := range nodes {
			if err := insertFirefoxNode(tx, &nodes[i], firefoxRootToolbar, pos, nowUS); err != nil {
				return err
			}
			pos++
		}
		return tx.Commit()
	})
}

func insertFirefoxNode(tx *sql.Tx, node *bookmark.Node, parentID int64, position int, nowUS int64) error {
	added := node.DateAdded * 1000
	if added == 0 {
		added = nowUS
	}
	modified := node.DateModified * 1000
	if modified == 0 {
		modified = nowUS
	}

	if node.Folder {
		// Folders that would be unrepresentable are dropped rather than
		// corrupting the menu structure.
		if len(node.Children) == 0 || node.Title == "" || node.Title == "/" {
			return nil
		}
		res, err := tx.Exec(`
			INSERT INTO moz_bookmarks (type, fk, parent, position, title, dateAdded, lastModified, guid)
			VALUES (?, NULL, ?, ?, ?, ?, ?, ?)`,
			firefoxTypeFolder, parentID, position, node.Title, added, modified, firefoxGUID())
		if err != nil {
			return fmt.Errorf("inserting folder %q: %w", node.Title, err)
		}
		folderID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("resolving folder id: %w", err)
		}
		for i := range node.Children {
			if err := insertFirefoxNode(tx, &node.Children[i], folderID, i, nowUS); err != nil {
				return err
			}
		}
		return nil
	}

	if node.URL == "" {
		return nil
	}
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO moz_places (url, title, rev_host, hidden, typed, frecency, guid)
		VALUES (?, ?, '', 0, 0, -1, ?)`,
		node.URL, node.Title, firefoxGUID()); err != nil {
		return fmt.Errorf("inserting place for %s: %w", node.URL, err)
	}
	var placeID int64
	if err := tx.QueryRow(`SELECT id FROM moz_places WHERE url = ?`, node.URL).Scan(&placeID); err != nil {
		return fmt.Errorf("resolving place id for %s: %w", node.URL, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO moz_bookmarks (type, fk, parent, position, title, dateAdded, lastModified, guid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		firefoxTypeBookmark, placeID, parentID, position, node.Title, added, modified, firefoxGUID()); err != nil {
		return fmt.Errorf("inserting bookmark %s: %w", node.URL, err)
	}
	return nil
}

// firefoxGUID produces a 12-character GUID the places schema accepts.
func firefoxGUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Backup copies the live database to a sibling path before mutation.
func (a *FirefoxAdapter) Backup() (string, error) {
	path, err := a.DetectPath()
	if err != nil {
		return "", err
	}
	backupPath := path + ".backup"
	if err := copyFileContents(path, backupPath); err != nil {
		return "", fmt.Errorf("backing up firefox store: %w", err)
	}
	return backupPath, nil
}

func (a *FirefoxAdapter) Validate(nodes []bookmark.Node) (bool, error) {
	return validateTree(nodes)
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
