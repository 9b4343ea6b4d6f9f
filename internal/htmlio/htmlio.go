// Package htmlio reads and writes the Netscape bookmark HTML format
// that browsers use for manual import and export.
package htmlio

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"bmsync/internal/bookmark"
)

// Export writes the tree as Netscape bookmark HTML. Titles and URLs are
// HTML-escaped; timestamps become ADD_DATE attributes in epoch seconds.
func Export(w io.Writer, nodes []bookmark.Node) error {
	var b strings.Builder
	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	b.WriteString("<TITLE>Bookmarks</TITLE>\n")
	b.WriteString("<H1>Bookmarks</H1>\n")
	b.WriteString("<DL><p>\n")
	writeNodes(&b, nodes, 1)
	b.WriteString("</DL><p>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeNodes(b *strings.Builder, nodes []bookmark.Node, indent int) {
	prefix := strings.Repeat("    ", indent)
	for i := range nodes {
		n := &nodes[i]
		if n.Folder {
			fmt.Fprintf(b, "%s<DT><H3>%s</H3>\n", prefix, html.EscapeString(n.Title))
			fmt.Fprintf(b, "%s<DL><p>\n", prefix)
			writeNodes(b, n.Children, indent+1)
			fmt.Fprintf(b, "%s</DL><p>\n", prefix)
			continue
		}
		fmt.Fprintf(b, "%s<DT><A HREF=\"%s\" ADD_DATE=\"%d\">%s</A>\n",
			prefix, html.EscapeString(n.URL), addDate(n), html.EscapeString(n.Title))
	}
}

func addDate(n *bookmark.Node) int64 {
	if n.DateAdded > 0 {
		return n.DateAdded / 1000
	}
	return time.Now().Unix()
}

type parseNode struct {
	node     bookmark.Node
	children []*parseNode
}

// Parse reads Netscape bookmark HTML into a tree. The parser is
// tolerant: H3 opens a folder that becomes current at the following DL,
// A elements become bookmarks, anything else is skipped.
func Parse(r io.Reader) ([]bookmark.Node, error) {
	doc, err := xhtml.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing bookmark HTML: %w", err)
	}

	root := &parseNode{}
	stack := []*parseNode{root}
	var pending *parseNode

	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				title := textContent(n)
				if title != "" {
					pending = &parseNode{node: bookmark.Node{Title: title, Folder: true}}
					top := stack[len(stack)-1]
					top.children = append(top.children, pending)
				}
				return

			case "a":
				href := attr(n, "href")
				if href == "" {
					return
				}
				title := textContent(n)
				if title == "" {
					title = href
				}
				leaf := bookmark.Node{Title: title, URL: href}
				if ts, err := strconv.ParseInt(attr(n, "add_date"), 10, 64); err == nil && ts > 0 {
					leaf.DateAdded = ts * 1000
				}
				top := stack[len(stack)-1]
				top.children = append(top.children, &parseNode{node: leaf})
				return

			case "dl":
				pushed := false
				if pending != nil {
					stack = append(stack, pending)
					pending = nil
					pushed = true
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				if pushed {
					stack = stack[:len(stack)-1]
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return materialize(root.children), nil
}

func materialize(nodes []*parseNode) []bookmark.Node {
	var out []bookmark.Node
	for _, p := range nodes {
		n := p.node
		if n.Folder {
			n.Children = materialize(p.children)
		}
		out = append(out, n)
	}
	return out
}

func textContent(n *xhtml.Node) string {
	var text strings.Builder
	var extract func(*xhtml.Node)
	extract = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(text.String())
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
