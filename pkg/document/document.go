// Package document holds the synthetic HTML document a prerender runs against: template
// parsing, injection marker resolution, fragment insertion and serialization.
package document

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultTemplate is used when no template content is supplied
const DefaultTemplate = "<!DOCTYPE html><html><head></head><body></body></html>"

// Doctype is prepended to serialized output lacking one
const Doctype = "<!DOCTYPE html>"

// MarkerAttribute marks an element as the injection point
const MarkerAttribute = "data-prerender"

var doctypeRE = regexp.MustCompile(`(?i)^\s*<!doctype`)

// Document is a parsed HTML tree with its resolved injection point
type Document struct {
	Root *html.Node

	parent      *html.Node
	nextSibling *html.Node
	marker      bool
}

// Parse parses template (or DefaultTemplate when empty) and resolves the injection point.
// The marker is the first element carrying MarkerAttribute, or the first text or comment
// node matching token. It is removed from the tree and its position recorded.
func Parse(template string, token *regexp.Regexp) (*Document, error) {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	root, err := html.Parse(strings.NewReader(template))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	doc := &Document{Root: root}
	if n := findMarker(root, token); n != nil {
		doc.parent = n.Parent
		doc.nextSibling = n.NextSibling
		doc.marker = true
		n.Parent.RemoveChild(n)
	}
	return doc, nil
}

// HasMarker reports whether an injection marker was found
func (d *Document) HasMarker() bool { return d.marker }

// InsertionPoint returns the parent and next sibling new content goes before. Without a
// marker the parent is <body> and content is appended. Scripts may have moved nodes since
// the marker was resolved: a next sibling no longer under parent means append, and a parent
// detached from the document falls back to <body>.
func (d *Document) InsertionPoint() (parent, next *html.Node) {
	if !d.marker || !d.attached(d.parent) {
		return d.Body(), nil
	}
	if d.nextSibling != nil && d.nextSibling.Parent != d.parent {
		return d.parent, nil
	}
	return d.parent, d.nextSibling
}

// attached reports whether n is still reachable from the document root
func (d *Document) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.Root {
			return true
		}
	}
	return false
}

// Insert parses markup as a fragment in the context of the insertion parent and inserts its
// nodes, in order, at the recorded position
func (d *Document) Insert(markup string) error {
	parent, next := d.InsertionPoint()
	if parent == nil {
		return fmt.Errorf("document has no insertion point")
	}
	nodes, err := ParseFragment(markup, parent)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		parent.InsertBefore(n, next)
	}
	return nil
}

// ParseFragment parses markup as children of context
func ParseFragment(markup string, context *html.Node) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	return nodes, nil
}

// Serialize renders the document, guaranteeing exactly one leading doctype
func (d *Document) Serialize() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root); err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return EnsureDoctype(buf.String()), nil
}

// EnsureDoctype prepends Doctype unless s already starts with one (case-insensitive)
func EnsureDoctype(s string) string {
	if doctypeRE.MatchString(s) {
		return s
	}
	return Doctype + s
}

// Body returns the <body> element
func (d *Document) Body() *html.Node { return FindElement(d.Root, atom.Body) }

// Head returns the <head> element
func (d *Document) Head() *html.Node { return FindElement(d.Root, atom.Head) }

// DocumentElement returns the <html> element
func (d *Document) DocumentElement() *html.Node { return FindElement(d.Root, atom.Html) }

// Title returns the text of the first <title> element
func (d *Document) Title() string {
	if t := FindElement(d.Root, atom.Title); t != nil {
		return TextContent(t)
	}
	return ""
}

// SetTitle replaces or creates the <title> element text
func (d *Document) SetTitle(title string) {
	t := FindElement(d.Root, atom.Title)
	if t == nil {
		head := d.Head()
		if head == nil {
			return
		}
		t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		head.AppendChild(t)
	}
	SetTextContent(t, title)
}

// FindElement returns the first element with tag a in document order
func FindElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// TextContent concatenates descendant text
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// SetTextContent replaces the children of n with a single text node
func SetTextContent(n *html.Node, text string) {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		n.Data = text
		return
	}
	RemoveChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// RemoveChildren detaches all children of n
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// Render serializes a single node
func Render(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// InnerHTML serializes the children of n
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func findMarker(n *html.Node, token *regexp.Regexp) *html.Node {
	switch n.Type {
	case html.ElementNode:
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == MarkerAttribute {
				return n
			}
		}
	case html.CommentNode:
		if token != nil && token.MatchString(n.Data) {
			return n
		}
	case html.TextNode:
		if token != nil {
			if loc := token.FindStringIndex(n.Data); loc != nil {
				return splitText(n, loc[0], loc[1])
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findMarker(c, token); found != nil {
			return found
		}
	}
	return nil
}

// splitText isolates data[start:end] of a text node into its own node, keeping the
// surrounding text as siblings, and returns the isolated node
func splitText(n *html.Node, start, end int) *html.Node {
	before, token, after := n.Data[:start], n.Data[start:end], n.Data[end:]
	parent := n.Parent
	if before != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: before}, n)
	}
	if after != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, n.NextSibling)
	}
	n.Data = token
	return n
}
