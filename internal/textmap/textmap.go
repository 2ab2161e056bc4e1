// Package textmap builds the canonical text stream of a rendered tree and the
// table that maps each canonical character offset back to the text node that
// holds it.
//
// Offsets are counted in runes over the concatenation of every text node in
// document order. Nothing is synthesized between nodes, so the stream matches
// what a DOM's textContent would produce for the same tree.
package textmap

import (
	"errors"
	"slices"
	"sort"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	// ErrOutsideRoot indicates a boundary whose node is not inside the root.
	ErrOutsideRoot = errors.New("boundary outside root")

	// ErrInvalidBoundary indicates a boundary without a node.
	ErrInvalidBoundary = errors.New("invalid boundary")
)

// Run is a contiguous slice [Start, End) of the canonical text held by a
// single text node.
type Run struct {
	Node  *html.Node
	Start int
	End   int
}

// Len returns the run length in runes.
func (r Run) Len() int { return r.End - r.Start }

// Boundary is a point in the tree. Inside a text node Offset counts runes;
// inside an element it is a child index.
type Boundary struct {
	Node   *html.Node
	Offset int
}

// Table is the text-run table of one rendering.
type Table struct {
	Runs  []Run
	chars []rune
}

// Extract walks root in document order and returns its text-run table.
func Extract(root *html.Node) *Table {
	t := &Table{}
	if root == nil {
		return t
	}
	walkText(root, func(n *html.Node) {
		rs := []rune(n.Data)
		if len(rs) == 0 {
			return
		}
		start := len(t.chars)
		t.chars = append(t.chars, rs...)
		t.Runs = append(t.Runs, Run{Node: n, Start: start, End: len(t.chars)})
	})
	return t
}

// Text returns the canonical text.
func (t *Table) Text() string { return string(t.chars) }

// Len returns the canonical text length in runes.
func (t *Table) Len() int { return len(t.chars) }

// Slice returns the canonical text in [start, end), clamped to the table.
func (t *Table) Slice(start, end int) string {
	start = clamp(start, 0, len(t.chars))
	end = clamp(end, start, len(t.chars))
	return string(t.chars[start:end])
}

// Locate finds the run holding offset and the rune offset inside it.
// With preferEnd set, an offset that falls on a run boundary resolves to the
// run that ends there rather than the one that starts there, which is what
// the end of a range needs.
func (t *Table) Locate(offset int, preferEnd bool) (run, local int, ok bool) {
	n := len(t.Runs)
	if n == 0 {
		return -1, 0, false
	}
	if preferEnd {
		if offset <= 0 || offset > len(t.chars) {
			return -1, 0, false
		}
		i := sort.Search(n, func(i int) bool { return t.Runs[i].End >= offset })
		if i == n {
			return -1, 0, false
		}
		return i, offset - t.Runs[i].Start, true
	}
	if offset < 0 || offset >= len(t.chars) {
		return -1, 0, false
	}
	i := sort.Search(n, func(i int) bool { return t.Runs[i].End > offset })
	if i == n {
		return -1, 0, false
	}
	return i, offset - t.Runs[i].Start, true
}

// Boundary converts a canonical offset into a tree boundary.
func (t *Table) Boundary(offset int, preferEnd bool) (Boundary, bool) {
	i, local, ok := t.Locate(offset, preferEnd)
	if !ok {
		return Boundary{}, false
	}
	return Boundary{Node: t.Runs[i].Node, Offset: local}, true
}

// Overlapping returns the index range [first, last] of runs intersecting
// [start, end).
func (t *Table) Overlapping(start, end int) (first, last int, ok bool) {
	if start >= end {
		return 0, 0, false
	}
	first, _, ok = t.Locate(start, false)
	if !ok {
		return 0, 0, false
	}
	last, _, ok = t.Locate(end, true)
	if !ok {
		return 0, 0, false
	}
	return first, last, true
}

// Replace swaps run i for pieces. The pieces must cover exactly the range of
// the run they replace; callers use this after splitting a text node so the
// table stays valid without a fresh traversal.
func (t *Table) Replace(i int, pieces ...Run) {
	t.Runs = slices.Replace(t.Runs, i, i+1, pieces...)
}

// OffsetOf returns the canonical length of everything before b.
func OffsetOf(root *html.Node, b Boundary) (int, error) {
	if root == nil || b.Node == nil {
		return 0, ErrInvalidBoundary
	}
	if !Contains(root, b.Node) {
		return 0, ErrOutsideRoot
	}

	count := 0
	done := false
	var visit func(n *html.Node, skipped bool)
	visit = func(n *html.Node, skipped bool) {
		if n == b.Node {
			done = true
			if skipped {
				return
			}
			switch n.Type {
			case html.TextNode:
				count += clamp(b.Offset, 0, utf8.RuneCountInString(n.Data))
			case html.ElementNode, html.DocumentNode:
				if Excluded(n) {
					return
				}
				i := 0
				for c := n.FirstChild; c != nil && i < b.Offset; c = c.NextSibling {
					count += TextLen(c)
					i++
				}
			}
			return
		}
		switch n.Type {
		case html.TextNode:
			if !skipped {
				count += utf8.RuneCountInString(n.Data)
			}
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if Excluded(n) {
				skipped = true
			}
		}
		for c := n.FirstChild; c != nil && !done; c = c.NextSibling {
			visit(c, skipped)
		}
	}
	visit(root, false)
	return count, nil
}

// TextLen returns the canonical length of the subtree at n.
func TextLen(n *html.Node) int {
	total := 0
	walkText(n, func(t *html.Node) {
		total += utf8.RuneCountInString(t.Data)
	})
	return total
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// Excluded reports whether an element's text is not part of the canonical
// stream.
func Excluded(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "template", "noscript", "head", "title":
		return true
	}
	return false
}

func walkText(n *html.Node, fn func(*html.Node)) {
	switch n.Type {
	case html.TextNode:
		fn(n)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if Excluded(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, fn)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize merges adjacent text nodes and drops empty ones below n, so that
// the run table of a tree does not depend on how the tree was assembled.
func Normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
			if c.Data == "" {
				n.RemoveChild(c)
			}
		} else {
			Normalize(c)
		}
		c = next
	}
}
