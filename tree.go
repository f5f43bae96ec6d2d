package spanz

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Node is one span in a reconstructed tree.
type Node struct {
	Span     Span
	Children []*Node
}

// SkipChildren may be returned from a Walk callback to skip a node's subtree.
var SkipChildren = errors.New("skip children")

// BuildTree links spans by parent ID. Spans whose parent is not in the set
// (children of genesis records, roots, or spans whose parent is still open)
// become roots. Siblings are ordered by start time, then ID.
func BuildTree(spans []Span) []*Node {
	nodes := make(map[string]*Node, len(spans))
	for _, s := range spans {
		nodes[s.ID] = &Node{Span: s}
	}

	var roots []*Node
	for _, s := range spans {
		n := nodes[s.ID]
		if p, ok := nodes[s.ParentID]; ok && s.ParentID != "" && p != n {
			p.Children = append(p.Children, n)
			continue
		}
		roots = append(roots, n)
	}

	sortNodes(roots)
	for _, n := range nodes {
		sortNodes(n.Children)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].Span, nodes[j].Span
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})
}

// Walk visits the node and its descendants depth first.
func (n *Node) Walk(fn func(n *Node, depth int) error) error {
	return n.walk(fn, 0)
}

func (n *Node) walk(fn func(n *Node, depth int) error, depth int) error {
	switch err := fn(n, depth); {
	case errors.Is(err, SkipChildren):
		return nil
	case err != nil:
		return err
	}
	for _, c := range n.Children {
		if err := c.walk(fn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	total := 0
	_ = n.Walk(func(*Node, int) error {
		total++
		return nil
	})
	return total
}

// Render writes an indented text view of the trees.
func Render(w io.Writer, roots []*Node) error {
	for _, root := range roots {
		err := root.Walk(func(n *Node, depth int) error {
			_, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), formatSpan(n.Span))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func formatSpan(s Span) string {
	label := s.Label
	if label == "" {
		label = "(anonymous)"
	}
	duration := "open"
	if s.Ended() {
		duration = s.Duration.String()
	}
	return fmt.Sprintf("%s [thread=%d level=%d %s parent=%s]", label, s.ThreadID, s.Level, duration, s.ParentState)
}
