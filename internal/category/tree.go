// Package category models the hierarchical expense taxonomy and the
// per-view expand/collapse selection state of the category selector.
package category

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode reports an ID that does not resolve to any node.
	ErrUnknownNode = errors.New("unknown-node")
	// ErrNotALeaf reports a selection attempt on a node with children.
	ErrNotALeaf = errors.New("not-a-leaf")
)

// Node is one entry in the taxonomy. The structure (label, children) is
// immutable after the tree is built; only a leaf may be chosen as an
// expense category.
type Node struct {
	ID       int64
	Label    string
	Children []*Node

	parent *Node
}

// Leaf reports whether the node has no children.
func (n *Node) Leaf() bool { return len(n.Children) == 0 }

// Row is a flat taxonomy entry as loaded from storage. ParentID zero marks
// a root node. Sibling order follows slice order.
type Row struct {
	ID       int64
	Label    string
	ParentID int64
}

// Tree is the assembled taxonomy: a rooted, acyclic forest with an ID index.
type Tree struct {
	roots []*Node
	index map[int64]*Node
}

// BuildTree assembles rows into a tree. Rows may arrive in any order;
// a row referencing a missing parent or a duplicated ID is an error.
func BuildTree(rows []Row) (*Tree, error) {
	t := &Tree{index: make(map[int64]*Node, len(rows))}

	for _, r := range rows {
		if r.ID <= 0 {
			return nil, fmt.Errorf("category row %q: invalid id %d", r.Label, r.ID)
		}
		if _, dup := t.index[r.ID]; dup {
			return nil, fmt.Errorf("category row %q: duplicate id %d", r.Label, r.ID)
		}
		t.index[r.ID] = &Node{ID: r.ID, Label: r.Label}
	}

	for _, r := range rows {
		node := t.index[r.ID]
		if r.ParentID == 0 {
			t.roots = append(t.roots, node)
			continue
		}
		parent, ok := t.index[r.ParentID]
		if !ok {
			return nil, fmt.Errorf("category row %q: missing parent %d", r.Label, r.ParentID)
		}
		if parent == node {
			return nil, fmt.Errorf("category row %q: node is its own parent", r.Label)
		}
		node.parent = parent
		parent.Children = append(parent.Children, node)
	}

	// Every node must be reachable from a root; anything left over sits on
	// a cycle detached from the forest.
	reachable := 0
	var walk func(*Node)
	walk = func(n *Node) {
		reachable++
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, root := range t.roots {
		walk(root)
	}
	if reachable != len(t.index) {
		return nil, errors.New("category rows contain a cycle")
	}

	return t, nil
}

// Roots returns the top-level nodes in insertion order.
func (t *Tree) Roots() []*Node { return t.roots }

// Node resolves an ID.
func (t *Tree) Node(id int64) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// Leaf resolves an ID and requires it to be selectable.
func (t *Tree) Leaf(id int64) (*Node, error) {
	n, ok := t.index[id]
	if !ok {
		return nil, ErrUnknownNode
	}
	if !n.Leaf() {
		return nil, ErrNotALeaf
	}
	return n, nil
}

// Path returns the labels from the root down to the given node.
func (t *Tree) Path(id int64) ([]string, error) {
	n, ok := t.index[id]
	if !ok {
		return nil, ErrUnknownNode
	}
	var rev []string
	for cur := n; cur != nil; cur = cur.parent {
		rev = append(rev, cur.Label)
	}
	path := make([]string, len(rev))
	for i, label := range rev {
		path[len(rev)-1-i] = label
	}
	return path, nil
}

// Size returns the number of nodes.
func (t *Tree) Size() int { return len(t.index) }
