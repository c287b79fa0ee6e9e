package category

// SelectionResult describes a confirmed leaf selection.
type SelectionResult struct {
	NodeID int64
	Label  string
	Path   []string
}

// View is the per-session expand/collapse state of one open selector.
// A fresh view starts fully collapsed with nothing selected; reopening the
// selector means constructing a new View. A View is not safe for concurrent
// use; callers serialize access to it.
type View struct {
	tree     *Tree
	expanded map[int64]bool
	selected int64
}

// NewView opens a selector over the tree in its default state.
func NewView(tree *Tree) *View {
	return &View{tree: tree, expanded: make(map[int64]bool)}
}

// Expand opens the targeted node. Siblings and ancestors are unaffected;
// several branches may be open at once.
func (v *View) Expand(id int64) error {
	if _, ok := v.tree.Node(id); !ok {
		return ErrUnknownNode
	}
	v.expanded[id] = true
	return nil
}

// Collapse closes the targeted node only.
func (v *View) Collapse(id int64) error {
	if _, ok := v.tree.Node(id); !ok {
		return ErrUnknownNode
	}
	delete(v.expanded, id)
	return nil
}

// Expanded reports the open state of a node.
func (v *View) Expanded(id int64) bool { return v.expanded[id] }

// Select chooses a leaf as the expense category. Selecting a node that has
// children fails with ErrNotALeaf and leaves any prior selection intact.
func (v *View) Select(id int64) (SelectionResult, error) {
	leaf, err := v.tree.Leaf(id)
	if err != nil {
		return SelectionResult{}, err
	}
	path, err := v.tree.Path(id)
	if err != nil {
		return SelectionResult{}, err
	}
	v.selected = id
	return SelectionResult{NodeID: leaf.ID, Label: leaf.Label, Path: path}, nil
}

// Selected returns the currently chosen leaf, if any.
func (v *View) Selected() (int64, bool) {
	return v.selected, v.selected != 0
}
