package category

import (
	"errors"
	"testing"
)

func seedRows() []Row {
	return []Row{
		{ID: 1, Label: "Food"},
		{ID: 2, Label: "Groceries", ParentID: 1},
		{ID: 3, Label: "Restaurants", ParentID: 1},
		{ID: 4, Label: "Sushi", ParentID: 3},
		{ID: 5, Label: "Housing"},
		{ID: 6, Label: "Rent", ParentID: 5},
	}
}

func TestBuildTree(t *testing.T) {
	tree, err := BuildTree(seedRows())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Size() != 6 {
		t.Fatalf("expected 6 nodes, got %d", tree.Size())
	}

	roots := tree.Roots()
	if len(roots) != 2 || roots[0].Label != "Food" || roots[1].Label != "Housing" {
		t.Fatalf("unexpected roots: %+v", roots)
	}

	food, ok := tree.Node(1)
	if !ok || len(food.Children) != 2 {
		t.Fatalf("expected Food with 2 children")
	}
	if food.Children[0].Label != "Groceries" || food.Children[1].Label != "Restaurants" {
		t.Fatalf("sibling order not preserved: %+v", food.Children)
	}

	path, err := tree.Path(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Food", "Restaurants", "Sushi"}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("expected path %v, got %v", want, path)
		}
	}
}

func TestBuildTreeRejectsBadRows(t *testing.T) {
	if _, err := BuildTree([]Row{{ID: 1, Label: "a"}, {ID: 1, Label: "b"}}); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if _, err := BuildTree([]Row{{ID: 1, Label: "a", ParentID: 9}}); err == nil {
		t.Fatal("expected missing parent error")
	}
	if _, err := BuildTree([]Row{{ID: 1, Label: "a", ParentID: 2}, {ID: 2, Label: "b", ParentID: 1}}); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestViewDefaultState(t *testing.T) {
	tree, err := BuildTree(seedRows())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view := NewView(tree)

	for _, row := range seedRows() {
		if view.Expanded(row.ID) {
			t.Fatalf("node %d expanded in a fresh view", row.ID)
		}
	}
	if _, selected := view.Selected(); selected {
		t.Fatal("fresh view has a selection")
	}
}

func TestViewExpandCollapse(t *testing.T) {
	tree, _ := BuildTree(seedRows())
	view := NewView(tree)

	if err := view.Expand(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := view.Expand(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Non-exclusive expansion: both branches stay open, siblings untouched.
	if !view.Expanded(1) || !view.Expanded(3) {
		t.Fatal("expanded nodes not open")
	}
	if view.Expanded(5) {
		t.Fatal("sibling root expanded unexpectedly")
	}

	if err := view.Collapse(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Expanded(1) {
		t.Fatal("collapse did not close node")
	}
	if !view.Expanded(3) {
		t.Fatal("collapse affected an unrelated node")
	}

	if err := view.Expand(99); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestViewSelect(t *testing.T) {
	tree, _ := BuildTree(seedRows())
	view := NewView(tree)

	if _, err := view.Select(1); !errors.Is(err, ErrNotALeaf) {
		t.Fatalf("expected ErrNotALeaf, got %v", err)
	}
	if _, err := view.Select(42); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}

	sel, err := view.Select(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.NodeID != 2 || sel.Label != "Groceries" {
		t.Fatalf("unexpected selection: %+v", sel)
	}
	if len(sel.Path) != 2 || sel.Path[0] != "Food" {
		t.Fatalf("unexpected path: %v", sel.Path)
	}

	id, ok := view.Selected()
	if !ok || id != 2 {
		t.Fatalf("selection not recorded: %d %v", id, ok)
	}
}
