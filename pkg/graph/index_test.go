package graph

import (
	"slices"
	"testing"
)

func TestNewIndex(t *testing.T) {
	x := NewIndex()
	if x == nil {
		t.Fatal("NewIndex() returned nil")
	}

	if x.Len() != 0 {
		t.Errorf("New index should have 0 nodes, got %d", x.Len())
	}
}

func TestIndexAddNode(t *testing.T) {
	x := NewIndex()

	a := x.AddNode("ab1234")
	b := x.AddNode("cd5678")
	again := x.AddNode("ab1234")

	if a != 0 || b != 1 {
		t.Errorf("Expected dense IDs 0 and 1, got %d and %d", a, b)
	}
	if again != a {
		t.Errorf("Expected re-adding to return %d, got %d", a, again)
	}
	if x.Len() != 2 {
		t.Errorf("Expected 2 nodes, got %d", x.Len())
	}
	if x.Name(b) != "cd5678" {
		t.Errorf("Expected name cd5678, got %s", x.Name(b))
	}
	if x.Name(42) != "" {
		t.Errorf("Expected empty name for unknown ID, got %s", x.Name(42))
	}
}

func TestIndexAddEdge(t *testing.T) {
	x := NewIndex()

	x.AddEdge("a", "b")
	x.AddEdge("a", "b")
	x.AddEdge("a", "a")
	x.AddEdge("a", "c")

	if x.Graph().Edges().Len() != 2 {
		t.Errorf("Expected 2 edges, got %d", x.Graph().Edges().Len())
	}

	id, _ := x.ID("a")
	succ := x.Successors(id)
	var names []string
	for _, s := range succ {
		names = append(names, x.Name(s))
	}
	if !slices.Equal(names, []string{"b", "c"}) {
		t.Errorf("Expected successors [b c], got %v", names)
	}
}

func TestIndexNamesInInsertionOrder(t *testing.T) {
	x := NewIndex()
	x.AddEdge("z", "y")
	x.AddNode("a")

	if got := x.Names(); !slices.Equal(got, []string{"z", "y", "a"}) {
		t.Errorf("Expected [z y a], got %v", got)
	}
}
