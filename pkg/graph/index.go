package graph

import (
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Index is a directed graph over string node names backed by gonum.
// Graph IDs are assigned densely in insertion order, so sorting by ID
// recovers first-appearance order.
type Index struct {
	graph *simple.DirectedGraph
	ids   map[string]int64 // Map from node name to graph ID
	names []string         // Graph ID -> node name
}

// NewIndex creates a new empty index.
func NewIndex() *Index {
	return &Index{
		graph: simple.NewDirectedGraph(),
		ids:   make(map[string]int64),
	}
}

// AddNode adds name to the graph if needed and returns its ID.
func (x *Index) AddNode(name string) int64 {
	if id, exists := x.ids[name]; exists {
		return id
	}

	id := int64(len(x.names))
	x.ids[name] = id
	x.names = append(x.names, name)
	x.graph.AddNode(simple.Node(id))
	return id
}

// AddEdge adds a directed edge from source to target, adding missing nodes.
// Self loops are ignored and parallel edges collapse into one.
func (x *Index) AddEdge(source, target string) {
	sourceID := x.AddNode(source)
	targetID := x.AddNode(target)
	if sourceID == targetID {
		return
	}

	if !x.graph.HasEdgeFromTo(sourceID, targetID) {
		x.graph.SetEdge(x.graph.NewEdge(x.graph.Node(sourceID), x.graph.Node(targetID)))
	}
}

// ID returns the graph ID of name.
func (x *Index) ID(name string) (int64, bool) {
	id, ok := x.ids[name]
	return id, ok
}

// Name returns the node name for a graph ID, or "" if it is unknown.
func (x *Index) Name(id int64) string {
	if id < 0 || id >= int64(len(x.names)) {
		return ""
	}
	return x.names[id]
}

// Len returns the number of nodes.
func (x *Index) Len() int {
	return len(x.names)
}

// Names returns all node names in insertion order.
func (x *Index) Names() []string {
	return slices.Clone(x.names)
}

// Successors returns the targets of edges leaving id in insertion order.
func (x *Index) Successors(id int64) []int64 {
	nodes := graph.NodesOf(x.graph.From(id))
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	slices.Sort(out)
	return out
}

// Graph returns the underlying directed graph.
func (x *Index) Graph() *simple.DirectedGraph {
	return x.graph
}
