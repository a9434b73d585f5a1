package cycles

import (
	"slices"

	"gonum.org/v1/gonum/graph"
)

// TarjanSCC finds all strongly connected components using Tarjan's algorithm.
// The traversal uses an explicit work stack, so chains of any length are safe.
// Nodes and successors are visited in ascending ID order.
type TarjanSCC struct {
	graph   graph.Directed
	index   int
	stack   []int64
	onStack map[int64]bool
	indices map[int64]int
	lowLink map[int64]int
	sccs    [][]int64
}

// frame is one suspended strongConnect call.
type frame struct {
	node       int64
	successors []int64
	next       int
}

// NewTarjanSCC creates a new Tarjan SCC finder
func NewTarjanSCC(g graph.Directed) *TarjanSCC {
	return &TarjanSCC{
		graph:   g,
		stack:   make([]int64, 0),
		onStack: make(map[int64]bool),
		indices: make(map[int64]int),
		lowLink: make(map[int64]int),
		sccs:    make([][]int64, 0),
	}
}

// FindSCCs returns every strongly connected component, singletons included,
// in the order they complete. That order is a reverse topological order of
// the condensation.
func (t *TarjanSCC) FindSCCs() [][]int64 {
	for _, id := range sortedIDs(t.graph.Nodes()) {
		if _, visited := t.indices[id]; !visited {
			t.strongConnect(id)
		}
	}
	return t.sccs
}

// FindCycles returns only the components with more than one node.
func (t *TarjanSCC) FindCycles() [][]int64 {
	var cycles [][]int64
	for _, scc := range t.FindSCCs() {
		if len(scc) > 1 {
			cycles = append(cycles, scc)
		}
	}
	return cycles
}

func (t *TarjanSCC) strongConnect(root int64) {
	work := []*frame{t.visit(root)}

	for len(work) > 0 {
		f := work[len(work)-1]

		if f.next < len(f.successors) {
			successorID := f.successors[f.next]
			f.next++

			if _, visited := t.indices[successorID]; !visited {
				work = append(work, t.visit(successorID))
			} else if t.onStack[successorID] {
				t.lowLink[f.node] = min(t.lowLink[f.node], t.indices[successorID])
			}
			continue
		}

		work = work[:len(work)-1]
		if len(work) > 0 {
			parent := work[len(work)-1].node
			t.lowLink[parent] = min(t.lowLink[parent], t.lowLink[f.node])
		}

		// If the node is a root node, pop the stack and create an SCC
		if t.lowLink[f.node] == t.indices[f.node] {
			scc := make([]int64, 0, 1)
			for {
				w := t.stack[len(t.stack)-1]
				t.stack = t.stack[:len(t.stack)-1]
				t.onStack[w] = false
				scc = append(scc, w)
				if w == f.node {
					break
				}
			}
			slices.Sort(scc)
			t.sccs = append(t.sccs, scc)
		}
	}
}

// visit assigns the depth index to id, pushes it and returns its frame.
func (t *TarjanSCC) visit(id int64) *frame {
	t.indices[id] = t.index
	t.lowLink[id] = t.index
	t.index++

	t.stack = append(t.stack, id)
	t.onStack[id] = true

	return &frame{node: id, successors: sortedIDs(t.graph.From(id))}
}

func sortedIDs(nodes graph.Nodes) []int64 {
	ids := make([]int64, 0, nodes.Len())
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	slices.Sort(ids)
	return ids
}
