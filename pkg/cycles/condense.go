package cycles

import (
	"slices"

	"gonum.org/v1/gonum/graph"
)

// Condensation is the DAG obtained by collapsing each strongly connected
// component into a single vertex.
type Condensation struct {
	Components [][]int64     // members per component
	Of         map[int64]int // node ID -> component index
	Edges      [][]int       // successor components, deduplicated and sorted
	InDegree   []int
}

// Condense builds the condensation of g for the given components. Edges
// inside a component are dropped.
func Condense(g graph.Directed, sccs [][]int64) *Condensation {
	c := &Condensation{
		Components: sccs,
		Of:         make(map[int64]int),
		Edges:      make([][]int, len(sccs)),
		InDegree:   make([]int, len(sccs)),
	}
	for i, scc := range sccs {
		for _, id := range scc {
			c.Of[id] = i
		}
	}

	for i, scc := range sccs {
		for _, id := range scc {
			for _, succ := range sortedIDs(g.From(id)) {
				j, ok := c.Of[succ]
				if !ok || j == i || slices.Contains(c.Edges[i], j) {
					continue
				}
				c.Edges[i] = append(c.Edges[i], j)
				c.InDegree[j]++
			}
		}
		slices.Sort(c.Edges[i])
	}

	return c
}

// LongestPathDepths returns, per component, the number of edges on the
// longest path reaching it from a component with in-degree zero. Sources
// have depth 0. Components are processed with Kahn's algorithm.
func LongestPathDepths(c *Condensation) []int {
	depth := make([]int, len(c.Components))
	remaining := slices.Clone(c.InDegree)

	queue := make([]int, 0, len(c.Components))
	for i, deg := range remaining {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range c.Edges[u] {
			depth[v] = max(depth[v], depth[u]+1)
			remaining[v]--
			if remaining[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	return depth
}
