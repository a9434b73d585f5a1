package cycles

import (
	"github.com/ritzau/forward-chain/pkg/graph"
)

// Cycle represents people who forwarded to each other in a loop.
type Cycle struct {
	Members []string // node ids in the cycle, in insertion order
}

// FindCycles finds all forward loops in the index.
func FindCycles(x *graph.Index) []Cycle {
	tarjan := NewTarjanSCC(x.Graph())

	cycles := make([]Cycle, 0)
	for _, scc := range tarjan.FindCycles() {
		// Convert node IDs back to names
		members := make([]string, 0, len(scc))
		for _, nodeID := range scc {
			members = append(members, x.Name(nodeID))
		}
		cycles = append(cycles, Cycle{Members: members})
	}

	return cycles
}
