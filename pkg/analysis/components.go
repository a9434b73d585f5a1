package analysis

import (
	"slices"

	"github.com/ritzau/forward-chain/pkg/model"
)

// Components partitions the nodes into weakly connected components, ignoring
// link direction. Components are numbered in the order of their first node
// and members keep node order. Links to unknown nodes are ignored.
func Components(net *model.Network) [][]string {
	position := make(map[string]int, len(net.Nodes))
	for i, n := range net.Nodes {
		position[n.ID] = i
	}

	adjacency := make([][]int, len(net.Nodes))
	for _, l := range net.Links {
		s, okS := position[l.Source]
		t, okT := position[l.Target]
		if !okS || !okT || s == t {
			continue
		}
		adjacency[s] = append(adjacency[s], t)
		adjacency[t] = append(adjacency[t], s)
	}

	group := make([]int, len(net.Nodes))
	for i := range group {
		group[i] = -1
	}

	var components [][]int
	for start := range net.Nodes {
		if group[start] >= 0 {
			continue
		}
		g := len(components)
		members := []int{start}
		group[start] = g

		stack := []int{start}
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, v := range adjacency[u] {
				if group[v] < 0 {
					group[v] = g
					members = append(members, v)
					stack = append(stack, v)
				}
			}
		}
		components = append(components, members)
	}

	out := make([][]string, len(components))
	for g, members := range components {
		ids := make([]string, len(members))
		slices.Sort(members)
		for i, m := range members {
			ids[i] = net.Nodes[m].ID
		}
		out[g] = ids
	}
	return out
}

// AssignComponents sets ComponentGroup on every node and returns the number
// of components.
func AssignComponents(net *model.Network) int {
	index := net.NodeIndex()
	components := Components(net)
	for g, ids := range components {
		for _, id := range ids {
			index[id].ComponentGroup = g
		}
	}
	return len(components)
}
