package analysis

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ritzau/forward-chain/pkg/graph"
	"github.com/ritzau/forward-chain/pkg/model"
	"github.com/ritzau/forward-chain/pkg/records"
)

func network(ids []string, links ...[3]string) *model.Network {
	net := model.NewNetwork()
	for _, id := range ids {
		net.Nodes = append(net.Nodes, &model.Node{ID: id, Attributes: model.Attributes{}})
	}
	for _, l := range links {
		net.Links = append(net.Links, &model.Link{Source: l[0], Target: l[1], Group: l[2]})
	}
	return net
}

func TestAnalyzeTwoPersonChain(t *testing.T) {
	rows := []records.Row{
		{"UNI": "AAA1234", "Group": "1", "nextUNI": "BBB5678"},
		{"UNI": "BBB5678", "Group": "1", "nextUNI": ""},
	}
	net := graph.Build(records.Normalize(slices.Values(rows), records.DefaultFields()), graph.DefaultOptions())

	if err := Analyze(net, DefaultOptions()); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(net.Nodes) != 2 || net.Nodes[0].ID != "AAA1234" || net.Nodes[1].ID != "BBB5678" {
		t.Fatalf("Expected nodes [AAA1234 BBB5678], got %v", net.Nodes)
	}
	if len(net.Links) != 1 {
		t.Fatalf("Expected 1 link, got %d", len(net.Links))
	}
	l := net.Links[0]
	if l.Source != "AAA1234" || l.Target != "BBB5678" || l.Type != "first" {
		t.Errorf("Expected AAA1234 -first-> BBB5678, got %s -%s-> %s", l.Source, l.Type, l.Target)
	}
	for _, n := range net.Nodes {
		if n.ComponentGroup != 0 {
			t.Errorf("Expected %s in componentGroup 0, got %d", n.ID, n.ComponentGroup)
		}
	}
}

func TestAnalyzeEmptyIdentifier(t *testing.T) {
	rows := []records.Row{{"UNI": "", "Group": "1", "nextUNI": "BBB5678"}}
	net := graph.Build(records.Normalize(slices.Values(rows), records.DefaultFields()), graph.DefaultOptions())

	if err := Analyze(net, DefaultOptions()); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(net.Nodes) != 0 || len(net.Links) != 0 {
		t.Errorf("Expected empty network, got %d nodes and %d links", len(net.Nodes), len(net.Links))
	}
}

func TestAnalyzeDanglingLink(t *testing.T) {
	net := network([]string{"a"}, [3]string{"a", "ghost", "1"})

	err := Analyze(net, DefaultOptions())
	if !errors.Is(err, ErrDanglingLink) {
		t.Fatalf("Expected ErrDanglingLink, got %v", err)
	}
	if net.Links[0].Type != "" {
		t.Error("Expected links to stay unlabeled on error")
	}
}

func TestLabelDepthsChain(t *testing.T) {
	net := network([]string{"a", "b", "c", "d"},
		[3]string{"a", "b", "1"},
		[3]string{"b", "c", "1"},
		[3]string{"c", "d", "1"},
	)

	LabelDepths(net, DefaultOrdinalNames())

	want := []string{"first", "second", "third"}
	for i, l := range net.Links {
		if l.Type != want[i] || l.Depth != i+1 {
			t.Errorf("Link %d: expected %s/%d, got %s/%d", i, want[i], i+1, l.Type, l.Depth)
		}
	}
}

func TestLabelDepthsCycleSharesDepth(t *testing.T) {
	net := network([]string{"a", "b", "c", "d"},
		[3]string{"a", "b", "1"},
		[3]string{"b", "c", "1"},
		[3]string{"c", "b", "1"},
		[3]string{"c", "d", "1"},
	)

	LabelDepths(net, DefaultOrdinalNames())

	// b and c collapse into one component at depth 1.
	want := []int{1, 2, 2, 2}
	for i, l := range net.Links {
		if l.Depth != want[i] {
			t.Errorf("Link %s->%s: expected depth %d, got %d", l.Source, l.Target, want[i], l.Depth)
		}
	}
}

func TestLabelDepthsPureCycleIsFirst(t *testing.T) {
	net := network([]string{"a", "b", "c"},
		[3]string{"a", "b", "1"},
		[3]string{"b", "c", "1"},
		[3]string{"c", "a", "1"},
	)

	LabelDepths(net, DefaultOrdinalNames())

	for _, l := range net.Links {
		if l.Type != "first" {
			t.Errorf("Link %s->%s: expected first, got %s", l.Source, l.Target, l.Type)
		}
	}
}

func TestLabelDepthsPerGroup(t *testing.T) {
	net := network([]string{"a", "b", "c"},
		[3]string{"a", "b", "1"},
		[3]string{"b", "c", "1"},
		[3]string{"b", "c", "2"},
	)

	LabelDepths(net, DefaultOrdinalNames())

	if net.Links[1].Type != "second" {
		t.Errorf("Expected b->c second in group 1, got %s", net.Links[1].Type)
	}
	if net.Links[2].Type != "first" {
		t.Errorf("Expected b->c first in group 2, got %s", net.Links[2].Type)
	}
}

func TestLabelDepthsGroupIndependence(t *testing.T) {
	base := network([]string{"a", "b", "c"},
		[3]string{"a", "b", "1"},
		[3]string{"b", "c", "1"},
	)
	LabelDepths(base, DefaultOrdinalNames())

	mixed := network([]string{"a", "b", "c", "x"},
		[3]string{"x", "a", "2"},
		[3]string{"a", "b", "1"},
		[3]string{"c", "a", "2"},
		[3]string{"b", "c", "1"},
	)
	LabelDepths(mixed, DefaultOrdinalNames())

	if mixed.Links[1].Type != base.Links[0].Type || mixed.Links[3].Type != base.Links[1].Type {
		t.Errorf("Expected group 1 labels %s/%s, got %s/%s",
			base.Links[0].Type, base.Links[1].Type, mixed.Links[1].Type, mixed.Links[3].Type)
	}
}

func TestLabelDepthsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := range 20 {
		var ids []string
		for i := range 30 {
			ids = append(ids, fmt.Sprint(i))
		}
		var links [][3]string
		for range 45 {
			links = append(links, [3]string{fmt.Sprint(rng.IntN(30)), fmt.Sprint(rng.IntN(30)), "1"})
		}
		net := network(ids, links...)
		LabelDepths(net, DefaultOrdinalNames())

		// Depth of a node's outgoing links, per source.
		out := make(map[string]int)
		for _, l := range net.Links {
			out[l.Source] = l.Depth
		}
		sccs := sccOf(net)
		for _, l := range net.Links {
			d, ok := out[l.Target]
			if !ok || sccs[l.Source] == sccs[l.Target] {
				continue
			}
			if d <= l.Depth {
				t.Errorf("trial %d: expected depth after %s->%s (%d) to exceed %d", trial, l.Source, l.Target, d, l.Depth)
			}
		}
	}
}

// sccOf maps node id to a strongly connected component number via gonum.
func sccOf(net *model.Network) map[string]int {
	x := graph.NewIndex()
	for _, n := range net.Nodes {
		x.AddNode(n.ID)
	}
	for _, l := range net.Links {
		x.AddEdge(l.Source, l.Target)
	}
	out := make(map[string]int)
	for i, comp := range topo.TarjanSCC(x.Graph()) {
		for _, n := range comp {
			out[x.Name(n.ID())] = i
		}
	}
	return out
}

func TestOrdinalNames(t *testing.T) {
	names := DefaultOrdinalNames()
	tests := map[int]string{
		0: "first", 1: "first", 2: "second", 10: "tenth",
		11: "11th", 12: "12th", 13: "13th", 21: "21st",
		22: "22nd", 23: "23rd", 101: "101st", 111: "111th",
	}
	for depth, want := range tests {
		if got := names.Name(depth); got != want {
			t.Errorf("Name(%d): expected %s, got %s", depth, want, got)
		}
	}

	names.Policy = OrdinalPolicyClamp
	if got := names.Name(42); got != "tenth" {
		t.Errorf("Expected clamp to tenth, got %s", got)
	}
}

func TestComponentsMatchReachability(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := range 20 {
		var ids []string
		for i := range 40 {
			ids = append(ids, fmt.Sprint(i))
		}
		var links [][3]string
		for range 25 {
			links = append(links, [3]string{fmt.Sprint(rng.IntN(40)), fmt.Sprint(rng.IntN(40)), "1"})
		}
		net := network(ids, links...)
		count := AssignComponents(net)

		reach := undirectedReach(net)
		for _, a := range net.Nodes {
			for _, b := range net.Nodes {
				same := a.ComponentGroup == b.ComponentGroup
				if same != reach[a.ID][b.ID] {
					t.Fatalf("trial %d: %s and %s same group %v, reachable %v", trial, a.ID, b.ID, same, reach[a.ID][b.ID])
				}
			}
		}

		ug := simple.NewUndirectedGraph()
		for i := range ids {
			ug.AddNode(simple.Node(int64(i)))
		}
		for _, l := range net.Links {
			var s, d int64
			fmt.Sscan(l.Source, &s)
			fmt.Sscan(l.Target, &d)
			if s != d && !ug.HasEdgeBetween(s, d) {
				ug.SetEdge(ug.NewEdge(simple.Node(s), simple.Node(d)))
			}
		}
		if want := len(topo.ConnectedComponents(ug)); count != want {
			t.Errorf("trial %d: expected %d components, got %d", trial, want, count)
		}
	}
}

// undirectedReach computes reachability ignoring direction by repeated BFS.
func undirectedReach(net *model.Network) map[string]map[string]bool {
	adj := make(map[string][]string)
	for _, l := range net.Links {
		adj[l.Source] = append(adj[l.Source], l.Target)
		adj[l.Target] = append(adj[l.Target], l.Source)
	}
	reach := make(map[string]map[string]bool)
	for _, n := range net.Nodes {
		seen := map[string]bool{n.ID: true}
		queue := []string{n.ID}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, v := range adj[u] {
				if !seen[v] {
					seen[v] = true
					queue = append(queue, v)
				}
			}
		}
		reach[n.ID] = seen
	}
	return reach
}

func TestComponentsOrder(t *testing.T) {
	net := network([]string{"a", "b", "c", "d", "e"},
		[3]string{"d", "b", "1"},
		[3]string{"e", "a", "1"},
	)

	got := Components(net)
	want := [][]string{{"a", "e"}, {"b", "d"}, {"c"}}
	if !slices.EqualFunc(got, want, slices.Equal[[]string]) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSummarize(t *testing.T) {
	net := network([]string{"a", "b", "c", "d"},
		[3]string{"a", "b", "1"},
		[3]string{"b", "a", "1"},
		[3]string{"b", "c", "2"},
	)
	net.Nodes[3].Placeholder = true
	if err := Analyze(net, DefaultOptions()); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	s := Summarize(net)
	if s.Nodes != 4 || s.Links != 3 || s.Placeholders != 1 {
		t.Errorf("Expected 4 nodes, 3 links, 1 placeholder, got %+v", s)
	}
	if s.Components != 2 || s.LargestComponent != 3 || s.Singletons != 1 {
		t.Errorf("Expected 2 components (largest 3, 1 singleton), got %+v", s)
	}
	if s.Cycles != 1 {
		t.Errorf("Expected 1 cycle, got %d", s.Cycles)
	}
	if !slices.Equal(s.Groups, []string{"1", "2"}) {
		t.Errorf("Expected groups [1 2], got %v", s.Groups)
	}
	if s.LinkTypes["first"] != 3 || s.MaxDepth != 1 {
		t.Errorf("Expected 3 first links at depth 1, got %v (max %d)", s.LinkTypes, s.MaxDepth)
	}
}

func TestCompareLinkTypes(t *testing.T) {
	types := []string{"direct", "11th", "second", "first", "tenth", "22nd"}
	slices.SortFunc(types, CompareLinkTypes)
	want := []string{"first", "second", "tenth", "11th", "22nd", "direct"}
	if !slices.Equal(types, want) {
		t.Errorf("Expected %v, got %v", want, types)
	}
}
