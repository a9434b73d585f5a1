package analysis

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ritzau/forward-chain/pkg/cycles"
	"github.com/ritzau/forward-chain/pkg/graph"
	"github.com/ritzau/forward-chain/pkg/model"
)

// ErrDanglingLink is returned when a link names a node the network lacks.
var ErrDanglingLink = errors.New("link references unknown node")

// Options configures Analyze.
type Options struct {
	Names OrdinalNames
}

// DefaultOptions labels depths first..tenth with numeric overflow.
func DefaultOptions() Options {
	return Options{Names: DefaultOrdinalNames()}
}

// Analyze labels link depths and assigns component groups. The network is
// left untouched when a link is dangling.
func Analyze(net *model.Network, opts Options) error {
	if err := CheckLinks(net); err != nil {
		return err
	}
	if opts.Names.Names == nil {
		opts.Names = DefaultOrdinalNames()
	}

	LabelDepths(net, opts.Names)
	AssignComponents(net)
	return nil
}

// CheckLinks reports every link whose endpoints are not both nodes.
func CheckLinks(net *model.Network) error {
	index := net.NodeIndex()
	var errs []error
	for _, l := range net.Links {
		_, okS := index[l.Source]
		_, okT := index[l.Target]
		if !okS || !okT {
			errs = append(errs, fmt.Errorf("%w: %s -> %s", ErrDanglingLink, l.Source, l.Target))
		}
	}
	return errors.Join(errs...)
}

// Summary holds headline numbers for an analyzed network.
type Summary struct {
	Nodes            int            `json:"nodes"`
	Placeholders     int            `json:"placeholders"`
	Links            int            `json:"links"`
	Components       int            `json:"components"`
	LargestComponent int            `json:"largestComponent"`
	Singletons       int            `json:"singletons"`
	Groups           []string       `json:"groups"`
	MaxDepth         int            `json:"maxDepth"`
	Cycles           int            `json:"cycles"`
	LinkTypes        map[string]int `json:"linkTypes"`
}

// Summarize computes the summary of an analyzed network.
func Summarize(net *model.Network) Summary {
	s := Summary{
		Nodes:     len(net.Nodes),
		Links:     len(net.Links),
		LinkTypes: make(map[string]int),
		Groups:    make([]string, 0),
	}

	for _, n := range net.Nodes {
		if n.Placeholder {
			s.Placeholders++
		}
	}

	components := Components(net)
	s.Components = len(components)
	for _, c := range components {
		s.LargestComponent = max(s.LargestComponent, len(c))
		if len(c) == 1 {
			s.Singletons++
		}
	}

	for _, l := range net.Links {
		s.MaxDepth = max(s.MaxDepth, l.Depth)
		if l.Type != "" {
			s.LinkTypes[l.Type]++
		}
	}

	for _, links := range partitionByGroup(net.Links) {
		s.Groups = append(s.Groups, links[0].Group)
		x := graph.NewIndex()
		for _, l := range links {
			x.AddEdge(l.Source, l.Target)
		}
		s.Cycles += len(cycles.FindCycles(x))
	}
	slices.Sort(s.Groups)

	return s
}
