package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ritzau/forward-chain/pkg/cycles"
	"github.com/ritzau/forward-chain/pkg/graph"
	"github.com/ritzau/forward-chain/pkg/model"
)

// OrdinalPolicy decides what to call depths past the end of the name list.
type OrdinalPolicy int

const (
	// OrdinalPolicyNumeric falls back to "11th", "21st", "22nd", ...
	OrdinalPolicyNumeric OrdinalPolicy = iota
	// OrdinalPolicyClamp reuses the last name.
	OrdinalPolicyClamp
)

// ParseOrdinalPolicy parses "numeric" or "clamp".
func ParseOrdinalPolicy(s string) (OrdinalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "numeric":
		return OrdinalPolicyNumeric, nil
	case "clamp":
		return OrdinalPolicyClamp, nil
	}
	return OrdinalPolicyNumeric, fmt.Errorf("unknown ordinal policy %q", s)
}

// DefaultOrdinals are the link type names for depths one through ten.
var DefaultOrdinals = []string{
	"first", "second", "third", "fourth", "fifth",
	"sixth", "seventh", "eighth", "ninth", "tenth",
}

// OrdinalNames maps 1-based forward depths to link type labels.
type OrdinalNames struct {
	Names  []string
	Policy OrdinalPolicy
}

// DefaultOrdinalNames returns first..tenth with numeric overflow.
func DefaultOrdinalNames() OrdinalNames {
	return OrdinalNames{Names: DefaultOrdinals, Policy: OrdinalPolicyNumeric}
}

// Name returns the label for depth. Depths below one are treated as one.
func (o OrdinalNames) Name(depth int) string {
	depth = max(depth, 1)
	if depth <= len(o.Names) {
		return o.Names[depth-1]
	}
	if o.Policy == OrdinalPolicyClamp && len(o.Names) > 0 {
		return o.Names[len(o.Names)-1]
	}
	return numericOrdinal(depth)
}

func numericOrdinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// ordinalRank returns the depth a link type name stands for, or 0.
func ordinalRank(name string) int {
	for i, n := range DefaultOrdinals {
		if n == name {
			return i + 1
		}
	}
	digits := strings.TrimRight(name, "stndrh")
	if n, err := strconv.Atoi(digits); err == nil && n > 0 && numericOrdinal(n) == name {
		return n
	}
	return 0
}

// CompareLinkTypes orders link type names by the depth they denote. Names
// that are not ordinals sort last, alphabetically.
func CompareLinkTypes(a, b string) int {
	ra, rb := ordinalRank(a), ordinalRank(b)
	switch {
	case ra == rb:
		return strings.Compare(a, b)
	case ra == 0:
		return 1
	case rb == 0:
		return -1
	}
	return ra - rb
}

// LabelDepths sets Depth and Type on every link. Each survey group is
// labeled on its own: strongly connected components are collapsed and a
// link's depth is one more than the longest path reaching its source's
// component. Forward loops therefore share one depth.
func LabelDepths(net *model.Network, names OrdinalNames) {
	for _, links := range partitionByGroup(net.Links) {
		x := graph.NewIndex()
		for _, l := range links {
			x.AddEdge(l.Source, l.Target)
		}

		sccs := cycles.NewTarjanSCC(x.Graph()).FindSCCs()
		condensed := cycles.Condense(x.Graph(), sccs)
		depths := cycles.LongestPathDepths(condensed)

		for _, l := range links {
			id, _ := x.ID(l.Source)
			l.Depth = depths[condensed.Of[id]] + 1
			l.Type = names.Name(l.Depth)
		}
	}
}

// partitionByGroup splits links by Group, groups in first-appearance order.
func partitionByGroup(links []*model.Link) [][]*model.Link {
	index := make(map[string]int)
	var parts [][]*model.Link
	for _, l := range links {
		i, ok := index[l.Group]
		if !ok {
			i = len(parts)
			index[l.Group] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], l)
	}
	return parts
}
