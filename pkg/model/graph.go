package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Unknown is the display value of an attribute no record supplied.
const Unknown = "Unknown"

// Network is the node/link graph handed to the layout engine and the viewer.
// It serializes to the {nodes, links} artifact shape.
type Network struct {
	Nodes []*Node `json:"nodes"`
	Links []*Link `json:"links"`
}

// NewNetwork creates a new empty network.
func NewNetwork() *Network {
	return &Network{
		Nodes: make([]*Node, 0),
		Links: make([]*Link, 0),
	}
}

// Attributes is the open attribute bag of a node (major, school, year, ...).
// A missing key or an empty value means Unknown.
type Attributes map[string]string

// Get returns the value for key, or Unknown when it is absent.
func (a Attributes) Get(key string) string {
	if v, ok := a[key]; ok && v != "" {
		return v
	}
	return Unknown
}

// Values splits a comma-joined attribute into its trimmed parts.
// Unknown attributes yield nil.
func (a Attributes) Values(key string) []string {
	v, ok := a[key]
	if !ok || v == "" || v == Unknown {
		return nil
	}
	return SplitList(v)
}

// Node represents one person in the forward chain.
type Node struct {
	ID             string
	Attributes     Attributes
	Group          string // comma-joined survey groups the node appeared in
	ComponentGroup int    // weakly-connected component, assigned by analysis
	Placeholder    bool   // referenced as a target but never seen as a row
}

// Link represents one forward from Source to Target.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`            // ordinal forward label: "first", "second", ...
	Depth  int    `json:"depth,omitempty"` // 1-based forward depth within Group
	Group  string `json:"group,omitempty"` // survey group the forward belongs to
}

// reserved keys cannot be used as attribute names in the flat JSON form.
var reserved = map[string]bool{
	"id":             true,
	"group":          true,
	"componentGroup": true,
	"placeholder":    true,
}

// MarshalJSON flattens the attribute bag next to the fixed node fields.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Attributes)+4)
	for k, v := range n.Attributes {
		if reserved[k] {
			continue
		}
		if v == "" {
			v = Unknown
		}
		out[k] = v
	}
	out["id"] = n.ID
	out["group"] = n.Group
	out["componentGroup"] = n.ComponentGroup
	if n.Placeholder {
		out["placeholder"] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat node form written by MarshalJSON.
// Non-string attribute values are kept in their JSON text form.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.Attributes = make(Attributes, len(raw))
	for k, v := range raw {
		switch k {
		case "id":
			if err := json.Unmarshal(v, &n.ID); err != nil {
				return fmt.Errorf("node id: %w", err)
			}
		case "group":
			n.Group = scalarString(v)
		case "componentGroup":
			if err := json.Unmarshal(v, &n.ComponentGroup); err != nil {
				return fmt.Errorf("node %s componentGroup: %w", n.ID, err)
			}
		case "placeholder":
			_ = json.Unmarshal(v, &n.Placeholder)
		default:
			n.Attributes[k] = scalarString(v)
		}
	}
	if n.ID == "" {
		return fmt.Errorf("node without id")
	}
	return nil
}

func scalarString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

// AttributeKeys returns the sorted attribute names used by any node.
func (g *Network) AttributeKeys() []string {
	keys := make(map[string]bool)
	for _, n := range g.Nodes {
		for k := range n.Attributes {
			keys[k] = true
		}
	}
	return slices.Sorted(maps.Keys(keys))
}

// NodeIndex returns a map from node ID to node.
func (g *Network) NodeIndex() map[string]*Node {
	index := make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		index[n.ID] = n
	}
	return index
}

// SplitList splits a comma-separated value into trimmed, non-empty items.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinList joins items the way multi-value attributes are stored.
func JoinList(items []string) string {
	return strings.Join(items, ", ")
}
