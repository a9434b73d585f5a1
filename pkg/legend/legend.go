// Package legend derives color legends for node attributes and link types.
// Everything here is a pure function of its input.
package legend

import (
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/gobwas/glob"

	"github.com/ritzau/forward-chain/pkg/model"
)

// UnknownColor is used for Unknown values and unlabeled link types.
const UnknownColor = "#9e9e9e"

// Palette is cycled through for values without a default color.
var Palette = []string{
	"#4285f4", "#ea4335", "#fbbc05", "#34a853", "#673ab7", "#9C27B0", "#00ACC1",
	"#FF5722", "#795548", "#607D8B", "#3F51B5", "#009688", "#FFC107", "#8BC34A",
	"#E91E63", "#9E9E9E",
}

// Swatch is a value with a fixed color.
type Swatch struct {
	Value string
	Color string
}

// Defaults are the fixed colors per attribute, in legend order.
var Defaults = map[string][]Swatch{
	"major": {
		{"Mechanical Engineering", "#4285f4"},
		{"Creative Writing", "#ea4335"},
		{"Biomedical Engineering", "#fbbc05"},
		{"Psychology", "#34a853"},
		{"Human Rights", "#673ab7"},
		{"Comparative Literature & Society", "#9C27B0"},
		{"Computer Science", "#00ACC1"},
	},
	"school": {
		{"SEAS", "#4285f4"},
		{"CC", "#ea4335"},
		{"Barnard", "#34a853"},
	},
	"year": {
		{"2025", "#673ab7"},
		{"2026", "#4285f4"},
		{"2027", "#ea4335"},
	},
	"language": {
		{"French", "#4285f4"},
		{"Spanish", "#ea4335"},
		{"Mandarin", "#fbbc05"},
		{"Greek", "#673ab7"},
		{"English", "#34a853"},
	},
}

// LinkColors are the fixed colors per link type.
var LinkColors = map[string]string{
	"first":  "#FF0000",
	"second": "#FF7F00",
	"direct": "#000000",
}

// LinkGray colors link types without a fixed color.
const LinkGray = "#999999"

// Entry is one row of a legend.
type Entry struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Count  int    `json:"count"`
	Dashed bool   `json:"dashed,omitempty"`
}

// Value returns the raw value of attribute on n. The fixed node fields
// "group" and "componentGroup" can be used like attributes.
func Value(n *model.Node, attribute string) string {
	switch attribute {
	case "group":
		if n.Group == "" {
			return model.Unknown
		}
		return n.Group
	case "componentGroup":
		return strconv.Itoa(n.ComponentGroup)
	}
	return n.Attributes.Get(attribute)
}

func values(n *model.Node, attribute string) []string {
	v := Value(n, attribute)
	if v == model.Unknown {
		return nil
	}
	return model.SplitList(v)
}

// UniqueValues returns the distinct values of attribute across nodes in
// order of first appearance. Multi-value attributes are split and Unknown
// is left out.
func UniqueValues(nodes []*model.Node, attribute string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, n := range nodes {
		for _, v := range values(n, attribute) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// SideTables returns UniqueValues for every attribute key.
func SideTables(net *model.Network) model.SideTables {
	tables := make(model.SideTables)
	for _, key := range net.AttributeKeys() {
		tables[key] = UniqueValues(net.Nodes, key)
	}
	return tables
}

// Derive builds the legend for attribute. Values with a default color come
// first in default order, then other values in order of first appearance
// with palette colors, then Unknown.
func Derive(nodes []*model.Node, attribute string) []Entry {
	counts := make(map[string]int)
	unknown := 0
	for _, n := range nodes {
		vals := values(n, attribute)
		if len(vals) == 0 {
			unknown++
		}
		for _, v := range vals {
			counts[v]++
		}
	}

	unique := UniqueValues(nodes, attribute)
	colors := Colors(unique, attribute)

	var entries []Entry
	listed := make(map[string]bool)
	for _, sw := range Defaults[attribute] {
		if counts[sw.Value] == 0 {
			continue
		}
		entries = append(entries, Entry{Value: sw.Value, Label: sw.Value, Color: sw.Color, Count: counts[sw.Value]})
		listed[sw.Value] = true
	}
	for _, v := range unique {
		if listed[v] {
			continue
		}
		entries = append(entries, Entry{Value: v, Label: v, Color: colors[v], Count: counts[v]})
	}
	if unknown > 0 {
		entries = append(entries, Entry{Value: model.Unknown, Label: model.Unknown, Color: UnknownColor, Count: unknown})
	}
	return entries
}

// Colors assigns a color to every value: the default color when one exists,
// otherwise Palette indexed by the value's position in unique.
func Colors(unique []string, attribute string) map[string]string {
	colors := map[string]string{model.Unknown: UnknownColor}
	for _, sw := range Defaults[attribute] {
		colors[sw.Value] = sw.Color
	}
	for i, v := range unique {
		if _, ok := colors[v]; !ok {
			colors[v] = Palette[i%len(Palette)]
		}
	}
	return colors
}

// LinkTypes builds the legend for link types, ordered by depth.
func LinkTypes(links []*model.Link) []Entry {
	type seen struct {
		entry Entry
		depth int
	}
	byType := make(map[string]*seen)
	var order []string
	for _, l := range links {
		typ := l.Type
		if typ == "" {
			typ = model.Unknown
		}
		s, ok := byType[typ]
		if !ok {
			color, fixed := LinkColors[typ]
			if !fixed {
				color = LinkGray
			}
			s = &seen{
				entry: Entry{Value: typ, Label: Label(typ) + " Forwards", Color: color, Dashed: typ == "direct"},
				depth: l.Depth,
			}
			byType[typ] = s
			order = append(order, typ)
		}
		s.entry.Count++
		s.depth = min(s.depth, l.Depth)
	}

	slices.SortStableFunc(order, func(a, b string) int {
		return byType[a].depth - byType[b].depth
	})
	entries := make([]Entry, len(order))
	for i, typ := range order {
		entries[i] = byType[typ].entry
	}
	return entries
}

// HiddenAttributes are glob patterns for keys that never make sense to
// color by.
var HiddenAttributes = []string{
	"id", "x", "y", "vx", "vy", "fx", "fy", "placeholder", "cu_major", "zip_*",
}

var hidden = compileGlobs(HiddenAttributes)

func compileGlobs(patterns []string) []glob.Glob {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		matchers = append(matchers, glob.MustCompile(pattern))
	}
	return matchers
}

func isHidden(key string) bool {
	for _, m := range hidden {
		if m.Match(key) {
			return true
		}
	}
	return false
}

// Attributes lists the keys nodes can be colored by, sorted.
func Attributes(nodes []*model.Node) []string {
	keys := map[string]bool{"group": len(nodes) > 0}
	for _, n := range nodes {
		for k := range n.Attributes {
			keys[k] = true
		}
	}

	out := make([]string, 0, len(keys))
	for k, ok := range keys {
		if !ok || isHidden(k) {
			continue
		}
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Label turns an attribute key into a title: "cu_friends" -> "Cu Friends".
func Label(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
