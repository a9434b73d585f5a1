package graph

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/ritzau/forward-chain/pkg/logging"
	"github.com/ritzau/forward-chain/pkg/model"
	"github.com/ritzau/forward-chain/pkg/records"
)

// MergePolicy decides how conflicting singular attribute values of records
// sharing an identifier are combined. List-valued fields are always unioned.
type MergePolicy int

const (
	MergeFirstSeen MergePolicy = iota // keep the first non-Unknown value
	MergeLastSeen                     // later non-Unknown values replace earlier ones
	MergeUnion                        // comma-join all distinct values
)

// ParseMergePolicy parses "first", "last" or "union".
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return MergeFirstSeen, nil
	case "last":
		return MergeLastSeen, nil
	case "union":
		return MergeUnion, nil
	}
	return MergeFirstSeen, fmt.Errorf("unknown merge policy %q", s)
}

func (p MergePolicy) String() string {
	switch p {
	case MergeLastSeen:
		return "last"
	case MergeUnion:
		return "union"
	default:
		return "first"
	}
}

// Options configures network construction.
type Options struct {
	Merge MergePolicy
	// NoTarget is the sentinel target meaning "forwarded to nobody".
	NoTarget string
	// DedupLinks collapses repeated (source, target, group) forwards into one link.
	DedupLinks bool
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{Merge: MergeFirstSeen, NoTarget: records.Absent}
}

// Stats counts what happened while building.
type Stats struct {
	Records       int // records consumed
	Skipped       int // records without an identifier
	Merged        int // records merged into an existing node
	Placeholders  int // nodes referenced but never seen as a row
	SelfLinks     int // forwards to oneself, dropped
	SentinelLinks int // forwards to the no-target sentinel, dropped
}

// nodeState accumulates values for one node until the network is finalized.
type nodeState struct {
	node   *model.Node
	values map[string][]string // attribute -> distinct values in first-seen order
	lists  map[string]bool     // attributes that came from list-valued fields
	groups []string
}

// Builder accumulates records into a network. Output order is the order in
// which identifiers first appear, as a source or as a target.
type Builder struct {
	opts  Options
	order []*nodeState
	nodes map[string]*nodeState
	links []*model.Link
	seen  map[[3]string]bool
	stats Stats
}

// NewBuilder creates a builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:  opts,
		nodes: make(map[string]*nodeState),
		seen:  make(map[[3]string]bool),
	}
}

// Build consumes the records in order and returns the network.
func Build(recs iter.Seq[records.PersonRecord], opts Options) *model.Network {
	net, _ := BuildWithStats(recs, opts)
	return net
}

// BuildWithStats is Build that also reports construction statistics.
func BuildWithStats(recs iter.Seq[records.PersonRecord], opts Options) (*model.Network, Stats) {
	b := NewBuilder(opts)
	for rec := range recs {
		b.Add(rec)
	}
	return b.Network(), b.Stats()
}

// Add merges one record into the network under construction.
func (b *Builder) Add(rec records.PersonRecord) {
	b.stats.Records++

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		b.stats.Skipped++
		logging.Debug("skipping record without identifier", "row", rec.Row)
		return
	}

	source, existed := b.ensure(id, rec.Group)
	if existed && !source.node.Placeholder {
		b.stats.Merged++
	}
	if source.node.Placeholder {
		source.node.Placeholder = false
	}
	b.merge(source, rec)

	for _, target := range rec.Targets {
		target = strings.TrimSpace(target)
		switch {
		case target == "":
			continue
		case target == id:
			b.stats.SelfLinks++
			continue
		case b.opts.NoTarget != "" && target == b.opts.NoTarget:
			b.stats.SentinelLinks++
			continue
		}

		if _, known := b.nodes[target]; !known {
			state, _ := b.ensure(target, rec.Group)
			state.node.Placeholder = true
		} else {
			b.ensure(target, rec.Group)
		}

		if b.opts.DedupLinks {
			key := [3]string{id, target, rec.Group}
			if b.seen[key] {
				continue
			}
			b.seen[key] = true
		}
		b.links = append(b.links, &model.Link{
			Source: id,
			Target: target,
			Group:  rec.Group,
		})
	}
}

// ensure returns the state for id, creating it if needed, and records that
// id took part in group.
func (b *Builder) ensure(id, group string) (*nodeState, bool) {
	state, existed := b.nodes[id]
	if !existed {
		state = &nodeState{
			node:   &model.Node{ID: id, Attributes: make(model.Attributes)},
			values: make(map[string][]string),
			lists:  make(map[string]bool),
		}
		b.nodes[id] = state
		b.order = append(b.order, state)
	}
	for _, g := range records.SplitItems(group) {
		if !slices.Contains(state.groups, g) {
			state.groups = append(state.groups, g)
		}
	}
	return state, existed
}

func (b *Builder) merge(state *nodeState, rec records.PersonRecord) {
	for _, key := range sortedKeys(rec.Attributes) {
		v := rec.Attributes[key]
		if v == "" || v == model.Unknown {
			continue
		}
		current := state.values[key]
		switch b.opts.Merge {
		case MergeFirstSeen:
			if len(current) == 0 {
				state.values[key] = []string{v}
			}
		case MergeLastSeen:
			state.values[key] = []string{v}
		case MergeUnion:
			if !slices.Contains(current, v) {
				state.values[key] = append(current, v)
			}
		}
	}

	for _, key := range sortedKeys(rec.Lists) {
		state.lists[key] = true
		for _, item := range rec.Lists[key] {
			if item == "" || item == model.Unknown {
				continue
			}
			if !slices.Contains(state.values[key], item) {
				state.values[key] = append(state.values[key], item)
			}
		}
	}
}

// Network finalizes attribute values and returns the network. Every node
// carries every attribute key; keys a node never received are Unknown.
func (b *Builder) Network() *model.Network {
	net := model.NewNetwork()

	keys := make(map[string]bool)
	for _, state := range b.order {
		for k := range state.values {
			keys[k] = true
		}
	}

	b.stats.Placeholders = 0
	for _, state := range b.order {
		n := state.node
		n.Attributes = make(model.Attributes, len(keys))
		for k := range keys {
			if vals := state.values[k]; len(vals) > 0 {
				n.Attributes[k] = model.JoinList(vals)
			} else {
				n.Attributes[k] = model.Unknown
			}
		}

		groups := slices.Clone(state.groups)
		slices.SortStableFunc(groups, records.CompareGroups)
		n.Group = strings.Join(groups, ",")

		if n.Placeholder {
			b.stats.Placeholders++
		}
		net.Nodes = append(net.Nodes, n)
	}

	net.Links = append(net.Links, b.links...)
	return net
}

// Stats returns construction statistics. Placeholders is final only after
// Network has been called.
func (b *Builder) Stats() Stats {
	return b.stats
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
