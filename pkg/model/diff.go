package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Diff represents the difference between two builds of a network
type Diff struct {
	AddedNodes    []string `json:"addedNodes"`
	RemovedNodes  []string `json:"removedNodes"`
	ModifiedNodes []string `json:"modifiedNodes"` // attributes, group or component changed
	AddedLinks    []string `json:"addedLinks"`    // link keys (source|target|group)
	RemovedLinks  []string `json:"removedLinks"`
	RetypedLinks  []string `json:"retypedLinks"` // same link, different depth
	Full          bool     `json:"full"`         // True if there was nothing to compare against
}

// Empty reports whether the two builds are identical.
func (d *Diff) Empty() bool {
	return !d.Full &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedLinks) == 0 && len(d.RemovedLinks) == 0 && len(d.RetypedLinks) == 0
}

// Snapshot represents a cached network state for diffing
type Snapshot struct {
	Hash  string
	Nodes map[string]string // nodeID -> fingerprint
	Links map[string]string // linkKey -> type
}

// CreateSnapshot creates a snapshot from a network for diffing
func CreateSnapshot(net *Network) *Snapshot {
	snapshot := &Snapshot{
		Nodes: make(map[string]string, len(net.Nodes)),
		Links: make(map[string]string, len(net.Links)),
	}

	for _, n := range net.Nodes {
		snapshot.Nodes[n.ID] = fingerprint(n)
	}
	for _, l := range net.Links {
		snapshot.Links[linkKey(l)] = l.Type
	}

	// Compute hash of the network
	jsonData, _ := json.Marshal(net)
	hash := sha256.Sum256(jsonData)
	snapshot.Hash = fmt.Sprintf("%x", hash)

	return snapshot
}

// ComputeDiff computes the difference between a snapshot and a new network.
// Result slices are sorted.
func ComputeDiff(old *Snapshot, net *Network) *Diff {
	next := CreateSnapshot(net)

	// If no old snapshot, everything is new
	if old == nil {
		return &Diff{
			AddedNodes: slices.Sorted(maps.Keys(next.Nodes)),
			AddedLinks: slices.Sorted(maps.Keys(next.Links)),
			Full:       true,
		}
	}

	diff := &Diff{}
	if old.Hash == next.Hash {
		return diff
	}

	for id, fp := range next.Nodes {
		if oldFP, exists := old.Nodes[id]; !exists {
			diff.AddedNodes = append(diff.AddedNodes, id)
		} else if oldFP != fp {
			diff.ModifiedNodes = append(diff.ModifiedNodes, id)
		}
	}
	for id := range old.Nodes {
		if _, exists := next.Nodes[id]; !exists {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	for key, typ := range next.Links {
		if oldType, exists := old.Links[key]; !exists {
			diff.AddedLinks = append(diff.AddedLinks, key)
		} else if oldType != typ {
			diff.RetypedLinks = append(diff.RetypedLinks, key)
		}
	}
	for key := range old.Links {
		if _, exists := next.Links[key]; !exists {
			diff.RemovedLinks = append(diff.RemovedLinks, key)
		}
	}

	for _, s := range [][]string{diff.AddedNodes, diff.RemovedNodes, diff.ModifiedNodes,
		diff.AddedLinks, diff.RemovedLinks, diff.RetypedLinks} {
		slices.Sort(s)
	}
	return diff
}

// linkKey creates a unique key for a link
func linkKey(l *Link) string {
	return fmt.Sprintf("%s|%s|%s", l.Source, l.Target, l.Group)
}

// fingerprint covers everything about a node except its ID
func fingerprint(n *Node) string {
	data, _ := json.Marshal(n)
	return string(data)
}
