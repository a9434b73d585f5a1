package output

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/fatih/color"

	"github.com/ritzau/forward-chain/pkg/analysis"
	"github.com/ritzau/forward-chain/pkg/graph"
	"github.com/ritzau/forward-chain/pkg/model"
)

// Report is everything PrintSummary shows about one pipeline run.
type Report struct {
	Input   string
	Summary analysis.Summary
	Stats   graph.Stats
	Issues  int      // rows with recoverable problems
	Written []string // artifacts written
	Diff    *model.Diff
}

// PrintSummary prints a nicely formatted run report with colors
func PrintSummary(w io.Writer, r Report) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	s := r.Summary

	// Header
	bold.Fprintln(w, "Forward Chain - Network Report")
	bold.Fprintln(w, "==============================")
	fmt.Fprintf(w, "Input: %s\n", r.Input)
	fmt.Fprintf(w, "Records: %d (%d skipped, %d merged)\n", r.Stats.Records, r.Stats.Skipped, r.Stats.Merged)
	if r.Issues > 0 {
		yellow.Fprintf(w, "Rows with issues: %d (see warnings above)\n", r.Issues)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Nodes: %d", s.Nodes)
	if s.Placeholders > 0 {
		cyan.Fprintf(w, " (%d referenced only as targets)", s.Placeholders)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Links: %d\n", s.Links)
	fmt.Fprintf(w, "Components: %d (largest %d, %d singletons)\n", s.Components, s.LargestComponent, s.Singletons)
	if len(s.Groups) > 0 {
		fmt.Fprintf(w, "Groups: %v\n", s.Groups)
	}
	fmt.Fprintf(w, "Max depth: %d\n", s.MaxDepth)
	if s.Cycles > 0 {
		yellow.Fprintf(w, "Cycles: %d (members share a depth)\n", s.Cycles)
	}

	// Link types in depth order
	if len(s.LinkTypes) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "FORWARDS BY TYPE:")
		types := slices.SortedFunc(maps.Keys(s.LinkTypes), analysis.CompareLinkTypes)
		for _, typ := range types {
			fmt.Fprintf(w, "  %-10s %d\n", typ, s.LinkTypes[typ])
		}
	}

	if d := r.Diff; d != nil && !d.Full {
		fmt.Fprintln(w)
		bold.Fprintln(w, "CHANGES SINCE LAST BUILD:")
		if d.Empty() {
			fmt.Fprintln(w, "  none")
		}
		printChanges(w, green, "+ node", d.AddedNodes)
		printChanges(w, red, "- node", d.RemovedNodes)
		printChanges(w, yellow, "~ node", d.ModifiedNodes)
		printChanges(w, green, "+ forward", d.AddedLinks)
		printChanges(w, red, "- forward", d.RemovedLinks)
		printChanges(w, yellow, "~ forward", d.RetypedLinks)
	}

	if len(r.Written) > 0 {
		fmt.Fprintln(w)
		for _, path := range r.Written {
			cyan.Fprintf(w, "  wrote %s\n", path)
		}
	}

	fmt.Fprintln(w)
	switch {
	case s.Nodes == 0:
		red.Fprintln(w, "Summary: empty network (no usable rows)")
	case s.Links == 0:
		yellow.Fprintf(w, "Summary: %d nodes, no forwards\n", s.Nodes)
	default:
		green.Fprintf(w, "Summary: %d nodes, %d forwards, %d chains\n", s.Nodes, s.Links, s.Components-s.Singletons)
	}
}

func printChanges(w io.Writer, c *color.Color, prefix string, items []string) {
	const limit = 10
	for i, item := range items {
		if i == limit {
			fmt.Fprintf(w, "  ... and %d more\n", len(items)-limit)
			return
		}
		c.Fprintf(w, "  %s %s\n", prefix, item)
	}
}
