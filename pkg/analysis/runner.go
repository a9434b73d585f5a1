package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ritzau/forward-chain/pkg/graph"
	"github.com/ritzau/forward-chain/pkg/layout"
	"github.com/ritzau/forward-chain/pkg/legend"
	"github.com/ritzau/forward-chain/pkg/logging"
	"github.com/ritzau/forward-chain/pkg/model"
	"github.com/ritzau/forward-chain/pkg/records"
	"github.com/ritzau/forward-chain/pkg/web"
)

const totalSteps = 4

// Runner orchestrates one pipeline run: read, build, analyze, write.
type Runner struct {
	server *web.Server // optional
	mu     sync.Mutex  // Prevent concurrent runs
	last   *model.Snapshot
}

// RunOptions configures a pipeline run.
type RunOptions struct {
	Input  string // CSV export, or a previously written .json network
	Output string // network JSON; empty skips writing
	Tables string // side table directory; empty means next to Output

	Fields   records.Fields
	Graph    graph.Options
	Analysis Options

	Reason string // e.g., "initial build", "input changed"
}

// Result is what a run produced.
type Result struct {
	Network *model.Network
	Summary Summary
	Stats   graph.Stats
	Issues  int
	Written []string
	Diff    *model.Diff // against the previous run of the same Runner
}

// NewRunner creates a new runner. server may be nil.
func NewRunner(server *web.Server) *Runner {
	return &Runner{server: server}
}

// SetLayoutOptions changes the layout options of the server, if any. The
// next run restarts the layout even when the network is unchanged.
func (r *Runner) SetLayoutOptions(opts layout.Options) {
	if r.server == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.server.SetLayoutOptions(opts)
	r.last = nil
}

func (r *Runner) status(state, message string, step int) {
	if r.server == nil {
		return
	}
	if err := r.server.PublishStatus(state, message, step, totalSteps); err != nil {
		logging.Debug("status publish failed", "state", state, "error", err)
	}
}

func (r *Runner) fail(step int, err error) error {
	r.status("failed", err.Error(), step)
	return err
}

// Run executes the pipeline with the given options
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	// Lock to prevent concurrent runs
	r.mu.Lock()
	defer r.mu.Unlock()

	logging.Info("starting pipeline", "reason", opts.Reason, "input", opts.Input)
	res := &Result{}

	// Step 1: read
	r.status("reading", "Reading "+filepath.Base(opts.Input), 1)
	var net *model.Network
	if strings.EqualFold(filepath.Ext(opts.Input), ".json") {
		var err error
		net, err = model.ImportJSON(opts.Input)
		if err != nil {
			return nil, r.fail(1, err)
		}
		logging.Info("[1/4] loaded network", "nodes", len(net.Nodes), "links", len(net.Links))
	} else {
		rows, err := records.ReadCSVFile(opts.Input)
		if err != nil {
			return nil, r.fail(1, err)
		}
		logging.Info("[1/4] read rows", "rows", len(rows))

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Step 2: build
		r.status("building", fmt.Sprintf("Building network from %d rows", len(rows)), 2)
		net, res.Stats, res.Issues = build(rows, opts)
		logging.Info("[2/4] built network", "nodes", len(net.Nodes), "links", len(net.Links),
			"skipped", res.Stats.Skipped, "placeholders", res.Stats.Placeholders)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: analyze
	r.status("analyzing", "Labeling forwards and components", 3)
	if err := Analyze(net, opts.Analysis); err != nil {
		return nil, r.fail(3, fmt.Errorf("analyze: %w", err))
	}
	res.Network = net
	res.Summary = Summarize(net)
	logging.Info("[3/4] analyzed network", "components", res.Summary.Components,
		"maxDepth", res.Summary.MaxDepth, "cycles", res.Summary.Cycles)

	res.Diff = model.ComputeDiff(r.last, net)
	r.last = model.CreateSnapshot(net)
	if !res.Diff.Full {
		logging.Info("changes since last build",
			"addedNodes", len(res.Diff.AddedNodes), "removedNodes", len(res.Diff.RemovedNodes),
			"modifiedNodes", len(res.Diff.ModifiedNodes), "addedLinks", len(res.Diff.AddedLinks),
			"removedLinks", len(res.Diff.RemovedLinks), "retypedLinks", len(res.Diff.RetypedLinks))
	}

	// Step 4: write
	if opts.Output != "" {
		r.status("writing", "Writing "+filepath.Base(opts.Output), 4)
		written, err := write(net, opts)
		res.Written = written
		if err != nil {
			return res, r.fail(4, err)
		}
		logging.Info("[4/4] wrote artifacts", "files", len(written))
	}

	// An unchanged network keeps its running layout
	if r.server != nil && !res.Diff.Empty() {
		if err := r.server.SetNetwork(net, res.Summary); err != nil {
			return res, r.fail(4, err)
		}
	}
	r.status("ready", fmt.Sprintf("%d nodes, %d forwards", len(net.Nodes), len(net.Links)), totalSteps)
	return res, nil
}

// build normalizes rows, splits multi-group rows, orders them by group and
// time and feeds them to the graph builder.
func build(rows []records.Row, opts RunOptions) (*model.Network, graph.Stats, int) {
	issues := make(map[int]bool)
	n := &records.Normalizer{
		Fields: opts.Fields,
		OnIssue: func(is records.Issue) {
			issues[is.Row] = true
			logging.Warn("row issue", "row", is.Row, "field", is.Field, "value", is.Value, "problem", is.Message)
		},
	}

	recs := slices.Collect(records.ExplodeGroups(n.Records(slices.Values(rows))))
	records.SortByGroupAndTime(recs)

	net, stats := graph.BuildWithStats(slices.Values(recs), opts.Graph)
	return net, stats, len(issues)
}

// write stores the network artifact. Side tables are a convenience: failing
// ones are logged and skipped.
func write(net *model.Network, opts RunOptions) ([]string, error) {
	if err := model.ExportJSON(net, opts.Output); err != nil {
		return nil, err
	}
	written := []string{opts.Output}

	dir := opts.Tables
	if dir == "" {
		dir = filepath.Dir(opts.Output)
	}
	tables, err := model.ExportSideTables(legend.SideTables(net), dir)
	written = append(written, tables...)
	if err != nil {
		logging.Warn("some side tables were not written", "dir", dir, "error", err)
	}
	return written, nil
}
