package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ritzau/forward-chain/pkg/analysis"
	"github.com/ritzau/forward-chain/pkg/anonymize"
	"github.com/ritzau/forward-chain/pkg/config"
	"github.com/ritzau/forward-chain/pkg/graph"
	"github.com/ritzau/forward-chain/pkg/logging"
	"github.com/ritzau/forward-chain/pkg/output"
	"github.com/ritzau/forward-chain/pkg/watcher"
	"github.com/ritzau/forward-chain/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("forward-chain", pflag.ExitOnError)
	flags.String("config", config.DefaultFile, "Path to the TOML configuration file")
	flags.StringP("input", "i", "data/survey.csv", "Survey CSV export, or a network JSON written earlier")
	flags.StringP("output", "o", "data/network_data.json", "Where to write the network JSON (empty to skip)")
	flags.String("tables", "", "Directory for unique_<attribute>.json (default: next to output)")
	flags.Bool("web", false, "Start web server with a live layout")
	flags.IntP("port", "p", 8080, "Port for web server (only used with --web)")
	flags.BoolP("watch", "w", false, "Rebuild when the input or config file changes")
	flags.Bool("open", true, "Open the browser in web mode")
	flags.String("encode", "", "Write an anonymized, one-forward-per-row copy of the input here and exit")
	flags.String("mapping", "data/mapping.json", "Identifier mapping used by --encode (created if missing)")
	flags.String("merge", "first", "Duplicate row policy: first, last or union")
	flags.String("ordinal", "numeric", "Link types past tenth: numeric or clamp")
	flags.Bool("dedup-links", false, "Drop repeated forwards between the same pair within a group")
	flags.Uint64("seed", 1, "Seed for layout packing and identifier mapping")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	flags.Bool("log-json", false, "Log as JSON")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Configure(cfg.Verbosity, cfg.VerboseCnt, cfg.LogJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("forward-chain failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *pflag.FlagSet, cfg *config.Config) error {
	if cfg.Encode != "" {
		return encode(cfg)
	}

	opts, err := runOptions(cfg)
	if err != nil {
		return err
	}

	if !cfg.WebMode {
		runner := analysis.NewRunner(nil)
		if err := build(ctx, runner, opts); err != nil {
			return err
		}
		if cfg.Watch {
			return watch(ctx, flags, cfg, runner, false)
		}
		return nil
	}

	// Start web server first, then build in the foreground
	server := web.NewServer(cfg.Layout)
	defer server.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, cfg.Port)
	})

	runner := analysis.NewRunner(server)
	if _, err := runner.Run(gctx, opts); err != nil {
		// Keep serving; the status topic shows the failure
		logging.Error("initial build failed", "error", err)
	}

	if cfg.OpenBrowser {
		openBrowser(fmt.Sprintf("http://localhost:%d", cfg.Port))
	}

	if cfg.Watch {
		g.Go(func() error {
			err := watch(gctx, flags, cfg, runner, true)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// runOptions turns configuration into pipeline options.
func runOptions(cfg *config.Config) (analysis.RunOptions, error) {
	merge, err := graph.ParseMergePolicy(cfg.Merge)
	if err != nil {
		return analysis.RunOptions{}, err
	}
	policy, err := analysis.ParseOrdinalPolicy(cfg.Ordinal)
	if err != nil {
		return analysis.RunOptions{}, err
	}
	if err := cfg.Layout.Validate(); err != nil {
		return analysis.RunOptions{}, fmt.Errorf("layout options: %w", err)
	}

	graphOpts := graph.DefaultOptions()
	graphOpts.Merge = merge
	graphOpts.DedupLinks = cfg.DedupLinks

	return analysis.RunOptions{
		Input:    cfg.Input,
		Output:   cfg.Output,
		Tables:   cfg.Tables,
		Fields:   cfg.Fields.Records(),
		Graph:    graphOpts,
		Analysis: analysis.Options{Names: analysis.OrdinalNames{Names: analysis.DefaultOrdinals, Policy: policy}},
		Reason:   "initial build",
	}, nil
}

// build runs the pipeline once and prints the console report.
func build(ctx context.Context, runner *analysis.Runner, opts analysis.RunOptions) error {
	res, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}
	output.PrintSummary(os.Stdout, output.Report{
		Input:   opts.Input,
		Summary: res.Summary,
		Stats:   res.Stats,
		Issues:  res.Issues,
		Written: res.Written,
		Diff:    res.Diff,
	})
	return nil
}

func encode(cfg *config.Config) error {
	mapping, err := anonymize.LoadOrBuildMapping(cfg.Mapping, cfg.Seed)
	if err != nil {
		return fmt.Errorf("identifier mapping: %w", err)
	}

	opts := anonymize.DefaultOptions()
	opts.Group = cfg.Fields.Group
	opts.Timestamp = cfg.Fields.Timestamp
	if len(cfg.Fields.Next) > 0 {
		opts.Next = cfg.Fields.Next[0]
	}
	return anonymize.ConvertFile(cfg.Input, cfg.Encode, mapping, opts)
}

// watch rebuilds on input and config changes until ctx is cancelled. In web
// mode the runner replaces the served network; otherwise a report is printed.
func watch(ctx context.Context, flags *pflag.FlagSet, cfg *config.Config, runner *analysis.Runner, webMode bool) error {
	configPath, _ := flags.GetString("config")
	fw, err := watcher.NewFileWatcher(cfg.Input, configPath)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}
	defer fw.Stop()

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)

	for event := range debouncer.Output() {
		change := watcher.AnalyzeChanges(event)
		if change.ReloadConfig {
			next, err := config.Load(flags)
			if err != nil {
				logging.Warn("keeping previous configuration", "error", err)
			} else {
				if next.Input != cfg.Input {
					logging.Warn("input path changed; restart to watch the new file", "input", next.Input)
				}
				cfg = next
				runner.SetLayoutOptions(cfg.Layout)
			}
		}
		if !change.Rebuild {
			continue
		}

		opts, err := runOptions(cfg)
		if err != nil {
			logging.Warn("invalid configuration, skipping rebuild", "error", err)
			continue
		}
		opts.Reason = event.Type.String() + " changed"

		if webMode {
			if _, err := runner.Run(ctx, opts); err != nil {
				logging.Error("rebuild failed", "error", err)
			}
			continue
		}
		if err := build(ctx, runner, opts); err != nil {
			logging.Error("rebuild failed", "error", err)
		}
	}
	return ctx.Err()
}

func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		logging.Warn("cannot open browser on this platform", "os", runtime.GOOS)
		return
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		logging.Warn("failed to open browser", "error", err)
	}
}
