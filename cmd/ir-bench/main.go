package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/irbench/ir-bench/internal/client"
	"github.com/irbench/ir-bench/internal/config"
	"github.com/irbench/ir-bench/internal/dataset"
	"github.com/irbench/ir-bench/internal/distributed"
	"github.com/irbench/ir-bench/internal/evaluation"
	"github.com/irbench/ir-bench/internal/extract"
	"github.com/irbench/ir-bench/internal/features"
	"github.com/irbench/ir-bench/internal/pkg/logger"
	"github.com/irbench/ir-bench/internal/qdrant"
	"github.com/irbench/ir-bench/internal/runstore"
	"github.com/irbench/ir-bench/internal/scoring"
	"github.com/irbench/ir-bench/internal/watch"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ir-bench",
		Short: "ir-bench - Instance retrieval benchmark runner",
		Long: `ir-bench extracts image features, merges per-node feature shards and
scores retrieval rankings against the standard instance retrieval
benchmarks (ROxford5k, RParis6k, Oxford5k, Paris6k, INSTRE).

Run 'ir-bench evaluate roxford5k' to score features locally.
Run 'ir-bench --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")
	rootCmd.PersistentFlags().String("remote", "", "ir-bench server URL (run against a server instead of locally)")

	// Add subcommands
	rootCmd.AddCommand(
		evaluateCmd(),
		extractCmd(),
		mergeCmd(),
		datasetsCmd(),
		runsCmd(),
		watchCmd(),
		statsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <dataset>",
		Short: "Score features against a benchmark",
		Long: `Evaluate ranks the database features of a benchmark for every query
and scores the ranking against the ground truth. Revisited benchmarks
report the Easy, Medium and Hard protocols; the classic ones report a
single mAP.

Features are read from the features directory: a merged feature file
first, then a complete shard set. When neither exists the benchmark
images are embedded on the fly with the configured embedder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _ := cmd.Flags().GetString("engine")
			featuresDir, _ := cmd.Flags().GetString("features-dir")
			layer, _ := cmd.Flags().GetString("layer")
			ks, _ := cmd.Flags().GetIntSlice("ks")
			async, _ := cmd.Flags().GetBool("async")

			if c := remoteClient(cmd); c != nil {
				run, err := c.Evaluate(cmd.Context(), client.EvaluateRequest{
					Dataset:     args[0],
					Engine:      engine,
					FeaturesDir: featuresDir,
					Layer:       layer,
					Ks:          ks,
					Async:       async,
				})
				if err != nil {
					return err
				}
				if async {
					fmt.Printf("run %s submitted (%s)\n", run.ID, run.Status)
					return nil
				}
				return printClientRun(run, jsonFormat(cmd))
			}
			if async {
				return fmt.Errorf("--async needs --remote pointing at a server")
			}

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			evaluator, cleanup, err := newLocalEvaluator(cfg, log, engine)
			if err != nil {
				return err
			}
			defer cleanup()

			run, err := evaluator.Run(cmd.Context(), evaluation.Request{
				Dataset:     args[0],
				Engine:      engine,
				FeaturesDir: featuresDir,
				Layer:       layer,
				Ks:          ks,
			})
			if err != nil {
				return err
			}
			return printLocalRun(run, jsonFormat(cmd))
		},
	}

	cmd.Flags().String("engine", "", "ranking engine (exact, qdrant)")
	cmd.Flags().String("features-dir", "", "features directory override")
	cmd.Flags().String("layer", "", "feature layer name")
	cmd.Flags().IntSlice("ks", nil, "precision cut-offs (default 1,5,10)")
	cmd.Flags().Bool("async", false, "submit without waiting for the result (remote only)")
	return cmd
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <dataset>",
		Short: "Extract feature shards for a benchmark",
		Long: `Extract embeds the benchmark images and writes this node's feature
shard per split. On multi-node jobs every node embeds its round-robin
share of the images; 'ir-bench merge' or a shard watcher stitches the
shards back together once all ranks have delivered.

The special dataset name 'whitening' embeds the configured whitening
image list into a train split shard.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyExtractFlags(cmd, cfg)

			split, _ := cmd.Flags().GetString("split")
			noProgress, _ := cmd.Flags().GetBool("no-progress")
			return runExtract(cmd.Context(), cfg, log, args[0], split, noProgress)
		},
	}

	cmd.Flags().String("split", "all", "splits to extract (database, query, all)")
	cmd.Flags().String("out", "", "shard output directory (default features dir)")
	cmd.Flags().String("codec", "", "shard codec (gob, hdf5)")
	cmd.Flags().String("layer", "", "feature layer name")
	cmd.Flags().Int("node", -1, "node id of this machine")
	cmd.Flags().Int("nodes", 0, "total number of nodes in the job")
	cmd.Flags().String("embedder", "", "embedder backend (tiny, http)")
	cmd.Flags().String("embed-url", "", "embedding service URL (http embedder)")
	cmd.Flags().Int("embed-dim", 0, "embedding dimension (http embedder)")
	cmd.Flags().Int("batch", 0, "images per embedder call")
	cmd.Flags().Int("workers", 0, "concurrent image loaders")
	cmd.Flags().Int("resize", 0, "resize images to this side before embedding")
	cmd.Flags().Int64("seed", 0, "base random seed")
	cmd.Flags().String("init", "", "distributed init method (tcp, env, file)")
	cmd.Flags().String("run-id", "", "distributed run id (auto picks a free port)")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")
	return cmd
}

func mergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <split>",
		Short: "Merge feature shards into one feature file",
		Long: `Merge stitches the per-rank shards of one split back into a single
feature file ordered by database index. Every rank in the world must
have delivered its shard; with --world 0 the world size is inferred
from the shards present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			dir, _ := cmd.Flags().GetString("dir")
			out, _ := cmd.Flags().GetString("out")
			layer, _ := cmd.Flags().GetString("layer")
			world, _ := cmd.Flags().GetInt("world")
			codec, _ := cmd.Flags().GetString("codec")

			if dir == "" {
				dir = cfg.Features.Dir
			}
			if out == "" {
				out = dir
			}
			if layer == "" {
				layer = cfg.Features.Layer
			}
			if world <= 0 {
				world = cfg.Features.WorldSize
			}
			if codec == "" {
				codec = cfg.Features.Codec
			}
			split := args[0]

			shards, err := features.Discover(dir, split, layer)
			if err != nil {
				return err
			}
			if world > 0 && !features.Complete(shards, world) {
				return fmt.Errorf("shard set incomplete: have %d shards, want ranks 0..%d", len(shards), world-1)
			}

			set, err := features.Merge(dir, split, layer, world)
			if err != nil {
				return err
			}

			ext := features.ExtGob
			if codec == "hdf5" {
				ext = features.ExtHDF5
			}
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			outPath := filepath.Join(out, fmt.Sprintf("%s_%s%s", split, layer, ext))
			if err := features.Save(outPath, set); err != nil {
				return err
			}

			fmt.Printf("merged %d shards into %s (%d rows, dim %d)\n", len(shards), outPath, set.Len(), set.Dim)
			return nil
		},
	}

	cmd.Flags().String("dir", "", "shard directory (default features dir)")
	cmd.Flags().String("out", "", "merged output directory (default shard dir)")
	cmd.Flags().String("layer", "", "feature layer name")
	cmd.Flags().Int("world", 0, "number of extraction ranks (0 infers from shards)")
	cmd.Flags().String("codec", "", "output codec (gob, hdf5)")
	return cmd
}

func datasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets [name]",
		Short: "List the benchmarks found on disk",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(cmd); c != nil {
				if len(args) == 1 {
					info, err := c.GetDataset(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printDatasets([]client.DatasetInfo{*info}, jsonFormat(cmd))
				}
				infos, err := c.ListDatasets(cmd.Context())
				if err != nil {
					return err
				}
				return printDatasets(infos, jsonFormat(cmd))
			}

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := dataset.Options{Root: cfg.Datasets.Root, ListFile: cfg.Datasets.ListFile}

			if len(args) == 1 {
				ds, err := dataset.Load(opts, args[0])
				if err != nil {
					return err
				}
				return printDatasets([]client.DatasetInfo{datasetInfoOf(ds)}, jsonFormat(cmd))
			}

			var infos []client.DatasetInfo
			for _, name := range dataset.Known() {
				ds, err := dataset.Load(opts, name)
				if err != nil {
					// Not every benchmark is downloaded on every machine.
					continue
				}
				infos = append(infos, datasetInfoOf(ds))
			}
			if len(infos) == 0 {
				fmt.Printf("no benchmarks found under %s\n", cfg.Datasets.Root)
				return nil
			}
			return printDatasets(infos, jsonFormat(cmd))
		},
	}
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored evaluation runs",
	}
	cmd.AddCommand(runsListCmd(), runsShowCmd(), runsExportCmd(), runsDeleteCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsFilter, _ := cmd.Flags().GetString("dataset")

			if c := remoteClient(cmd); c != nil {
				runs, err := c.ListRuns(cmd.Context(), dsFilter)
				if err != nil {
					return err
				}
				if jsonFormat(cmd) {
					return printJSON(runs)
				}
				w := runsTable()
				for _, r := range runs {
					var tiered *scoring.TieredResult
					var global *scoring.AggregateResult
					if r.Result != nil {
						tiered, global = r.Result.Tiered, r.Result.Global
					}
					runsTableRow(w, r.ID, r.Dataset, r.Engine, r.Status, headlineMAP(tiered, global), r.StartedAt)
				}
				return w.Flush()
			}

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openRuns(cfg)
			if err != nil {
				return err
			}

			var list []*runstore.Run
			if dsFilter != "" {
				list, err = runs.ListByDataset(cmd.Context(), dsFilter)
			} else {
				list, err = runs.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			if jsonFormat(cmd) {
				return printJSON(list)
			}
			w := runsTable()
			for _, r := range list {
				var tiered *scoring.TieredResult
				var global *scoring.AggregateResult
				if r.Result != nil {
					tiered, global = r.Result.Tiered, r.Result.Global
				}
				runsTableRow(w, r.ID, r.Dataset, r.Engine, string(r.Status), headlineMAP(tiered, global), r.StartedAt)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("dataset", "", "only runs of this benchmark")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run with its full scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(cmd); c != nil {
				run, err := c.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printClientRun(run, jsonFormat(cmd))
			}

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openRuns(cfg)
			if err != nil {
				return err
			}
			run, err := runs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printLocalRun(run, jsonFormat(cmd))
		},
	}
}

func runsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a run record as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("out")

			var record any
			if c := remoteClient(cmd); c != nil {
				run, err := c.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				record = run
			} else {
				cfg, _, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				runs, err := openRuns(cfg)
				if err != nil {
					return err
				}
				run, err := runs.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				record = run
			}

			out, err := marshalRunYAML(record)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = os.Stdout.Write(out)
				return err
			}
			if err := os.WriteFile(outPath, out, 0644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringP("out", "o", "", "write to file instead of stdout")
	return cmd
}

// marshalRunYAML renders a run record as YAML keyed by the JSON wire
// names, so exports and API responses use the same field names.
func marshalRunYAML(record any) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func runsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(cmd); c != nil {
				if err := c.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Printf("run %s deleted\n", args[0])
				return nil
			}

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runs, err := openRuns(cfg)
			if err != nil {
				return err
			}
			if err := runs.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("run %s deleted\n", args[0])
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a drop directory and merge arriving feature shards",
		Long: `Watch runs a daemon over a shard drop directory. As soon as every
extraction rank has delivered its shard for a split, the set is merged
into a single feature file. With --evaluate a finished query plus
database pair triggers a local evaluation; with --server the pair is
submitted to a running ir-bench server instead.

Without --foreground the watcher detaches into the background and reads
its configuration from environment variables. Use 'ir-bench watch
status' and 'ir-bench watch stop' to manage detached watchers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = cfg.Watch.Dir
			}
			if dir == "" {
				dir = cfg.Features.Dir
			}

			opts := watchOptions(cmd, cfg, dir)
			foreground, _ := cmd.Flags().GetBool("foreground")
			if !foreground {
				pid, err := watch.StartDaemon(opts)
				if err != nil {
					return err
				}
				fmt.Printf("watcher started (pid %d) on %s\n", pid, dir)
				return nil
			}
			return runWatch(cmd.Context(), cfg, log, opts)
		},
	}

	cmd.Flags().Bool("foreground", false, "run in the foreground")
	cmd.Flags().String("out", "", "merged output directory (default watch dir)")
	cmd.Flags().String("dataset", "", "benchmark the shards belong to")
	cmd.Flags().String("layer", "", "feature layer name")
	cmd.Flags().Int("world", 0, "number of extraction ranks to wait for")
	cmd.Flags().String("codec", "", "merged file codec (gob, hdf5)")
	cmd.Flags().Duration("window", 0, "debounce window for shard events")
	cmd.Flags().Bool("evaluate", false, "evaluate locally once query and database are merged")
	cmd.Flags().String("server", "", "server URL to submit evaluations to")

	cmd.AddCommand(watchStatusCmd(), watchStopCmd())
	return cmd
}

func watchStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List running watcher daemons",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := watch.ListStates()
			if err != nil {
				return err
			}
			if jsonFormat(cmd) {
				return printJSON(states)
			}
			if len(states) == 0 {
				fmt.Println("no watchers running")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "pid\tdir\tdataset\tlayer\tworld\tmerges\tuptime")
			for _, s := range states {
				ds := s.Dataset
				if ds == "" {
					ds = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
					s.PID, s.Dir, ds, s.Layer, s.World, s.MergeCount,
					time.Since(s.StartedAt).Round(time.Second))
			}
			return w.Flush()
		},
	}
}

func watchStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop [pid]",
		Short: "Stop watcher daemons",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all {
				stopped, err := watch.StopAllDaemons()
				if err != nil {
					return err
				}
				fmt.Printf("stopped %d watcher(s)\n", stopped)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("give a pid or --all")
			}
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			if err := watch.StopDaemon(pid); err != nil {
				return err
			}
			fmt.Printf("stopped watcher %d\n", pid)
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "stop every running watcher")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show a server's evaluation time series",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := remoteClient(cmd)
			if c == nil {
				return fmt.Errorf("stats needs --remote pointing at a running server")
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFormat(cmd) {
				return printJSON(stats)
			}
			printSeries("evaluations per bucket", stats.EvaluationRate)
			printSeries("mean evaluation latency (ms)", stats.EvaluationLatency)
			printSeries("extracted rows per bucket", stats.ExtractRate)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ir-bench %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

// runExtract embeds the selected splits and writes this node's shards.
func runExtract(ctx context.Context, cfg *config.Config, log *logger.Logger, name, split string, noProgress bool) error {
	ds, err := dataset.Load(dataset.Options{Root: cfg.Datasets.Root, ListFile: cfg.Datasets.ListFile}, name)
	if err != nil {
		return err
	}

	runID, err := distributed.RunID(distributed.Options{
		InitMethod: cfg.Extract.InitMethod,
		RunID:      cfg.Extract.RunID,
		NumNodes:   cfg.Extract.NumNodes,
	}, log)
	if err != nil {
		return err
	}
	seed := distributed.NodeSeed(cfg.Extract.Seed, cfg.Extract.NodeID, cfg.Extract.NumNodes)
	log.Info("Starting extraction job",
		"dataset", name,
		"run_id", runID,
		"seed", seed,
		"node", cfg.Extract.NodeID,
		"nodes", cfg.Extract.NumNodes,
	)

	embedder, err := extract.NewEmbedder(cfg.Extract)
	if err != nil {
		return err
	}

	var bar *pb.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = pb.StartNew(total)
		}
		bar.SetCurrent(int64(done))
	}
	if noProgress {
		progress = nil
	}

	pipeline := extract.NewPipeline(embedder, nil, log, extract.Options{
		BatchSize:  cfg.Extract.BatchSize,
		Workers:    cfg.Extract.Workers,
		NodeID:     cfg.Extract.NodeID,
		NumNodes:   cfg.Extract.NumNodes,
		ResizeSide: cfg.Datasets.ResizeSide,
		Progress:   progress,
	})

	type job struct {
		split string
		run   func(context.Context, dataset.Dataset) (*features.FeatureSet, error)
	}
	var jobs []job
	switch {
	case dataset.IsWhitening(name):
		jobs = []job{{extract.SplitTrain, pipeline.ExtractTraining}}
	case split == "" || split == "all":
		jobs = []job{
			{extract.SplitQuery, pipeline.ExtractQueries},
			{extract.SplitDatabase, pipeline.ExtractDatabase},
		}
	case split == extract.SplitQuery:
		jobs = []job{{extract.SplitQuery, pipeline.ExtractQueries}}
	case split == extract.SplitDatabase:
		jobs = []job{{extract.SplitDatabase, pipeline.ExtractDatabase}}
	default:
		return fmt.Errorf("unknown split %q (want database, query or all)", split)
	}

	for _, j := range jobs {
		set, err := j.run(ctx, ds)
		if bar != nil {
			bar.Finish()
			bar = nil
		}
		if err != nil {
			return err
		}

		path, err := extract.WriteShard(cfg.Features.Dir, cfg.Extract.NodeID, j.split, cfg.Features.Layer, cfg.Features.Codec, set)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d rows, dim %d)\n", path, set.Len(), set.Dim)
	}
	return nil
}

// runWatch runs the watcher in the foreground until interrupted.
func runWatch(ctx context.Context, cfg *config.Config, log *logger.Logger, opts watch.DaemonOptions) error {
	var (
		evaluator *evaluation.Evaluator
		remote    *client.Client
	)
	if opts.Server != "" {
		ccfg := client.DefaultConfig()
		ccfg.BaseURL = opts.Server
		remote = client.New(ccfg)
	} else if opts.Evaluate {
		ev, cleanup, err := newLocalEvaluator(cfg, log, "")
		if err != nil {
			return err
		}
		defer cleanup()
		evaluator = ev
	}

	outDir := opts.Out
	if outDir == "" {
		outDir = opts.Dir
	}

	state := &watch.WatcherState{
		PID:       os.Getpid(),
		Dir:       opts.Dir,
		Dataset:   opts.Dataset,
		Layer:     opts.Layer,
		World:     opts.World,
		StartedAt: time.Now(),
	}

	var w *watch.Watcher
	onMerged := func(split, path string, _ *features.FeatureSet) {
		state.MergeCount++
		state.LastMerge = time.Now()
		if err := watch.SaveState(state); err != nil {
			log.Warn("Saving watcher state failed", "error", err.Error())
		}

		if evaluator == nil && remote == nil {
			return
		}
		if opts.Dataset == "" {
			log.Warn("Cannot evaluate merged shards without --dataset", "split", split)
			return
		}
		// Only score once both halves of the benchmark are on disk. A
		// re-merge of either split triggers a fresh evaluation.
		merged := w.MergedSets()
		if merged[extract.SplitQuery] == "" || merged[extract.SplitDatabase] == "" {
			return
		}
		go triggerEvaluation(log, evaluator, remote, opts.Dataset, outDir, opts.Layer)
	}

	w, err := watch.NewWatcher(watch.WatcherConfig{
		Dir:        opts.Dir,
		OutDir:     opts.Out,
		Dataset:    opts.Dataset,
		Layer:      opts.Layer,
		World:      opts.World,
		Codec:      opts.Codec,
		BatchDelay: opts.Window,
		OnMerged:   onMerged,
	})
	if err != nil {
		return err
	}

	// Register so 'watch status' and 'watch stop' can find this process.
	if err := watch.SaveState(state); err != nil {
		log.Warn("Saving watcher state failed", "error", err.Error())
	}
	defer watch.RemoveState(state.PID)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Watcher stopped", "dir", opts.Dir, "merges", state.MergeCount)
	return nil
}

// triggerEvaluation scores a freshly merged query and database pair, either
// locally or through a server.
func triggerEvaluation(log *logger.Logger, evaluator *evaluation.Evaluator, remote *client.Client, name, featuresDir, layer string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	log.Info("Merged pair complete, starting evaluation", "dataset", name)

	if remote != nil {
		run, err := remote.Evaluate(ctx, client.EvaluateRequest{
			Dataset:     name,
			FeaturesDir: featuresDir,
			Layer:       layer,
			Async:       true,
		})
		if err != nil {
			log.Error("Submitting evaluation failed", "dataset", name, "error", err.Error())
			return
		}
		log.Info("Evaluation submitted", "run", run.ID, "dataset", name)
		return
	}

	run, err := evaluator.Run(ctx, evaluation.Request{
		Dataset:     name,
		FeaturesDir: featuresDir,
		Layer:       layer,
	})
	if err != nil {
		log.Error("Evaluation failed", "dataset", name, "error", err.Error())
		return
	}
	log.Info("Evaluation finished", "run", run.ID, "dataset", name, "status", string(run.Status))
}

// loadConfig loads the configuration and builds a logger honoring the
// global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return cfg, logger.New(level, cfg.Log.Format), nil
}

// remoteClient returns a client for the --remote server, or nil when the
// command should run locally.
func remoteClient(cmd *cobra.Command) *client.Client {
	remote, _ := cmd.Flags().GetString("remote")
	if remote == "" {
		return nil
	}
	ccfg := client.DefaultConfig()
	ccfg.BaseURL = remote
	return client.New(ccfg)
}

// newLocalEvaluator assembles the evaluation stack for a local run. A
// Qdrant client is only dialed when the effective engine needs one.
func newLocalEvaluator(cfg *config.Config, log *logger.Logger, engine string) (*evaluation.Evaluator, func(), error) {
	runs, err := openRuns(cfg)
	if err != nil {
		return nil, nil, err
	}

	if engine == "" {
		engine = cfg.Ranking.Engine
	}
	var qc *qdrant.Client
	cleanup := func() {}
	if engine == "qdrant" {
		qcfg, err := qdrant.ClientConfigFromURL(cfg.Qdrant.URL, cfg.Qdrant.APIKey)
		if err != nil {
			return nil, nil, err
		}
		qc, err = qdrant.NewClient(qcfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { qc.Close() }
	}

	return evaluation.NewEvaluator(*cfg, runs, qc, nil, nil, log), cleanup, nil
}

func openRuns(cfg *config.Config) (*runstore.Service, error) {
	return runstore.NewService(runstore.ServiceConfig{
		Backend: cfg.Runs.Backend,
		Dir:     cfg.Runs.Dir,
	})
}

// applyExtractFlags overlays the extract command flags onto the loaded
// configuration.
func applyExtractFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		cfg.Features.Dir = v
	}
	if v, _ := cmd.Flags().GetString("codec"); v != "" {
		cfg.Features.Codec = v
	}
	if v, _ := cmd.Flags().GetString("layer"); v != "" {
		cfg.Features.Layer = v
	}
	if v, _ := cmd.Flags().GetInt("node"); v >= 0 {
		cfg.Extract.NodeID = v
	}
	if v, _ := cmd.Flags().GetInt("nodes"); v > 0 {
		cfg.Extract.NumNodes = v
	}
	if v, _ := cmd.Flags().GetString("embedder"); v != "" {
		cfg.Extract.Embedder = v
	}
	if v, _ := cmd.Flags().GetString("embed-url"); v != "" {
		cfg.Extract.URL = v
	}
	if v, _ := cmd.Flags().GetInt("embed-dim"); v > 0 {
		cfg.Extract.Dim = v
	}
	if v, _ := cmd.Flags().GetInt("batch"); v > 0 {
		cfg.Extract.BatchSize = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		cfg.Extract.Workers = v
	}
	if v, _ := cmd.Flags().GetInt("resize"); v != 0 {
		cfg.Datasets.ResizeSide = v
	}
	if cmd.Flags().Changed("seed") {
		v, _ := cmd.Flags().GetInt64("seed")
		cfg.Extract.Seed = v
	}
	if v, _ := cmd.Flags().GetString("init"); v != "" {
		cfg.Extract.InitMethod = v
	}
	if v, _ := cmd.Flags().GetString("run-id"); v != "" {
		cfg.Extract.RunID = v
	}
}

// watchOptions resolves the watch command flags against the configuration.
func watchOptions(cmd *cobra.Command, cfg *config.Config, dir string) watch.DaemonOptions {
	opts := watch.DaemonOptions{
		Dir:     dir,
		Dataset: cfg.Watch.Dataset,
		Layer:   cfg.Features.Layer,
		World:   cfg.Features.WorldSize,
		Codec:   cfg.Features.Codec,
		Window:  cfg.Watch.Window,
	}
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		opts.Out = v
	}
	if v, _ := cmd.Flags().GetString("dataset"); v != "" {
		opts.Dataset = v
	}
	if v, _ := cmd.Flags().GetString("layer"); v != "" {
		opts.Layer = v
	}
	if v, _ := cmd.Flags().GetInt("world"); v > 0 {
		opts.World = v
	}
	if v, _ := cmd.Flags().GetString("codec"); v != "" {
		opts.Codec = v
	}
	if v, _ := cmd.Flags().GetDuration("window"); v > 0 {
		opts.Window = v
	}
	evaluate, _ := cmd.Flags().GetBool("evaluate")
	opts.Evaluate = evaluate || cfg.Watch.Evaluate
	opts.Server, _ = cmd.Flags().GetString("server")
	if opts.World < 1 {
		opts.World = 1
	}
	return opts
}

func datasetInfoOf(ds dataset.Dataset) client.DatasetInfo {
	return client.DatasetInfo{
		Name:        ds.Name(),
		NumDatabase: ds.NumDatabase(),
		NumQueries:  ds.NumQueries(),
		Tiered:      ds.Tiered(),
	}
}

func jsonFormat(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("format")
	return format == "json"
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printLocalRun(run *runstore.Run, asJSON bool) error {
	if asJSON {
		return printJSON(run)
	}
	var tiered *scoring.TieredResult
	var global *scoring.AggregateResult
	var mapVal *float64
	if run.Result != nil {
		tiered, global, mapVal = run.Result.Tiered, run.Result.Global, run.Result.MAPVal
	}
	printRunHeader(run.ID, run.Dataset, run.Engine, string(run.Status), run.Error, run.Duration())
	printScores(run.Ks, tiered, global, mapVal)
	return nil
}

func printClientRun(run *client.Run, asJSON bool) error {
	if asJSON {
		return printJSON(run)
	}
	var tiered *scoring.TieredResult
	var global *scoring.AggregateResult
	var mapVal *float64
	if run.Result != nil {
		tiered, global, mapVal = run.Result.Tiered, run.Result.Global, run.Result.MAPVal
	}
	var dur time.Duration
	if !run.FinishedAt.IsZero() {
		dur = run.FinishedAt.Sub(run.StartedAt)
	}
	printRunHeader(run.ID, run.Dataset, run.Engine, run.Status, run.Error, dur)
	printScores(run.Ks, tiered, global, mapVal)
	return nil
}

func printRunHeader(id, name, engine, status, errMsg string, dur time.Duration) {
	fmt.Printf("run:      %s\n", id)
	fmt.Printf("dataset:  %s  engine: %s\n", name, engine)
	fmt.Printf("status:   %s  took: %s\n", status, dur.Round(time.Millisecond))
	if errMsg != "" {
		fmt.Printf("error:    %s\n", errMsg)
	}
}

// printScores renders mAP and the precision cut-offs as percentages, the
// convention of the benchmark papers.
func printScores(ks []int, tiered *scoring.TieredResult, global *scoring.AggregateResult, mapVal *float64) {
	if tiered == nil && global == nil {
		return
	}
	if len(ks) == 0 {
		ks = scoring.DefaultKs
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\nprotocol\tmAP")
	for _, k := range ks {
		fmt.Fprintf(w, "\tP@%d", k)
	}
	fmt.Fprintln(w)

	row := func(name string, agg scoring.AggregateResult) {
		fmt.Fprintf(w, "%s\t%.2f", name, agg.MAP*100)
		for _, k := range ks {
			fmt.Fprintf(w, "\t%.2f", agg.MeanPrecisionAt[k]*100)
		}
		fmt.Fprintln(w)
	}

	if tiered != nil {
		row("easy", tiered.Easy)
		row("medium", tiered.Medium)
		row("hard", tiered.Hard)
	}
	if global != nil {
		row("global", *global)
	}
	w.Flush()

	if mapVal != nil {
		fmt.Printf("\nvalidation subset mAP: %.2f\n", *mapVal*100)
	}
}

// headlineMAP picks the score shown in run listings: the medium protocol
// for tiered benchmarks, the global mAP otherwise.
func headlineMAP(tiered *scoring.TieredResult, global *scoring.AggregateResult) string {
	switch {
	case tiered != nil:
		return fmt.Sprintf("%.2f", tiered.Medium.MAP*100)
	case global != nil:
		return fmt.Sprintf("%.2f", global.MAP*100)
	default:
		return "-"
	}
}

func runsTable() *tabwriter.Writer {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "id\tdataset\tengine\tstatus\tmAP\tstarted")
	return w
}

func runsTableRow(w *tabwriter.Writer, id, name, engine, status, mapStr string, started time.Time) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		id, name, engine, status, mapStr, started.Format("2006-01-02 15:04:05"))
}

func printDatasets(infos []client.DatasetInfo, asJSON bool) error {
	if asJSON {
		return printJSON(infos)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "name\tdatabase\tqueries\tprotocol")
	for _, d := range infos {
		protocol := "classic"
		if d.Tiered {
			protocol = "tiered"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", d.Name, d.NumDatabase, d.NumQueries, protocol)
	}
	return w.Flush()
}

func printSeries(title string, points []client.StatsPoint) {
	fmt.Printf("%s:\n", title)
	if len(points) == 0 {
		fmt.Println("  (no data)")
		return
	}
	for _, p := range points {
		fmt.Printf("  %s  %.2f\n", p.Timestamp.Format("15:04"), p.Value)
	}
}
