// Package main provides the nornicproj CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/orneryd/nornicproj/pkg/config"
	"github.com/orneryd/nornicproj/pkg/eval"
	"github.com/orneryd/nornicproj/pkg/plan"
	"github.com/orneryd/nornicproj/pkg/profile"
	"github.com/orneryd/nornicproj/pkg/projection"
	"github.com/orneryd/nornicproj/pkg/storage"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nornicproj",
		Short: "nornicproj - projection expression compiler",
		Long: `nornicproj compiles projection expression trees into type-specialized,
instrumented Go code and evaluates them against a property graph.

Plans are YAML documents describing the projected columns. See "explain" to
inspect a plan, "compile" to render Go source and "eval" to run it.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search standard locations)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nornicproj v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	explainCmd := &cobra.Command{
		Use:   "explain <plan.yaml>",
		Short: "Print the projection tree of a plan",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	}
	rootCmd.AddCommand(explainCmd)

	compileCmd := &cobra.Command{
		Use:   "compile <plan.yaml>",
		Short: "Render a plan as Go source",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	compileCmd.Flags().String("package", "", "Package name of the generated file")
	compileCmd.Flags().String("type", "", "Name of the generated type")
	compileCmd.Flags().Bool("no-fmt", false, "Skip gofmt")
	compileCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	addStorageFlags(compileCmd)
	rootCmd.AddCommand(compileCmd)

	evalCmd := &cobra.Command{
		Use:   "eval <plan.yaml>",
		Short: "Evaluate a plan against a graph",
		Long: `Evaluate a plan's rows against the configured graph store. The plan's
graph fixture, if any, is loaded first. Parameters given with --param
override the plan's params.`,
		Args: cobra.ExactArgs(1),
		RunE: runEval,
	}
	evalCmd.Flags().StringArrayP("param", "p", nil, "Parameter as key=value (value is YAML)")
	evalCmd.Flags().Bool("profile", true, "Print per-operator db hits and rows")
	evalCmd.Flags().Bool("metrics", false, "Print Prometheus metrics after evaluation")
	addStorageFlags(evalCmd)
	rootCmd.AddCommand(evalCmd)

	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the Badger graph store",
	}
	backupCmd := &cobra.Command{
		Use:   "backup <file>",
		Short: "Write a full snapshot of the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackup,
	}
	restoreCmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Load a snapshot into an empty store",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}
	loadCmd := &cobra.Command{
		Use:   "load <plan.yaml>",
		Short: "Load a plan's graph fixture into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoad,
	}
	for _, c := range []*cobra.Command{backupCmd, restoreCmd, loadCmd} {
		c.Flags().String("data-dir", "", "Badger data directory")
		storeCmd.AddCommand(c)
	}
	rootCmd.AddCommand(storeCmd)

	return rootCmd
}

func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("engine", "", "Storage engine: memory, badger")
	cmd.Flags().String("data-dir", "", "Badger data directory")
}

// loadConfig applies flags over file and environment configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, log.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, nil, err
	}

	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if f := cmd.Flags().Lookup("engine"); f != nil && f.Value.String() != "" {
		cfg.Storage.Engine = strings.ToLower(f.Value.String())
	}
	if f := cmd.Flags().Lookup("data-dir"); f != nil && f.Value.String() != "" {
		cfg.Storage.DataDir = f.Value.String()
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Profiling.Prometheus, _ = cmd.Flags().GetBool("metrics")
		if cfg.Profiling.Prometheus {
			cfg.Profiling.Enabled = true
		}
	}
	if cmd.Flags().Changed("profile") {
		cfg.Profiling.Enabled, _ = cmd.Flags().GetBool("profile")
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	level.Debug(logger).Log("msg", "loaded config", "path", path, "config", cfg.String())
	return cfg, logger, nil
}

func openEngine(cfg config.StorageConfig, logger log.Logger) (storage.Engine, error) {
	switch cfg.Engine {
	case config.EngineBadger:
		return storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:    cfg.DataDir,
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
			LowMemory:  cfg.LowMemory,
			Logger:     logger,
		})
	default:
		return storage.NewMemoryEngine(), nil
	}
}

// openBadger opens the on-disk Badger store at the configured data dir,
// ignoring the engine setting.
func openBadger(cmd *cobra.Command) (*storage.BadgerEngine, log.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.DataDir == "" {
		return nil, nil, fmt.Errorf("store commands need --data-dir")
	}
	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir:    cfg.Storage.DataDir,
		SyncWrites: cfg.Storage.SyncWrites,
		LowMemory:  cfg.Storage.LowMemory,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, logger, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	engine, _, err := openBadger(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.Backup(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s\n", args[0])
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	engine, _, err := openBadger(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.Restore(args[0]); err != nil {
		return err
	}
	nodes, _ := engine.NodeCount()
	edges, _ := engine.EdgeCount()
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d nodes, %d edges\n", nodes, edges)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	doc, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	if doc.Graph == nil {
		return fmt.Errorf("%s has no graph", args[0])
	}
	engine, logger, err := openBadger(cmd)
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := doc.Graph.Load(engine); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "loaded graph", "nodes", len(doc.Graph.Nodes), "edges", len(doc.Graph.Edges))
	nodes, _ := engine.NodeCount()
	edges, _ := engine.EdgeCount()
	fmt.Fprintf(cmd.OutOrStdout(), "store has %d nodes, %d edges\n", nodes, edges)
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	doc, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	root, err := doc.Build(projection.NewBuilder(nil))
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), projection.Explain(root))
	return nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("package"); v != "" {
		cfg.Compiler.Package = v
	}
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		cfg.Compiler.TypeName = v
	}
	if noFmt, _ := cmd.Flags().GetBool("no-fmt"); noFmt {
		cfg.Compiler.Format = false
	}

	doc, err := plan.Load(args[0])
	if err != nil {
		return err
	}

	// Keys already present in the store are compiled in as constants.
	engine, err := openEngine(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	root, err := doc.Build(projection.NewBuilder(engine))
	if err != nil {
		return err
	}
	prog, err := projection.Compile(root, projection.WithLogger(logger))
	if err != nil {
		return err
	}
	src, err := prog.Source(projection.SourceOptions{
		Package:  cfg.Compiler.Package,
		TypeName: cfg.Compiler.TypeName,
		Format:   cfg.Compiler.Format,
	})
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		_, err = cmd.OutOrStdout().Write(src)
		return err
	}
	if err := os.WriteFile(out, src, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	level.Info(logger).Log("msg", "wrote generated source", "path", out, "bytes", len(src))
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	doc, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	params, rows := doc.Bindings()
	overrides, _ := cmd.Flags().GetStringArray("param")
	for _, kv := range overrides {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		v, err := plan.ParseValue(raw)
		if err != nil {
			return err
		}
		params[key] = v
	}

	engine, err := openEngine(cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if doc.Graph != nil {
		if err := doc.Graph.Load(engine); err != nil {
			return err
		}
	}

	root, err := doc.Build(projection.NewBuilder(engine))
	if err != nil {
		return err
	}
	prog, err := projection.Compile(root, projection.WithLogger(logger))
	if err != nil {
		return err
	}

	recorder := profile.NewRecorder()
	tracers := []profile.Tracer{recorder}
	registry := prometheus.NewRegistry()
	if cfg.Profiling.Prometheus {
		tracers = append(tracers, profile.NewPrometheusTracer(registry))
	}
	env := eval.Env{Reader: engine, Params: params}
	if cfg.Profiling.Enabled {
		env.Tracer = profile.Multi(tracers...)
	}

	unit := prog.NewUnit()
	level.Debug(logger).Log("msg", "evaluating", "unit", unit.ID(), "rows", len(rows))
	records, err := unit.Run(cmd.Context(), env, rows)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := writeRecords(w, prog.Columns(), records); err != nil {
		return err
	}
	if cfg.Profiling.Enabled {
		writeProfile(w, recorder)
	}
	if cfg.Profiling.Prometheus {
		fmt.Fprintln(w)
		return profile.WriteMetrics(w, registry)
	}
	return nil
}

func writeRecords(w io.Writer, columns []string, records [][]any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, rec := range records {
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeProfile(w io.Writer, recorder *profile.Recorder) {
	ops := recorder.Operators()
	if len(ops) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "operator\tdb hits\trows")
	for _, op := range ops {
		s := recorder.Stats(op)
		fmt.Fprintf(tw, "%d\t%d\t%d\n", op, s.DBHits, s.Rows)
	}
	tw.Flush()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case *storage.Node:
		return fmt.Sprintf("(%s:%s %s)", val.ID, strings.Join(val.Labels, ":"), formatValue(val.Properties))
	case *storage.Edge:
		return fmt.Sprintf("[%s:%s %s]", val.ID, val.Type, formatValue(val.Properties))
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatValue(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return eval.Text(v)
}
