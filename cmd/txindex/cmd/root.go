// Package cmd provides the CLI commands for txindex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/txindex/internal/config"
	"github.com/Aman-CERP/txindex/internal/docindex"
	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/index"
	"github.com/Aman-CERP/txindex/internal/logging"
	"github.com/Aman-CERP/txindex/internal/profiling"
	"github.com/Aman-CERP/txindex/pkg/version"
)

// defaultIndexDir is used when --index is not given.
const defaultIndexDir = ".txindex"

// rootOptions carries the persistent flags and the state set up before a
// subcommand runs.
type rootOptions struct {
	indexDir   string
	projectDir string
	debug      bool

	profile     profiling.Options
	metricsFile string

	cfg            *config.Config
	metrics        *prometheus.Registry
	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the txindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "txindex",
		Short: "Transactional document index",
		Long: `txindex stores documents keyed by a primary key in an on-disk index
and answers exact, prefix, regexp and camel-case queries over their fields.

Writes are buffered and committed atomically; readers never see a
half-applied store.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("txindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.indexDir, "index", "i", defaultIndexDir, "Index directory")
	cmd.PersistentFlags().StringVar(&opts.projectDir, "project", ".", "Directory holding .txindex.yaml")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.txindex/logs/")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write index metrics in Prometheus text format to file")

	cmd.PersistentPreRunE = opts.setup
	cmd.PersistentPostRunE = opts.teardown

	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newRemoveCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newUnlockCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration, starts logging and starts profiling.
func (o *rootOptions) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(o.projectDir)
	if err != nil {
		return ixerrors.ConfigError("failed to load configuration", err)
	}
	o.cfg = cfg

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if o.debug {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("txindex starting",
		slog.String("version", version.Version),
		slog.String("index", o.indexDir))

	o.metrics = prometheus.NewRegistry()

	if o.profile.Enabled() {
		session, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = session
	}
	return nil
}

// teardown stops profiling, writes metrics and flushes the log file.
func (o *rootOptions) teardown(_ *cobra.Command, _ []string) error {
	var err error

	if o.profiler != nil {
		err = o.profiler.Stop()
		o.profiler = nil
	}

	if o.metricsFile != "" && err == nil {
		if werr := prometheus.WriteToTextfile(o.metricsFile, o.metrics); werr != nil {
			err = fmt.Errorf("failed to write metrics: %w", werr)
		}
	}

	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}

// indexOptions maps the configuration onto registry options.
func (o *rootOptions) indexOptions() index.Options {
	opts := index.DefaultOptions()
	opts.MaxOpenReaders = o.cfg.Index.MaxOpenReaders
	opts.LockTimeout = o.cfg.Index.LockTimeout
	opts.OpenTimeout = o.cfg.Index.OpenTimeout
	opts.Watch = o.cfg.Index.Watch
	opts.Logger = slog.Default()
	opts.Registerer = o.metrics
	return opts
}

// openDocuments opens the document index named by --index. The returned
// close function discards anything left unstored.
func (o *rootOptions) openDocuments() (*docindex.DocumentIndex, func() error, error) {
	reg := index.NewRegistry(o.indexOptions())
	idx, err := reg.Open(o.indexDir)
	if err != nil {
		_ = reg.Close()
		return nil, nil, err
	}

	var cache docindex.DocumentCache
	if n := o.cfg.Documents.FlushThreshold; n > 0 {
		cache = docindex.NewThresholdCache(n)
	}
	docs := docindex.New(idx, cache, slog.Default())

	closeFn := func() error {
		err := docs.Close()
		if cerr := reg.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return docs, closeFn, nil
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(os.Stderr, ixerrors.FormatForCLI(err))
	}
	return err
}
