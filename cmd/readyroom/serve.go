package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/readyroom/internal/archive"
	"github.com/vango-dev/readyroom/internal/config"
	"github.com/vango-dev/readyroom/internal/console"
	"github.com/vango-dev/readyroom/internal/errors"
	"github.com/vango-dev/readyroom/internal/hub"
	"github.com/vango-dev/readyroom/internal/metrics"
	"github.com/vango-dev/readyroom/internal/registry"
	"github.com/vango-dev/readyroom/pkg/game"
	"github.com/vango-dev/readyroom/pkg/server"
)

type serveOptions struct {
	configPath string
	tcp        string
	http       string
	capacity   int
	countdown  int
	dwell      time.Duration
	logLevel   string
	logFormat  string
	trace      bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Long: `Run the session server.

Settings come from readyroom.json in the working directory (or
--config), then from flags. Without a file the defaults apply.

Examples:
  readyroom serve
  readyroom serve --tcp=0.0.0.0:10101 --capacity=8
  readyroom serve --config=/etc/readyroom.json --trace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, opts.trace, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Path to readyroom.json")
	f.StringVar(&opts.tcp, "tcp", "", "Raw TCP listen address (empty string disables)")
	f.StringVar(&opts.http, "http", "", "Admin HTTP and WebSocket listen address (empty string disables)")
	f.IntVar(&opts.capacity, "capacity", 0, "Maximum connected clients")
	f.IntVar(&opts.countdown, "countdown", 0, "Countdown announcements before the game starts")
	f.DurationVar(&opts.dwell, "dwell", 0, "Time a running client holds input before the server replies")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	f.BoolVar(&opts.trace, "trace", false, "Print the session trace to stdout")

	return cmd
}

// loadServeConfig reads the config file and applies the flags that were set.
func loadServeConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case config.Exists("."):
		cfg, err = config.Load(".")
	default:
		cfg = config.New()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("tcp") {
		cfg.Listen.TCP = opts.tcp
	}
	if flags.Changed("http") {
		cfg.Listen.HTTP = opts.http
	}
	if flags.Changed("capacity") {
		cfg.Capacity = opts.capacity
	}
	if flags.Changed("countdown") {
		cfg.Game.CountdownTicks = opts.countdown
	}
	if flags.Changed("dwell") {
		cfg.Game.Dwell = config.Duration(opts.dwell)
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is a fully wired server.
type app struct {
	runID    string
	hub      *hub.Hub
	driver   *game.Driver
	server   *server.Server
	archiver *archive.Archiver
	registry *prometheus.Registry
	logger   *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger, sink game.Sink) (*app, error) {
	a := &app{
		runID:    uuid.NewString(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.logger = logger.With("run_id", a.runID)
	m := metrics.New(metrics.WithRegistry(a.registry))

	driverOpts := []game.Option{
		game.WithLogger(logger),
		game.WithMetrics(m),
		game.WithRunID(a.runID),
		game.WithSink(sink),
	}
	if cfg.Archive.Enabled {
		acfg := archive.Config{
			Bucket:   cfg.Archive.Bucket,
			Prefix:   cfg.Archive.Prefix,
			Region:   cfg.Archive.Region,
			Endpoint: cfg.Archive.Endpoint,
			Timeout:  cfg.Archive.Timeout.Std(),
		}
		archiver, err := archive.New(archive.NewClient(acfg), acfg,
			archive.WithLogger(a.logger),
			archive.WithMetrics(m))
		if err != nil {
			return nil, errors.FromError(err, "E400")
		}
		a.archiver = archiver
		driverOpts = append(driverOpts, game.OnTransition(archiver.Hook()))
	}

	a.hub = hub.New(registry.New(cfg.Capacity))
	a.driver = game.NewDriver(a.hub, cfg.ToGame(), driverOpts...)
	a.server = server.New(a.hub, a.driver, cfg.ToServer(),
		server.WithLogger(a.logger),
		server.WithMetrics(m, a.registry))
	return a, nil
}

// run drives the session and serves until ctx is done.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.driver.Run(ctx)
	}()

	err := a.server.ListenAndServe(ctx)
	cancel()
	wg.Wait()
	if a.archiver != nil {
		a.archiver.Wait()
	}
	if err != nil {
		return errors.FromError(err, "E200")
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, trace bool, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return errors.New("E300").Wrap(err)
	}

	var sink game.Sink = game.Discard
	if trace {
		sink = console.New(stdout)
	}

	a, err := newApp(cfg, logger, sink)
	if err != nil {
		return err
	}

	printBanner()
	if path := cfg.Path(); path != "" {
		info("Config:    %s", filepath.Clean(path))
	}
	if cfg.Listen.TCP != "" {
		info("TCP:       %s", cfg.Listen.TCP)
	}
	if cfg.Listen.HTTP != "" {
		info("HTTP:      %s (/ws, /status, /metrics)", cfg.Listen.HTTP)
	}
	info("Capacity:  %d", cfg.Capacity)
	info("Run ID:    %s", a.runID)
	if a.archiver != nil {
		info("Archive:   s3://%s/%s", cfg.Archive.Bucket, cfg.Archive.Prefix)
	}
	success("Serving. Press Ctrl+C to stop.")

	if err := a.run(ctx); err != nil {
		return err
	}
	success("Stopped")
	return nil
}
