package main

import (
	"context"
	"io"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-boot/bootstrap"
	"github.com/wippyai/wasm-boot/config"
	"github.com/wippyai/wasm-boot/engine"
	"github.com/wippyai/wasm-boot/errors"
	"github.com/wippyai/wasm-boot/logging"
	"github.com/wippyai/wasm-boot/metrics"
	"github.com/wippyai/wasm-boot/pageloader"
	"github.com/wippyai/wasm-boot/server"
	"github.com/wippyai/wasm-boot/source"
)

func newRootCmd(std streams) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Load a WebAssembly module and run its entry point",
		Long: `Load a WebAssembly core module from a path or URL, then call its
zero-argument entry export exactly once.

Initialization failures exit with status 1 and the entry is never called.
A WASI exit from the entry point becomes the process exit status.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, configFile, std)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return boot(cmd.Context(), cfg, logger, std)
		},
	}
	cmd.SetIn(std.in)
	cmd.SetOut(std.out)
	cmd.SetErr(std.err)

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default boot.yaml in . or ./config)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", config.FormatConsole, "log format: console or json")
	pf.String("location", "pkg/thoth_manager_bg.wasm", "module location: a path, file:// or http(s):// URL")
	pf.String("entry", "run_app", "zero-argument entry export")
	pf.Int64("max-bytes", source.DefaultMaxBytes, "largest module accepted, in bytes")
	pf.Bool("wasi", true, "provide wasi_snapshot_preview1 to the module")

	f := cmd.Flags()
	f.String("progress", config.ProgressAuto, "loading indicator: auto, on or off")
	f.StringSlice("arg", nil, "argument passed to the module (repeatable)")
	f.StringSlice("env", nil, "KEY=VALUE environment variable for the module (repeatable)")
	f.StringSlice("mount", nil, "host:guest directory mount for the module (repeatable)")
	f.Uint32("memory-limit", 0, "guest memory limit in 64KiB pages, 0 for the engine default")
	f.String("metrics-addr", "", "serve /metrics on this address while the module runs")

	cmd.AddCommand(newServeCmd(std, &configFile))
	cmd.AddCommand(newInspectCmd(std, &configFile))
	cmd.AddCommand(newVersionCmd(std))
	return cmd
}

// setup loads configuration for cmd and builds the logger.
func setup(cmd *cobra.Command, configFile string, std streams) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Output: std.err,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == "" {
		logger.Debug("no config file found, using defaults and env vars")
	} else {
		logger.Debug("config loaded", zap.String("file", cfg.File))
	}
	return cfg, logger, nil
}

func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger, std streams) (*engine.Engine, error) {
	env, err := cfg.Module.Environ()
	if err != nil {
		return nil, err
	}
	mounts, err := cfg.Module.MountMap()
	if err != nil {
		return nil, err
	}

	fetcher := source.NewFetcher(
		source.WithMaxBytes(cfg.Module.MaxBytes),
		source.WithLogger(logger),
	)
	return engine.New(ctx, engine.Config{
		Stdin:            std.in,
		Stdout:           std.out,
		Stderr:           std.err,
		Env:              env,
		Mounts:           mounts,
		Entry:            cfg.Module.Entry,
		Args:             cfg.Module.Args,
		MemoryLimitPages: cfg.Module.MemoryLimitPages,
		EnableWASI:       cfg.Module.WASI,
	}, engine.WithLogger(logger), engine.WithFetcher(fetcher))
}

func boot(ctx context.Context, cfg *config.Config, logger *zap.Logger, std streams) error {
	eng, err := newEngine(ctx, cfg, logger, std)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close(context.WithoutCancel(ctx)) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	opts := []bootstrap.Option{
		bootstrap.WithLogger(logger),
		bootstrap.WithObserver(m.Observer()),
	}
	if showProgress(cfg.Progress, std.err) {
		pl := pageloader.New(cfg.Module.Location, progressOptions(std, cancel)...)
		opts = append(opts, bootstrap.WithObserver(pl.Observer()))
	}

	loader := bootstrap.New(cfg.Module.Location, bootstrap.Adapt(eng.Load), opts...)
	if cfg.MetricsAddr != "" {
		stop, err := serveStatus(ctx, cfg.MetricsAddr, server.NewStatus(server.Config{},
			server.WithLogger(logger),
			server.WithMetrics(m, reg),
			server.WithState(loader.State),
		))
		if err != nil {
			return err
		}
		defer stop()
	}

	err = loader.Start(ctx)
	switch {
	case err == nil:
		return nil
	case errors.IsInitFailure(err):
		return reportedError{err}
	}

	if code := exitCode(err); code != 1 {
		logger.Info("module exited", zap.Int("code", code))
	} else {
		logger.Error("entry point failed", zap.String("location", cfg.Module.Location), zap.Error(err))
	}
	return reportedError{err}
}

// showProgress resolves the progress mode against the output stream.
func showProgress(mode string, w io.Writer) bool {
	switch mode {
	case config.ProgressOn:
		return true
	case config.ProgressOff:
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func progressOptions(std streams, interrupt func()) []pageloader.Option {
	opts := []pageloader.Option{
		pageloader.WithOutput(std.err),
		pageloader.WithInterrupt(interrupt),
	}
	// Piped stdin belongs to the guest.
	if f, ok := std.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		opts = append(opts, pageloader.WithInput(f))
	} else {
		opts = append(opts, pageloader.WithInput(nil))
	}
	if f, ok := std.err.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		opts = append(opts, pageloader.WithoutRenderer())
	}
	return opts
}

// serveStatus serves srv on addr until the returned stop function is called.
func serveStatus(ctx context.Context, addr string, srv *server.Server) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseServe, errors.KindUnreachable, err, "listen "+addr)
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
