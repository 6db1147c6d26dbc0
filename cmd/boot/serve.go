package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-boot/metrics"
	"github.com/wippyai/wasm-boot/server"
)

func newServeCmd(std streams, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application bundle that loads the module in a browser",
		Long: `Serve a static application bundle with no-cache headers, permissive CORS
for GET, POST and OPTIONS, and an index.html fallback for client-side routes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configFile, std)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			opts := []server.Option{server.WithLogger(logger)}
			if cfg.Server.Metrics {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				opts = append(opts, server.WithMetrics(metrics.New(reg), reg))
			}

			srv, err := server.New(server.Config{
				Host:            cfg.Server.Host,
				Port:            cfg.Server.Port,
				Dir:             cfg.Server.Dir,
				Prefix:          cfg.Server.Prefix,
				Index:           cfg.Server.Index,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				KeepAlive:       cfg.Server.KeepAlive,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Manifest:        server.DefaultManifest(version),
			}, opts...)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("host", "0.0.0.0", "listen host")
	f.Int("port", 8000, "listen port")
	f.String("dir", "static", "bundle directory")
	f.String("prefix", "", "mount the bundle under this path, e.g. /admin")
	f.Bool("metrics", true, "expose /metrics")
	return cmd
}
