package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iliyamo/kube-responder/internal/config"
	"github.com/iliyamo/kube-responder/internal/logger"
	"github.com/iliyamo/kube-responder/internal/metrics"
	"github.com/iliyamo/kube-responder/internal/router"
	"github.com/iliyamo/kube-responder/internal/server"
	"github.com/iliyamo/kube-responder/internal/service"
)

type rootOptions struct {
	envFile     string
	port        string
	debug       bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "kube-responder",
		Short: "Serve the demo pages and the /health check",
		Long: `kube-responder answers three routes with fixed plain text:

  GET /        landing page
  GET /api     API page
  GET /health  liveness/readiness check

Settings come from the environment (APP_PORT, APP_DEBUG, ...), an optional
.env file, and the flags below, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd.Flags(), opts)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	f := cmd.Flags()
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load if present")
	f.StringVarP(&opts.port, "port", "p", "", "listening port (overrides APP_PORT)")
	f.BoolVar(&opts.debug, "debug", false, "verbose diagnostics (overrides APP_DEBUG)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "admin address for /metrics (overrides METRICS_ADDR)")
	return cmd
}

// resolveConfig loads env (after the dotenv file) and applies explicitly set flags.
func resolveConfig(flags *pflag.FlagSet, opts *rootOptions) (config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flags.Changed("port") {
		if err := config.ValidatePort(opts.port); err != nil {
			return config.Config{}, err
		}
		cfg.Port = opts.port
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	return cfg, nil
}

func run(ctx context.Context, flags *pflag.FlagSet, opts *rootOptions) error {
	cfg, err := resolveConfig(flags, opts)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Env, cfg.Debug)
	defer func() { _ = log.Sync() }()

	serverOpts := []server.Option{
		server.WithLogger(log),
		server.WithPublisher(service.NewPublisher(config.BrokerURL(), log)),
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis unavailable, rate limiting and caching disabled", zap.Error(err))
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		serverOpts = append(serverOpts, server.WithRedis(rdb, config.LoadRateLimitConfig(), config.LoadCacheConfig()))
	}

	if cfg.MetricsAddr != "" {
		m := metrics.New("responder")
		admin, err := metrics.NewAdminServer(cfg.MetricsAddr, m)
		if err != nil {
			return &server.BindError{Addr: cfg.MetricsAddr, Err: err}
		}
		go func() {
			if err := admin.Serve(); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = admin.Shutdown(context.Background()) }()
		log.Info("metrics listening", zap.String("addr", admin.Addr().String()))
		serverOpts = append(serverOpts, server.WithMetrics(m))
	}

	srv := server.New(cfg, router.DefaultTable(), serverOpts...)
	if err := srv.Run(ctx); err != nil {
		log.Error("server failed", zap.Error(err))
		return err
	}
	log.Info("stopped")
	return nil
}
