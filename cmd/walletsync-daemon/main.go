// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/walletsync/lib/config"
	"github.com/bureau-foundation/walletsync/lib/outbound"
	"github.com/bureau-foundation/walletsync/lib/process"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/sealed"
	"github.com/bureau-foundation/walletsync/lib/secret"
	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
	"github.com/bureau-foundation/walletsync/lib/syncmetrics"
	"github.com/bureau-foundation/walletsync/lib/transport"
	"github.com/bureau-foundation/walletsync/lib/version"
	"github.com/bureau-foundation/walletsync/lib/walletindex"
	"github.com/bureau-foundation/walletsync/lib/walletsync"
	"github.com/bureau-foundation/walletsync/messaging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var (
		configPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("walletsync-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $"+config.EnvVar+")")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.Usage(err)
	}

	if showVersion {
		fmt.Printf("walletsync-daemon %s\n", version.Read())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("creating state directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userID, err := ref.ParseUserID(cfg.Homeserver.UserID)
	if err != nil {
		return fmt.Errorf("homeserver.user_id: %w", err)
	}
	token, err := secret.Load(cfg.Homeserver.AccessTokenFile)
	if err != nil {
		return fmt.Errorf("loading access token: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Homeserver.URL,
		Logger:        logger.With("component", "messaging"),
	})
	if err != nil {
		token.Close()
		return err
	}
	session, err := client.SessionFromToken(userID, token)
	if err != nil {
		token.Close()
		return err
	}
	defer session.Close()

	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("validating access token: %w", err)
	}
	if whoami != userID {
		return fmt.Errorf("access token belongs to %s, config says %s", whoami, userID)
	}
	logger.Info("matrix session valid", "user_id", userID.String())

	backoff := transport.Backoff{Initial: cfg.Sync.BackoffInitial, Max: cfg.Sync.BackoffMax}
	matrix, err := transport.NewMatrix(transport.MatrixConfig{
		Session:     session,
		Logger:      logger.With("component", "transport"),
		PageSize:    cfg.Sync.PageSize,
		SyncTimeout: cfg.Sync.Timeout,
		Backoff:     backoff,
	})
	if err != nil {
		return err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.State.Database,
		PoolSize: cfg.State.PoolSize,
		Schemas:  walletsync.Schemas(),
		Logger:   logger.With("component", "sqlitepool"),
	})
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer pool.Close()

	var sealer walletindex.Sealer
	if cfg.State.SnapshotKeyFile != "" {
		key, err := sealed.LoadOrCreateKey(cfg.State.SnapshotKeyFile)
		if err != nil {
			return err
		}
		sealer = key
		logger.Info("snapshot sealing enabled", "recipient", key.Recipient())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := syncmetrics.New(registry)
	if cfg.Metrics.Listen != "" {
		stopMetrics, err := serveMetrics(cfg.Metrics.Listen, registry, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	bridge, err := walletsync.New(walletsync.Config{
		Transport:         matrix,
		Pool:              pool,
		Sealer:            sealer,
		Limiter:           newLimiter(cfg.Outbound),
		Retry:             outbound.RetryPolicy{MaxAttempts: cfg.Outbound.MaxAttempts, Backoff: backoff},
		RetryBudget:       cfg.Sync.RetryBudget,
		RepublishInterval: cfg.Sync.RepublishInterval,
		Backoff:           backoff,
		Metrics:           metrics,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	logger.Info("walletsync-daemon starting",
		"version", version.Read().String(),
		"environment", string(cfg.Environment),
		"database", cfg.State.Database,
	)
	if err := bridge.Run(ctx); err != nil {
		return err
	}
	logger.Info("walletsync-daemon stopped")
	return nil
}

// loadConfig prefers the flag and falls back to the environment
// variable. Neither set is an error.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, process.Usage(fmt.Errorf("loading config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, process.Usage(fmt.Errorf("invalid config: %w", err))
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, output io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	switch cfg.Log.Format {
	case "", "json":
		return slog.New(slog.NewJSONHandler(output, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(output, options)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
}

// newLimiter returns nil when sends are unpaced.
func newLimiter(cfg config.OutboundConfig) *rate.Limiter {
	if cfg.Rate <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.Rate))
	}
	return rate.NewLimiter(rate.Limit(cfg.Rate), burst)
}

// serveMetrics starts the /metrics listener and returns a function that
// shuts it down.
func serveMetrics(address string, gatherer prometheus.Gatherer, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s for metrics: %w", address, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", listener.Addr().String())
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, nil
}
