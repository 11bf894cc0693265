package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"nimbus-hq/helios/pkg/cli"
	"nimbus-hq/helios/pkg/config"
	"nimbus-hq/helios/pkg/runtime"
	"nimbus-hq/helios/pkg/server"
	"nimbus-hq/helios/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Helios gateway",
	Long: `Start the Helios gateway with the specified configuration.

The gateway listens on the configured address and routes generation
requests across the provider pool, falling back to the next provider
when one fails. Health probing, alerting, the request journal and the
usage ledger all start with it.

Configuration changes are picked up while running: edits to the config
file reload the balancer settings and alert definitions without a
restart. Provider, server and storage changes still need one.

Examples:
  # Start with default config
  helios run

  # Start with custom config
  helios run --config /etc/helios/config.yaml

  # Override listen address
  helios run --listen 0.0.0.0:8080

  # Validate config without starting the gateway
  helios run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "disable config file watching")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	// Initialize logging based on config
	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		RedactSecrets: cfg.Telemetry.Logging.IsRedactSecrets(),
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		fmt.Printf("  providers: %d, strategy: %s, listen: %s\n",
			len(cfg.Providers), cfg.Balancer.Strategy, cfg.Server.ListenAddress)
		return nil
	}

	printBanner(cfg)

	// Assemble the runtime: registry, balancer, health, faults, journal,
	// usage, alerting and metrics all hang off it.
	rt, err := runtime.New(cfg, runtime.Options{Logger: logger, Version: Version})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer rt.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Printf("✓ Runtime started (%d providers, strategy %s)\n",
		rt.Registry().Len(), rt.Balancer().Strategy())

	// Start HTTP server in background goroutine
	srv := server.New(rt, cfg.Server)
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	if err := waitForServer(srv, 5*time.Second); err != nil {
		select {
		case srvErr := <-errChan:
			return cli.NewCommandError("run", srvErr)
		default:
		}
		return cli.NewCommandError("run", err)
	}

	// Watch the config file so balancer and alert edits apply live
	if !runFlags.noWatch {
		watcher, err := config.NewWatcher(cfgFile, logger)
		if err != nil {
			slog.Warn("config watching disabled", "error", err)
		} else {
			go func() {
				watchErr := watcher.Watch(ctx, func(next *config.Config) {
					if err := rt.ApplyConfig(next); err != nil {
						slog.Error("config reload rejected", "error", err)
					}
				})
				if watchErr != nil {
					slog.Warn("config watcher exited", "error", watchErr)
				}
			}()
			defer watcher.Stop()
		}
	}

	fmt.Println()
	fmt.Printf("✓ Gateway listening on %s\n", srv.Addr())
	fmt.Printf("  generate:  http://%s/v1/generate\n", srv.Addr())
	fmt.Printf("  health:    http://%s/healthz\n", srv.Addr())
	fmt.Printf("  status:    http://%s/v1/status\n", srv.Addr())
	if cfg.Telemetry.Metrics.IsEnabled() {
		fmt.Printf("  metrics:   http://%s%s\n", srv.Addr(), cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Gateway stopped")
		return nil
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Helios v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("configuration summary",
		"providers", len(cfg.Providers),
		"strategy", cfg.Balancer.Strategy,
		"journal_backend", cfg.Journal.Backend,
		"usage_backend", cfg.Usage.Backend,
	)
}

// waitForServer polls until the server reports itself running or the
// timeout passes.
func waitForServer(srv *server.Server, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if srv.Running() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("server did not start within %s", timeout)
}
