// Package main is the entry point for the polis-mocks binary.
// It runs the LLM and audit mock services side by side.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polisai/polis-mocks/pkg/auditmock"
	"github.com/polisai/polis-mocks/pkg/client"
	"github.com/polisai/polis-mocks/pkg/config"
	"github.com/polisai/polis-mocks/pkg/llmmock"
	"github.com/polisai/polis-mocks/pkg/logging"
	"github.com/polisai/polis-mocks/pkg/server"
	"github.com/polisai/polis-mocks/pkg/service"
	"github.com/polisai/polis-mocks/pkg/telemetry"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-mocks
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-mocks",
		Short: "Mock LLM and audit services for integration tests",
		Long: `Runs two mock HTTP services in one process:

  llm    POST /v1/chat/completions, echoing a caller-chosen reply either in one
         response or as a paced SSE stream (plain or OpenAI-compatible shape)
  audit  POST /audit, flagging caller-chosen words found in the content

Settings come from defaults, an optional YAML file, the environment
(LLM_PORT, AUDIT_PORT, STREAM_INTERVAL, ...) and finally these flags.

Example:
  polis-mocks --llm-port 9000 --audit-port 9001 --log-level debug`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMocks,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.Int("llm-port", 0, "Port for the LLM mock (overrides config)")
	flags.Int("audit-port", 0, "Port for the audit mock (overrides config)")

	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("pretty", false, "Enable pretty console logging")
	rootCmd.Flags().Bool("watch", false, "Reload stream settings when the config file changes")

	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// buildConfig loads the layered configuration and applies the flags the user
// set explicitly.
func buildConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}

	flags := cmd.Flags()
	if flags.Changed("llm-port") {
		cfg.LLM.Port, _ = flags.GetInt("llm-port")
	}
	if flags.Changed("audit-port") {
		cfg.Audit.Port, _ = flags.GetInt("audit-port")
	}
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if f := flags.Lookup("pretty"); f != nil && f.Changed {
		cfg.Logging.Pretty, _ = strconv.ParseBool(f.Value.String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

// runMocks is the main entry point for the root command
func runMocks(cmd *cobra.Command, _ []string) error {
	cfg, configPath, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	if watch && configPath == "" {
		return errors.New("--watch requires --config")
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Writer: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("Failed to flush traces", "error", err)
		}
	}()

	logger.Info("Starting polis-mocks",
		"version", version,
		"llm_addr", cfg.LLM.Addr(),
		"audit_addr", cfg.Audit.Addr(),
		"stream_interval", cfg.Stream.Interval,
		"watch", watch,
	)

	group, _ := buildServices(cfg, configPath, watch, logger)
	if err := group.Run(ctx); err != nil {
		logger.Error("Mock services stopped with errors", "error", err)
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}

// buildServices wires the two listeners and, when watching, the config
// watcher. The servers are returned in the group's order: llm, then audit.
func buildServices(cfg *config.Config, configPath string, watch bool, logger *slog.Logger) (service.Group, []*server.Server) {
	metrics := server.NewMetrics()
	store := config.NewStreamStore(cfg.Stream)

	llm := server.New(server.Config{
		Name: llmmock.ServiceName,
		Addr: cfg.LLM.Addr(),
		Handler: llmmock.New(llmmock.Options{
			Store:   store,
			Metrics: metrics,
			Logger:  logger,
		}).Handler(),
		Metrics:         metrics,
		MetricsPath:     cfg.Metrics.Path,
		Logger:          logger,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	audit := server.New(server.Config{
		Name:            auditmock.ServiceName,
		Addr:            cfg.Audit.Addr(),
		Handler:         auditmock.New(metrics, logger).Handler(),
		Metrics:         metrics,
		MetricsPath:     cfg.Metrics.Path,
		Logger:          logger,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	group := service.Group{llm, audit}
	if watch {
		watcher := config.NewWatcher(configPath, func(next *config.Config) error {
			store.Store(next.Stream)
			if next.LLM != cfg.LLM || next.Audit != cfg.Audit {
				logger.Warn("Listener changes require a restart", "llm_addr", next.LLM.Addr(), "audit_addr", next.Audit.Addr())
			}
			logger.Info("Stream settings reloaded",
				"interval", next.Stream.Interval,
				"event_count", next.Stream.EventCount,
				"chunk_size", next.Stream.ChunkSize,
			)
			return nil
		}, logger).ObserveReloads(func(err error) {
			if err != nil {
				metrics.RecordConfigReload(server.ReloadFailure)
				return
			}
			metrics.RecordConfigReload(server.ReloadSuccess)
		})
		group = append(group, watcher)
	}

	return group, []*server.Server{llm, audit}
}

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that both mock services answer healthy",
		RunE:  runHealth,
	}
	cmd.Flags().String("host", "127.0.0.1", "Host the services listen on")
	cmd.Flags().Duration("wait", 0, "Keep polling until healthy or this long has passed")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, _, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	host, _ := cmd.Flags().GetString("host")
	wait, _ := cmd.Flags().GetDuration("wait")

	targets := []struct {
		name string
		port int
	}{
		{llmmock.ServiceName, cfg.LLM.Port},
		{auditmock.ServiceName, cfg.Audit.Port},
	}

	var failed bool
	for _, target := range targets {
		baseURL := "http://" + net.JoinHostPort(host, strconv.Itoa(target.port))
		err := checkHealth(cmd.Context(), client.NewChatClient(baseURL, nil), wait)
		if err != nil {
			failed = true
			fmt.Fprintf(cmd.OutOrStdout(), "%s: unhealthy (%v)\n", target.name, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: healthy\n", target.name)
	}

	if failed {
		return errors.New("one or more services are unhealthy")
	}
	return nil
}

type healthChecker interface {
	Health(ctx context.Context) (*client.Health, error)
	WaitHealthy(ctx context.Context, timeout time.Duration) error
}

func checkHealth(ctx context.Context, c healthChecker, wait time.Duration) error {
	if wait > 0 {
		return c.WaitHealthy(ctx, wait)
	}
	_, err := c.Health(ctx)
	return err
}
