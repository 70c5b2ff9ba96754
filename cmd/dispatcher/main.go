// Package main is the entry point for the adbi-dispatcher binary.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables (image id, entry point argv,
//     func id this dispatcher serves)
//  2. Build logger
//  3. Load dispatcher config (SQS queue name, pool size, retry count)
//  4. Resolve the SQS queue, build the Docker-backed container manager
//  5. Start the ops HTTP server (/healthz, /metrics) and the host sampler
//  6. Run the receive loop until SIGINT/SIGTERM, then drain the pool
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mokemokechicken/spr-adbi/internal/config"
	"github.com/mokemokechicken/spr-adbi/internal/container"
	"github.com/mokemokechicken/spr-adbi/internal/dispatcher"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
	"github.com/mokemokechicken/spr-adbi/internal/logging"
	"github.com/mokemokechicken/spr-adbi/internal/queueio"
	"github.com/mokemokechicken/spr-adbi/internal/resolver"
)

var (
	version = "dev"
	commit  = "none"
)

type cliConfig struct {
	funcID   string
	logLevel string
	httpAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "adbi-dispatcher <image-id> <entry-point...>",
		Short: "adbi-dispatcher runs worker containers for a single func_id off a shared job queue",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, args[0], args[1:])
		},
	}

	root.PersistentFlags().StringVar(&cfg.funcID, "func-id", envOrDefault("ADBI_FUNC_ID", "default"), "func_id this dispatcher resolves and serves")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("ADBI_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("ADBI_HTTP_ADDR", ":8080"), "address the ops HTTP server (/healthz, /metrics) listens on")

	return root
}

func run(ctx context.Context, cli *cliConfig, imageID string, entryPoint []string) error {
	logger, err := logging.Build(cli.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	dispatcherCfg, err := config.LoadDispatcherConfig()
	if err != nil {
		return err
	}

	logger.Info("starting adbi dispatcher",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("func_id", cli.funcID),
		zap.String("image_id", imageID),
		zap.Strings("entry_point", entryPoint),
		zap.Int("max_worker", dispatcherCfg.MaxWorker),
		zap.Int("max_retry", dispatcherCfg.MaxRetry),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue, err := queueio.NewSQS(ctx, dispatcherCfg.QueueName)
	if err != nil {
		return fmt.Errorf("failed to connect to queue %s: %w", dispatcherCfg.QueueName, err)
	}

	manager, err := container.NewDockerManager(ctx, dispatcherCfg.AWSRegion, dispatcherCfg.ECRAccounts, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	res := resolver.NewSingle(cli.funcID, jobmodel.WorkerInfo{
		ImageID:    imageID,
		EntryPoint: entryPoint,
	})

	metrics := dispatcher.NewMetrics()
	d := dispatcher.New(queue, res, manager, metrics, dispatcher.Config{
		MaxWorkers: dispatcherCfg.MaxWorker,
		MaxRetry:   dispatcherCfg.MaxRetry,
		AWSRegion:  dispatcherCfg.AWSRegion,
	}, logger)

	httpServer := &http.Server{
		Addr:    cli.httpAddr,
		Handler: dispatcher.NewOpsRouter(metrics, logger),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops http server failed", zap.Error(err))
		}
	}()

	sampler := dispatcher.NewHostSampler(metrics, "", 15*time.Second, logger)
	go sampler.Run(ctx)

	err = d.Watch(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info("adbi dispatcher stopped")
	return err
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
