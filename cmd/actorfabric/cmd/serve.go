package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the runtime and its HTTP API",
	Long: `Start the actor runtime: the mailbox consumer, the timer/alarm/signal
consumer and the HTTP API.

The five resource names (runtime.queue, runtime.table, runtime.workflow_table,
runtime.locks_table, runtime.bus_name) must be configured, either in the
config file or through DURABLE_QUEUE, DURABLE_TABLE, WORKFLOW_TABLE,
LOCKS_TABLE and DURABLE_BUS_NAME.

Examples:
  # Start with the project config
  actorfabric serve

  # Listen on all interfaces, hold the actor lock during async work
  actorfabric serve --addr 0.0.0.0:8080 --serialize`,
	RunE: runServe,
}

var (
	serveAddr      string
	serveSerialize bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"address to listen on (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveSerialize, "serialize", false,
		"hold the actor lock while an asynchronous invocation runs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveSerialize {
		cfg.Dispatch.Serialize = true
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
		logger.Info("actorfabric stopped")
	}()

	if loader.ConfigFile() != "" {
		loader.Watch(func(next *config.Config, e fsnotify.Event) {
			if !strings.EqualFold(next.Log.Level, logger.Level().String()) {
				logger.SetLevel(next.Log.Level)
				logger.Info("log level changed", "level", next.Log.Level, "file", e.Name)
			}
		}, func(err error) {
			logger.Warn("ignoring unreadable config change", "error", err)
		})
	}

	return a.run(ctx)
}
