package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/backend"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/postgres"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/sqlstore"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	noColor   bool
	serverURL string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "actorfabric",
	Short: "Durable actor runtime with optimistic state, leases and a FIFO mailbox",
	Long: `actorfabric runs stateful actors over a pluggable storage backend.

Each actor owns a versioned state record, a lease for exclusive work and an
ordered mailbox. Timers, alarms and signals are delivered through an event
bus, and request/response between actors is correlated through workflow
records.

Run 'actorfabric serve' to start the runtime and its HTTP API. The other
commands talk to a running server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./"+config.ProjectConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"API base URL for client commands (default: http://<server.addr>)")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig reads the configuration through the shared viper instance so
// flag bindings apply.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	})
}

// backendOptions maps the configuration onto the backend factory.
func backendOptions(cfg *config.Config) backend.Options {
	pool := postgres.DefaultPoolConfig()
	if cfg.Backend.MaxOpenConns > 0 {
		pool.MaxOpenConns = cfg.Backend.MaxOpenConns
	}
	if cfg.Backend.MaxIdleConns > 0 {
		pool.MaxIdleConns = cfg.Backend.MaxIdleConns
	}
	if cfg.Backend.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.Backend.ConnMaxLifetime
	}

	return backend.Options{
		Driver: cfg.Backend.Driver,
		DSN:    cfg.Backend.DSN,
		Names: sqlstore.Names{
			Actors:    cfg.Runtime.Table,
			Locks:     cfg.Runtime.LocksTable,
			Workflows: cfg.Runtime.WorkflowTable,
			Queue:     cfg.Runtime.Queue,
		},
		DedupWindow: cfg.Mailbox.DedupWindow,
		MaxReceives: cfg.Mailbox.MaxReceives,
		Pool:        pool,
	}
}

// apiBaseURL resolves the server client commands talk to.
func apiBaseURL() (string, error) {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/"), nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.Server.Addr, nil
}
