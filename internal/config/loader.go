package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Environment variables that name the runtime's resources. They are read
// verbatim, without the ACTORFABRIC_ prefix.
const (
	EnvQueue         = "DURABLE_QUEUE"
	EnvTable         = "DURABLE_TABLE"
	EnvWorkflowTable = "WORKFLOW_TABLE"
	EnvLocksTable    = "LOCKS_TABLE"
	EnvBusName       = "DURABLE_BUS_NAME"
)

// runtimeEnv maps runtime keys to their bare environment variables.
var runtimeEnv = map[string]string{
	"runtime.queue":          EnvQueue,
	"runtime.table":          EnvTable,
	"runtime.workflow_table": EnvWorkflowTable,
	"runtime.locks_table":    EnvLocksTable,
	"runtime.bus_name":       EnvBusName,
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	mu         sync.Mutex
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "ACTORFABRIC",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "ACTORFABRIC",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (ACTORFABRIC_*, then the bare runtime names)
// 3. Project config (.actorfabric.yaml in current directory)
// 4. User config (~/.config/actorfabric/.actorfabric.yaml)
// 5. Defaults
//
// Load does not validate; call Validate before starting the runtime.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	prefix := strings.ToUpper(l.envPrefix)
	for key, env := range runtimeEnv {
		prefixed := prefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := l.v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".actorfabric")
		l.v.SetConfigType("yaml")

		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "actorfabric"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values. The runtime names have none.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.add_source", false)

	l.v.SetDefault("backend.driver", "sqlite")
	l.v.SetDefault("backend.dsn", ".actorfabric/fabric.db")

	l.v.SetDefault("lock.ttl", "30s")
	l.v.SetDefault("workflow.ttl", "300s")

	l.v.SetDefault("mailbox.coalesce_window", "10ms")
	l.v.SetDefault("mailbox.dedup_window", "5m")
	l.v.SetDefault("mailbox.visibility_timeout", "60s")
	l.v.SetDefault("mailbox.max_receives", 3)
	l.v.SetDefault("mailbox.poll_interval", "200ms")
	l.v.SetDefault("mailbox.batch_size", 10)

	l.v.SetDefault("dispatch.serialize", false)

	l.v.SetDefault("server.addr", "127.0.0.1:8080")
	l.v.SetDefault("server.read_timeout", "15s")
	l.v.SetDefault("server.write_timeout", "30s")
	l.v.SetDefault("server.shutdown_timeout", "10s")
	l.v.SetDefault("server.cors.allowed_origins", []string{})
}

// Watch re-reads the config file whenever it changes and hands the new
// configuration to onChange. Files that fail to unmarshal are reported
// through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config, fsnotify.Event), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.unmarshal()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg, e)
	})
	l.v.WatchConfig()
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
