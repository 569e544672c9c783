package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Runtime  RuntimeConfig  `mapstructure:"runtime" yaml:"runtime"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Lock     LockConfig     `mapstructure:"lock" yaml:"lock"`
	Workflow WorkflowConfig `mapstructure:"workflow" yaml:"workflow"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"`
	AddSource bool   `mapstructure:"add_source" yaml:"add_source"`
}

// RuntimeConfig names the resources the runtime binds to. Every field is
// required; each one can also be supplied through its bare environment
// variable (DURABLE_QUEUE, DURABLE_TABLE, WORKFLOW_TABLE, LOCKS_TABLE,
// DURABLE_BUS_NAME).
type RuntimeConfig struct {
	Queue         string `mapstructure:"queue" yaml:"queue"`
	Table         string `mapstructure:"table" yaml:"table"`
	WorkflowTable string `mapstructure:"workflow_table" yaml:"workflow_table"`
	LocksTable    string `mapstructure:"locks_table" yaml:"locks_table"`
	BusName       string `mapstructure:"bus_name" yaml:"bus_name"`

	// HolderToken identifies this process as a lock holder. Generated when empty.
	HolderToken string `mapstructure:"holder_token" yaml:"holder_token,omitempty"`
}

// BackendConfig selects the storage driver.
type BackendConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime,omitempty"`
}

// LockConfig configures actor leases.
type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// WorkflowConfig configures call correlation records.
type WorkflowConfig struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// MailboxConfig configures the queue and the coalescing buffer.
type MailboxConfig struct {
	CoalesceWindow    time.Duration `mapstructure:"coalesce_window" yaml:"coalesce_window"`
	DedupWindow       time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" yaml:"visibility_timeout"`
	MaxReceives       int           `mapstructure:"max_receives" yaml:"max_receives"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size"`
}

// DispatchConfig configures the consumers.
type DispatchConfig struct {
	// Serialize holds the actor lock while an asynchronous invocation runs.
	Serialize bool `mapstructure:"serialize" yaml:"serialize"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors" yaml:"cors"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}
