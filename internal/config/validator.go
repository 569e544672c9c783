package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Code    string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration. The returned error is a
// configuration DomainError whose cause is the collected ValidationErrors;
// the first missing required setting, if any, names the error.
func (v *Validator) Validate(cfg *Config) error {
	v.validateRuntime(&cfg.Runtime)
	v.validateLog(&cfg.Log)
	v.validateBackend(&cfg.Backend)
	v.validateTimeouts(cfg)
	v.validateMailbox(&cfg.Mailbox)
	v.validateServer(&cfg.Server)

	if len(v.errors) == 0 {
		return nil
	}
	first := v.errors[0]
	return core.ErrConfiguration(first.Code, first.Field, first.Message).WithCause(v.errors)
}

// ValidateBackend checks only the sections needed to open storage, for
// commands such as migrate that do not start the runtime.
func (v *Validator) ValidateBackend(cfg *Config) error {
	v.validateBackend(&cfg.Backend)
	if len(v.errors) == 0 {
		return nil
	}
	first := v.errors[0]
	return core.ErrConfiguration(first.Code, first.Field, first.Message).WithCause(v.errors)
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
		Code:    core.CodeInvalidSetting,
	})
}

func (v *Validator) addMissing(field string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: "required setting is not set",
		Code:    core.CodeMissingSetting,
	})
}

func (v *Validator) validateRuntime(cfg *RuntimeConfig) {
	for _, req := range []struct {
		env   string
		value string
	}{
		{EnvQueue, cfg.Queue},
		{EnvTable, cfg.Table},
		{EnvWorkflowTable, cfg.WorkflowTable},
		{EnvLocksTable, cfg.LocksTable},
		{EnvBusName, cfg.BusName},
	} {
		if strings.TrimSpace(req.value) == "" {
			v.addMissing(req.env)
		}
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if !logging.ValidLevel(cfg.Level) {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateBackend(cfg *BackendConfig) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		if cfg.DSN == "" {
			v.addError("backend.dsn", cfg.DSN, "database path required")
		} else if !isValidPath(cfg.DSN) {
			v.addError("backend.dsn", cfg.DSN, "invalid database path")
		}
	case "postgres":
		if cfg.DSN == "" {
			v.addError("backend.dsn", cfg.DSN, "connection string required")
		}
	case "memory":
	default:
		v.addError("backend.driver", cfg.Driver, "must be one of: sqlite, postgres, memory")
	}

	if cfg.MaxOpenConns < 0 {
		v.addError("backend.max_open_conns", cfg.MaxOpenConns, "must be non-negative")
	}
}

func (v *Validator) validateTimeouts(cfg *Config) {
	if cfg.Lock.TTL <= 0 {
		v.addError("lock.ttl", cfg.Lock.TTL, "must be positive")
	}
	if cfg.Workflow.TTL <= 0 {
		v.addError("workflow.ttl", cfg.Workflow.TTL, "must be positive")
	}
	// A lease that outlives the visibility timeout lets a redelivered message
	// wait behind its own previous attempt.
	if cfg.Dispatch.Serialize && cfg.Lock.TTL > cfg.Mailbox.VisibilityTimeout {
		v.addError("lock.ttl", cfg.Lock.TTL, "must not exceed mailbox.visibility_timeout when dispatch.serialize is on")
	}
}

func (v *Validator) validateMailbox(cfg *MailboxConfig) {
	if cfg.CoalesceWindow <= 0 {
		v.addError("mailbox.coalesce_window", cfg.CoalesceWindow, "must be positive")
	}
	if cfg.DedupWindow <= 0 {
		v.addError("mailbox.dedup_window", cfg.DedupWindow, "must be positive")
	}
	if cfg.VisibilityTimeout <= 0 {
		v.addError("mailbox.visibility_timeout", cfg.VisibilityTimeout, "must be positive")
	}
	if cfg.MaxReceives < 0 {
		v.addError("mailbox.max_receives", cfg.MaxReceives, "must be non-negative")
	}
	if cfg.PollInterval <= 0 {
		v.addError("mailbox.poll_interval", cfg.PollInterval, "must be positive")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 100 {
		v.addError("mailbox.batch_size", cfg.BatchSize, "must be between 1 and 100")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.addError("server.addr", cfg.Addr, "must be host:port")
	}
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			v.addError("server.cors.allowed_origins", origin, "origin must be * or an http(s) URL")
		}
	}
}

func isValidPath(path string) bool {
	if path == ":memory:" {
		return true
	}
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
