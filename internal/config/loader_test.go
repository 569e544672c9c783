package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.Backend.Driver != "sqlite" {
		t.Errorf("Backend.Driver = %q, want sqlite", cfg.Backend.Driver)
	}
	if cfg.Lock.TTL != 30*time.Second {
		t.Errorf("Lock.TTL = %v, want 30s", cfg.Lock.TTL)
	}
	if cfg.Workflow.TTL != 300*time.Second {
		t.Errorf("Workflow.TTL = %v, want 300s", cfg.Workflow.TTL)
	}
	if cfg.Mailbox.CoalesceWindow != 10*time.Millisecond {
		t.Errorf("Mailbox.CoalesceWindow = %v, want 10ms", cfg.Mailbox.CoalesceWindow)
	}
	if cfg.Mailbox.VisibilityTimeout != 60*time.Second {
		t.Errorf("Mailbox.VisibilityTimeout = %v, want 60s", cfg.Mailbox.VisibilityTimeout)
	}
	if cfg.Mailbox.MaxReceives != 3 {
		t.Errorf("Mailbox.MaxReceives = %d, want 3", cfg.Mailbox.MaxReceives)
	}

	// Resource names have no default.
	if cfg.Runtime.Queue != "" || cfg.Runtime.Table != "" || cfg.Runtime.BusName != "" {
		t.Errorf("Runtime = %+v, want empty names", cfg.Runtime)
	}
}

func TestLoader_BareRuntimeEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvQueue, "mailbox.fifo")
	t.Setenv(EnvTable, "durable")
	t.Setenv(EnvWorkflowTable, "workflows")
	t.Setenv(EnvLocksTable, "locks")
	t.Setenv(EnvBusName, "fabric-bus")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := RuntimeConfig{
		Queue:         "mailbox.fifo",
		Table:         "durable",
		WorkflowTable: "workflows",
		LocksTable:    "locks",
		BusName:       "fabric-bus",
	}
	if cfg.Runtime != want {
		t.Errorf("Runtime = %+v, want %+v", cfg.Runtime, want)
	}
}

func TestLoader_PrefixedEnvWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvQueue, "bare.fifo")
	t.Setenv("ACTORFABRIC_RUNTIME_QUEUE", "prefixed.fifo")
	t.Setenv("ACTORFABRIC_LOG_LEVEL", "debug")
	t.Setenv("ACTORFABRIC_MAILBOX_BATCH_SIZE", "25")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Queue != "prefixed.fifo" {
		t.Errorf("Runtime.Queue = %q, want prefixed.fifo", cfg.Runtime.Queue)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Mailbox.BatchSize != 25 {
		t.Errorf("Mailbox.BatchSize = %d, want 25", cfg.Mailbox.BatchSize)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `
runtime:
  queue: file.fifo
  table: file-table
lock:
  ttl: 45s
backend:
  driver: memory
server:
  cors:
    allowed_origins: ["http://localhost:5173"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Queue != "file.fifo" {
		t.Errorf("Runtime.Queue = %q, want file.fifo", cfg.Runtime.Queue)
	}
	if cfg.Lock.TTL != 45*time.Second {
		t.Errorf("Lock.TTL = %v, want 45s", cfg.Lock.TTL)
	}
	if cfg.Backend.Driver != "memory" {
		t.Errorf("Backend.Driver = %q, want memory", cfg.Backend.Driver)
	}
	if len(cfg.Server.CORS.AllowedOrigins) != 1 {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.Server.CORS.AllowedOrigins)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}
}

func TestLoader_ProjectFileDiscovered(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := WriteStarter(filepath.Join(dir, ProjectConfigFile), RuntimeConfig{Queue: "found.fifo"}, false); err != nil {
		t.Fatalf("WriteStarter() error = %v", err)
	}

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runtime.Queue != "found.fifo" {
		t.Errorf("Runtime.Queue = %q, want found.fifo", cfg.Runtime.Queue)
	}
}

func TestLoader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("runtime: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader().WithConfigFile(path).Load(); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestLoader_BadDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACTORFABRIC_LOCK_TTL", "soon")

	if _, err := NewLoader().Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestStarterYAML_FillsRuntime(t *testing.T) {
	data, err := StarterYAML(RuntimeConfig{Queue: "q.fifo", BusName: "bus"})
	if err != nil {
		t.Fatalf("StarterYAML() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "starter.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Runtime.Queue != "q.fifo" || cfg.Runtime.BusName != "bus" {
		t.Errorf("Runtime = %+v", cfg.Runtime)
	}
	if cfg.Runtime.Table != "" {
		t.Errorf("Runtime.Table = %q, want empty", cfg.Runtime.Table)
	}
}

func TestWriteStarter_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigFile)
	if err := WriteStarter(path, RuntimeConfig{}, false); err != nil {
		t.Fatalf("first WriteStarter() error = %v", err)
	}
	if err := WriteStarter(path, RuntimeConfig{}, false); err == nil {
		t.Fatal("expected ErrConfigExists")
	}
	if err := WriteStarter(path, RuntimeConfig{Queue: "x"}, true); err != nil {
		t.Fatalf("forced WriteStarter() error = %v", err)
	}
}
