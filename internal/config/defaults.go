package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML contains the starter configuration written by
// `actorfabric init`.
const DefaultConfigYAML = `# actorfabric configuration
#
# Values not specified here use built-in defaults. Every key can be overridden
# with an ACTORFABRIC_<SECTION>_<KEY> environment variable.

# Resource names. All five are required. The bare environment variables
# DURABLE_QUEUE, DURABLE_TABLE, WORKFLOW_TABLE, LOCKS_TABLE and
# DURABLE_BUS_NAME are honoured too.
runtime:
  queue: ""
  table: ""
  workflow_table: ""
  locks_table: ""
  bus_name: ""

log:
  level: info
  # auto | text | json
  format: auto

backend:
  # sqlite | postgres | memory
  driver: sqlite
  dsn: .actorfabric/fabric.db

lock:
  ttl: 30s

workflow:
  # Unresolved calls are forgotten after this long.
  ttl: 300s

mailbox:
  coalesce_window: 10ms
  dedup_window: 5m
  visibility_timeout: 60s
  # Messages received this many times are dead-lettered.
  max_receives: 3
  poll_interval: 200ms
  batch_size: 10

dispatch:
  # Hold the actor lock while an asynchronous invocation runs.
  serialize: false

server:
  addr: 127.0.0.1:8080
  cors:
    allowed_origins: []
`

// ErrConfigExists is returned by WriteStarter when the target exists.
var ErrConfigExists = errors.New("config file already exists")

// StarterYAML renders DefaultConfigYAML with the runtime names filled in.
// Comments are preserved.
func StarterYAML(rt RuntimeConfig) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML), &doc); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}

	runtime := mappingValue(doc.Content[0], "runtime")
	if runtime == nil {
		return nil, fmt.Errorf("default config has no runtime section")
	}
	for key, value := range map[string]string{
		"queue":          rt.Queue,
		"table":          rt.Table,
		"workflow_table": rt.WorkflowTable,
		"locks_table":    rt.LocksTable,
		"bus_name":       rt.BusName,
	} {
		if value == "" {
			continue
		}
		if node := mappingValue(runtime, key); node != nil {
			node.Value = value
			node.Style = 0
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteStarter writes a starter config to path. An existing file is only
// replaced when force is set.
func WriteStarter(path string, rt RuntimeConfig, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		}
	}
	data, err := StarterYAML(rt)
	if err != nil {
		return err
	}
	if err := AtomicWrite(path, data); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
