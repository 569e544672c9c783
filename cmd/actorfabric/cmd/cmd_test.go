package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/actors/counter"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/memory"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/api"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/events"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/logging"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/testutil"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

// testCommand returns a bare command carrying a context and capturing output.
func testCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetContext(context.Background())
	return c, &buf
}

// resetGlobals isolates tests from flag values and viper state left behind
// by other tests.
func resetGlobals(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile, serverURL = "", ""
	noColor = true
	sendDedupID, sendCoalesce, sendWindow, stateJSON = "", false, 0, false
	callSource, callWait = "cli", 0
	initForce, initUser, initNames = false, false, config.RuntimeConfig{}
	t.Cleanup(func() {
		viper.Reset()
		cfgFile, serverURL = "", ""
	})
}

const runtimeYAML = `runtime:
  queue: mailbox
  table: actors
  workflow_table: workflows
  locks_table: locks
  bus_name: fabric
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	return testutil.TempFile(t, "", "fabric.yaml", body)
}

// startAPI serves the counter actor over an in-memory runtime and points
// the client commands at it.
func startAPI(t *testing.T) (*durable.Runtime, *memory.Queue) {
	t.Helper()
	bus := events.New(16)
	t.Cleanup(bus.Close)

	backends := memory.NewBackends(bus)
	rt, err := durable.NewRuntime(backends, durable.Options{HolderToken: "cli-test", BusName: "fabric"})
	require.NoError(t, err)

	router := durable.NewRouter()
	router.Default(counter.New(rt))

	ts := httptest.NewServer(api.NewServer(rt, router).Handler())
	t.Cleanup(ts.Close)
	serverURL = ts.URL + "/"

	return rt, backends.Queue.(*memory.Queue)
}

func TestExecute(t *testing.T) {
	resetGlobals(t)
	rootCmd.SetArgs([]string{"--help"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, Execute())
	for _, name := range []string{"serve", "invoke", "send", "signal", "alarm", "state", "call", "workflow", "migrate", "init", "doctor", "version"} {
		assert.Contains(t, buf.String(), name)
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2026-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	assert.Contains(t, out, "actorfabric v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2026-01-15")
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    durable.Payload
		wantErr bool
	}{
		{"empty", "", durable.Payload{}, false},
		{"blank", "   ", durable.Payload{}, false},
		{"null", "null", durable.Payload{}, false},
		{"object", `{"action":"increment"}`, durable.Payload{"action": "increment"}, false},
		{"number kept exact", `{"amount":5}`, durable.Payload{"amount": json.Number("5")}, false},
		{"array", `[1,2]`, nil, true},
		{"garbage", `{oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePayload(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBackendOptions(t *testing.T) {
	cfg := &config.Config{
		Runtime: config.RuntimeConfig{Queue: "q", Table: "t", WorkflowTable: "w", LocksTable: "l", BusName: "b"},
		Backend: config.BackendConfig{Driver: "postgres", DSN: "postgres://x", MaxOpenConns: 4},
		Mailbox: config.MailboxConfig{DedupWindow: time.Minute, MaxReceives: 7},
	}

	opts := backendOptions(cfg)
	assert.Equal(t, "postgres", opts.Driver)
	assert.Equal(t, "q", opts.Names.Queue)
	assert.Equal(t, "t", opts.Names.Actors)
	assert.Equal(t, "w", opts.Names.Workflows)
	assert.Equal(t, "l", opts.Names.Locks)
	assert.Equal(t, time.Minute, opts.DedupWindow)
	assert.Equal(t, 7, opts.MaxReceives)
	assert.Equal(t, 4, opts.Pool.MaxOpenConns)
	assert.Positive(t, opts.Pool.MaxIdleConns, "unset pool fields keep their defaults")
}

func TestAPIBaseURL(t *testing.T) {
	resetGlobals(t)

	serverURL = "http://example:9000/"
	got, err := apiBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://example:9000", got)

	serverURL = ""
	cfgFile = writeConfig(t, "server:\n  addr: 127.0.0.1:9999\n")
	got, err = apiBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", got)
}

func TestInvokeAndState(t *testing.T) {
	resetGlobals(t)
	startAPI(t)

	c, buf := testCommand()
	require.NoError(t, runInvoke(c, []string{"c1", `{"action":"increment","amount":2}`}))
	assert.JSONEq(t, `{"count":2,"actorId":"c1","incremented":2}`, buf.String())

	c, buf = testCommand()
	require.NoError(t, runState(c, []string{"c1"}))
	testutil.NewGolden(t, "testdata").AssertString("state", testutil.ScrubAll(buf.String(), ""))

	stateJSON = true
	c, buf = testCommand()
	require.NoError(t, runState(c, []string{"c1"}))
	var st api.StateResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &st))
	assert.Equal(t, int64(1), st.Version)
}

func TestInvoke_BadPayload(t *testing.T) {
	resetGlobals(t)
	serverURL = "http://127.0.0.1:1"

	c, _ := testCommand()
	err := runInvoke(c, []string{"c1", "{bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON object")
}

func TestSend(t *testing.T) {
	resetGlobals(t)
	rt, queue := startAPI(t)

	sendDedupID = "only-once"
	for i := 0; i < 2; i++ {
		c, buf := testCommand()
		require.NoError(t, runSend(c, []string{"c1", `{"action":"increment"}`}))
		assert.Contains(t, buf.String(), "queued event")
	}
	assert.Equal(t, 1, queue.Len())

	sendDedupID = ""
	sendCoalesce = true
	sendWindow = time.Second
	c, buf := testCommand()
	require.NoError(t, runSend(c, []string{"c2", `{"action":"increment"}`}))
	assert.Contains(t, buf.String(), "queued in batch")

	require.NoError(t, rt.Close(context.Background()))
	assert.Equal(t, 2, queue.Len())
}

func TestSend_CoalesceRejectsDedupID(t *testing.T) {
	resetGlobals(t)
	sendCoalesce = true
	sendDedupID = "x"

	c, _ := testCommand()
	assert.Error(t, runSend(c, []string{"c1"}))
}

func TestSignalAndAlarm(t *testing.T) {
	resetGlobals(t)
	startAPI(t)

	c, buf := testCommand()
	require.NoError(t, runSignal(c, []string{"c1", "Adjust", `{"action":"set","amount":3}`}))
	assert.Contains(t, buf.String(), "signal Adjust sent to c1")

	c, buf = testCommand()
	require.NoError(t, runAlarm(c, []string{"c1", "reset", "1h"}))
	assert.Contains(t, buf.String(), "alarm reset fires at")

	c, _ = testCommand()
	err := runAlarm(c, []string{"c1", "reset", "later"})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeDurationParse))
}

func TestCallAndWorkflow(t *testing.T) {
	resetGlobals(t)
	rt, _ := startAPI(t)

	c, buf := testCommand()
	require.NoError(t, runCall(c, []string{"c1", `{"action":"increment"}`}))
	var wf durable.Workflow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &wf))
	assert.Equal(t, core.WorkflowStatusPending, wf.Status)

	require.NoError(t, rt.Resolve(context.Background(), wf.WorkflowID, durable.Payload{"count": 1}))

	c, buf = testCommand()
	require.NoError(t, runWorkflow(c, []string{wf.WorkflowID}))
	var resolved durable.Workflow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resolved))
	assert.Equal(t, core.WorkflowStatusResolved, resolved.Status)

	c, _ = testCommand()
	err := runWorkflow(c, []string{"missing"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, core.CodeNotFound, apiErr.Code)
}

func TestCall_WaitTimesOutWithPendingRecord(t *testing.T) {
	resetGlobals(t)
	startAPI(t)
	callWait = 300 * time.Millisecond

	c, buf := testCommand()
	require.NoError(t, runCall(c, []string{"c1"}))
	var wf durable.Workflow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &wf))
	assert.Equal(t, core.WorkflowStatusPending, wf.Status)
}

func TestInit(t *testing.T) {
	resetGlobals(t)
	t.Chdir(t.TempDir())

	initNames = config.RuntimeConfig{Queue: "q", Table: "t", WorkflowTable: "w", LocksTable: "l", BusName: "b"}
	c, buf := testCommand()
	require.NoError(t, runInit(c, nil))
	assert.Contains(t, buf.String(), config.ProjectConfigFile)

	data, err := os.ReadFile(config.ProjectConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bus_name: b")
	assert.Contains(t, string(data), "# actorfabric configuration")

	c, _ = testCommand()
	err = runInit(c, nil)
	require.ErrorIs(t, err, config.ErrConfigExists)

	initForce = true
	c, _ = testCommand()
	assert.NoError(t, runInit(c, nil))
}

func TestMigrate(t *testing.T) {
	resetGlobals(t)
	dsn := filepath.Join(t.TempDir(), "fabric.db")
	cfgFile = writeConfig(t, "backend:\n  driver: sqlite\n  dsn: "+dsn+"\n")

	c, buf := testCommand()
	require.NoError(t, runMigrate(c, nil))
	assert.Contains(t, buf.String(), "sqlite schema at version 2")

	cfgFile = writeConfig(t, "backend:\n  driver: memory\n")
	c, buf = testCommand()
	require.NoError(t, runMigrate(c, nil))
	assert.Contains(t, buf.String(), "memory backend has no schema")
}

func TestDoctor(t *testing.T) {
	resetGlobals(t)

	cfgFile = writeConfig(t, runtimeYAML+"backend:\n  driver: memory\n")
	c, buf := testCommand()
	require.NoError(t, runDoctor(c, nil))
	out := buf.String()
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "memory backend reachable")
	assert.Contains(t, out, "All checks passed")

	cfgFile = writeConfig(t, "backend:\n  driver: memory\n")
	c, buf = testCommand()
	require.Error(t, runDoctor(c, nil))
	assert.Contains(t, buf.String(), config.EnvQueue)
}

func TestApp_ProcessesMailbox(t *testing.T) {
	resetGlobals(t)
	cfgFile = writeConfig(t, runtimeYAML+`backend:
  driver: memory
mailbox:
  poll_interval: 10ms
server:
  addr: 127.0.0.1:0
`)
	cfg, _, err := loadConfig()
	require.NoError(t, err)
	require.NoError(t, config.ValidateConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logging.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	_, err = a.runtime.Send(ctx, "c1", durable.Payload{"action": "increment", "amount": 4}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := a.runtime.Load(ctx, "c1")
		return err == nil && st.Version == 1
	}, 3*time.Second, 20*time.Millisecond)

	st, err := a.runtime.Load(ctx, "c1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":4}`, string(st.Data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.NoError(t, a.close(context.Background()))
}

func TestDiskPath(t *testing.T) {
	tests := []struct {
		backend config.BackendConfig
		want    string
	}{
		{config.BackendConfig{Driver: "sqlite", DSN: "/var/lib/fabric/fabric.db"}, "/var/lib/fabric"},
		{config.BackendConfig{DSN: "data/fabric.db"}, "data"},
		{config.BackendConfig{Driver: "sqlite", DSN: ":memory:"}, ""},
		{config.BackendConfig{Driver: "postgres", DSN: "postgres://x"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, diskPath(&config.Config{Backend: tt.backend}), tt.backend.DSN)
	}
}
