// Package testutil holds fakes and helpers shared by package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
)

// MockInvoker records invocations and answers them with a canned result.
type MockInvoker struct {
	mu         sync.Mutex
	calls      []MockCall
	result     core.Payload
	err        error
	invokeFunc func(context.Context, core.Invocation) (core.Payload, error)
}

// MockCall records one invocation.
type MockCall struct {
	Invocation core.Invocation
	Timestamp  time.Time
}

// NewMockInvoker returns an invoker answering {"ok": true}.
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{result: core.Payload{"ok": true}}
}

// Invoke records inv, runs the configured func if any, and returns the
// canned result.
func (m *MockInvoker) Invoke(ctx context.Context, inv core.Invocation) (core.Payload, error) {
	m.mu.Lock()
	fn := m.invokeFunc
	m.mu.Unlock()

	if fn != nil {
		out, err := fn(ctx, inv)
		m.record(inv)
		return out, err
	}

	m.record(inv)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.err
}

// WithInvokeFunc replaces the canned answer with fn. fn runs before the call
// is recorded.
func (m *MockInvoker) WithInvokeFunc(fn func(context.Context, core.Invocation) (core.Payload, error)) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeFunc = fn
	return m
}

// WithError makes every invocation fail with err.
func (m *MockInvoker) WithError(err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithResult sets the canned result.
func (m *MockInvoker) WithResult(p core.Payload) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = p
	return m
}

// Invocations returns the recorded invocations in call order.
func (m *MockInvoker) Invocations() []core.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Invocation, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Invocation
	}
	return out
}

// CallCount returns how many invocations targeted actorID. An empty id
// counts all of them.
func (m *MockInvoker) CallCount(actorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if actorID == "" {
		return len(m.calls)
	}
	n := 0
	for _, c := range m.calls {
		if c.Invocation.ActorID == actorID {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *MockInvoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockInvoker) record(inv core.Invocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Invocation: inv, Timestamp: time.Now()})
}
