// Package exec provides an abstraction over command execution for testability.
// It allows production code to use real exec.Command while tests
// can inject mock executors that return pre-recorded responses.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
)

// CommandExecutor abstracts command execution for testability.
// Production code uses RealExecutor, while tests use MockExecutor.
type CommandExecutor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

	// Output executes a command and returns stdout, or error with stderr context.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Output executes a command and returns stdout, or error with stderr context.
func (e *RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(name string, args []string) bool

// MockRule defines a matching rule and its response.
type MockRule struct {
	Match    CommandMatcher
	Response MockResponse
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Name string
	Args []string
}

// MockExecutor returns pre-recorded responses for commands.
// Commands are matched in order of rule registration.
type MockExecutor struct {
	mu    sync.RWMutex
	rules []MockRule
	calls []MockCall
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, MockRule{Match: match, Response: response})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(n string, a []string) bool {
		if n != name {
			return false
		}
		if len(a) != len(args) {
			return false
		}
		for i, arg := range args {
			if a[i] != arg {
				return false
			}
		}
		return true
	}, response)
}

// Calls returns the recorded command invocations.
func (e *MockExecutor) Calls() []MockCall {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]MockCall, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *MockExecutor) respond(name string, args []string) MockResponse {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Name: name, Args: args})
	rules := e.rules
	e.mu.Unlock()

	for _, rule := range rules {
		if rule.Match(name, args) {
			return rule.Response
		}
	}
	return MockResponse{Err: &exec.ExitError{}}
}

// Run returns the mocked response for the command.
func (e *MockExecutor) Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error) {
	resp := e.respond(name, args)
	return resp.Stdout, resp.Stderr, resp.Err
}

// Output returns the mocked stdout for the command.
func (e *MockExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	resp := e.respond(name, args)
	return resp.Stdout, resp.Err
}
