package exec

import (
	"context"
	"testing"
)

func TestMockExecutor_ExactMatch(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddExactMatch("handoff-ui", []string{"--version"}, MockResponse{
		Stdout: []byte("handoff-ui 1.0.0\n"),
	})

	out, err := mock.Output(context.Background(), "handoff-ui", "--version")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if string(out) != "handoff-ui 1.0.0\n" {
		t.Errorf("Output = %q", out)
	}
}

func TestMockExecutor_Unmatched(t *testing.T) {
	mock := NewMockExecutor()

	if _, err := mock.Output(context.Background(), "no-such-tool"); err == nil {
		t.Error("unmatched command should return an error")
	}
}

func TestMockExecutor_RecordsCalls(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddExactMatch("kill", []string{"-0", "42"}, MockResponse{})

	mock.Run(context.Background(), "kill", "-0", "42")
	mock.Run(context.Background(), "kill", "-0", "43")

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("recorded %d calls, want 2", len(calls))
	}
	if calls[0].Name != "kill" || calls[0].Args[1] != "42" {
		t.Errorf("first call = %+v", calls[0])
	}
}

func TestRealExecutor_Run(t *testing.T) {
	real := NewRealExecutor()
	stdout, _, err := real.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(stdout) != "hello\n" {
		t.Errorf("stdout = %q", stdout)
	}
}
