package proc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/logging"
)

func newTestRunner(t *testing.T) *ExecRunner {
	t.Helper()
	return NewRunner(logging.NewNop())
}

func TestExecuteCapturesStreams(t *testing.T) {
	r := newTestRunner(t)

	res := r.Execute(context.Background(), "sh", []string{"-c", "echo out; echo err >&2"}, 5*time.Second)

	if !res.Success() {
		t.Fatalf("expected success, got exit=%d stderr=%q", res.ExitCode, res.Stderr)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	r := newTestRunner(t)

	res := r.Execute(context.Background(), "sh", []string{"-c", "exit 7"}, 5*time.Second)

	if res.Success() {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("non-timeout failure flagged as timeout")
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := newTestRunner(t)

	start := time.Now()
	res := r.Execute(context.Background(), "sleep", []string{"5"}, 100*time.Millisecond)

	if !res.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 on timeout", res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("process not killed promptly, waited %v", elapsed)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	r := newTestRunner(t)

	res := r.Execute(context.Background(), "/nonexistent/tool", nil, time.Second)

	if res.Success() {
		t.Fatal("expected failure")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", res.ExitCode)
	}
	if res.Stderr == "" {
		t.Error("spawn failure reason missing from stderr")
	}
}

func TestExecuteEmptyCommand(t *testing.T) {
	r := newTestRunner(t)

	res := r.Execute(context.Background(), "", nil, time.Second)
	if res.Success() {
		t.Fatal("empty command must fail")
	}
}

func TestExecuteInWorkDir(t *testing.T) {
	r := newTestRunner(t)
	dir := t.TempDir()

	res := r.ExecuteIn(context.Background(), dir, "pwd", nil, 5*time.Second)

	if !res.Success() {
		t.Fatalf("pwd failed: %q", res.Stderr)
	}
	got := strings.TrimSpace(res.Stdout)
	want, _ := filepath.EvalSymlinks(dir)
	if got != dir && got != want {
		t.Errorf("workdir = %q, want %q", got, dir)
	}
}

func TestExecuteWithRetryStopsOnSuccess(t *testing.T) {
	r := newTestRunner(t)
	marker := filepath.Join(t.TempDir(), "calls")

	// Fails once, then succeeds.
	script := "echo x >> " + marker + "; [ $(wc -l < " + marker + ") -ge 2 ]"
	res := r.ExecuteWithRetry(context.Background(), "sh", []string{"-c", script}, 5, 10*time.Millisecond, 5*time.Second)

	if !res.Success() {
		t.Fatalf("expected eventual success, got exit=%d", res.ExitCode)
	}
	if n := countLines(t, marker); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	r := newTestRunner(t)
	marker := filepath.Join(t.TempDir(), "calls")

	start := time.Now()
	res := r.ExecuteWithRetry(context.Background(), "sh", []string{"-c", "echo x >> " + marker + "; exit 1"}, 3, 10*time.Millisecond, 5*time.Second)
	elapsed := time.Since(start)

	if res.Success() {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 1 {
		t.Errorf("last result exit = %d, want 1", res.ExitCode)
	}
	if n := countLines(t, marker); n != 4 {
		t.Errorf("maxRetries=3 must yield exactly 4 attempts, got %d", n)
	}
	// Delays double: 10ms + 20ms + 40ms between the four attempts.
	if elapsed < 70*time.Millisecond {
		t.Errorf("backoff too short: %v", elapsed)
	}
}

func TestExecuteWithRetryHonorsCancellation(t *testing.T) {
	r := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	marker := filepath.Join(t.TempDir(), "calls")
	r.ExecuteWithRetry(ctx, "sh", []string{"-c", "echo x >> " + marker + "; exit 1"}, 10, time.Hour, 5*time.Second)

	if n := countLines(t, marker); n > 1 {
		t.Errorf("cancelled context must stop retries, got %d attempts", n)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}
