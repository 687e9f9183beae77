// Package proctest provides a scripted Runner for tests of components
// that drive external tools.
package proctest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/droiddeck/backend/internal/proc"
)

// Call records one invocation observed by the fake.
type Call struct {
	Command string
	Args    []string
}

func (c Call) String() string {
	return c.Command + " " + strings.Join(c.Args, " ")
}

// Rule scripts the result for invocations whose "command arg arg ..."
// line contains Match.
type Rule struct {
	Match  string
	Result proc.Result
}

// Fake is a Runner that replays scripted results and records every call.
// Rules are checked in order; the first match wins. Unmatched calls
// succeed with empty output unless DefaultResult is set.
type Fake struct {
	mu            sync.Mutex
	rules         []Rule
	calls         []Call
	paths         map[string]string
	DefaultResult *proc.Result
}

// NewFake creates a fake that resolves every tool to itself.
func NewFake() *Fake {
	return &Fake{paths: make(map[string]string)}
}

// On appends a rule: any invocation whose command line contains match
// returns the given result.
func (f *Fake) On(match string, result proc.Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, Rule{Match: match, Result: result})
	return f
}

// OnSuccess scripts a zero-exit result with the given stdout.
func (f *Fake) OnSuccess(match, stdout string) *Fake {
	return f.On(match, proc.Result{ExitCode: 0, Stdout: stdout})
}

// OnFailure scripts a non-zero result with the given stderr.
func (f *Fake) OnFailure(match string, exitCode int, stderr string) *Fake {
	return f.On(match, proc.Result{ExitCode: exitCode, Stderr: stderr})
}

// WithoutTool makes ResolvePath fail for the named command.
func (f *Fake) WithoutTool(command string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[command] = ""
	return f
}

// Execute implements proc.Runner.
func (f *Fake) Execute(ctx context.Context, command string, args []string, timeout time.Duration) proc.Result {
	return f.record(command, args)
}

// ExecuteIn implements proc.Runner; the working directory is ignored.
func (f *Fake) ExecuteIn(ctx context.Context, workDir, command string, args []string, timeout time.Duration) proc.Result {
	return f.record(command, args)
}

// ExecuteWithRetry implements proc.Runner. Each retry attempt is
// recorded as its own call so tests can assert attempt counts.
func (f *Fake) ExecuteWithRetry(ctx context.Context, command string, args []string, maxRetries int, baseDelay, timeout time.Duration) proc.Result {
	result := f.record(command, args)
	for attempt := 0; attempt < maxRetries && !result.Success(); attempt++ {
		result = f.record(command, args)
	}
	return result
}

// ResolvePath implements proc.Runner.
func (f *Fake) ResolvePath(command string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path, ok := f.paths[command]; ok {
		return path, path != ""
	}
	return command, true
}

// Calls returns a copy of every recorded invocation.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many recorded invocations contain match.
func (f *Fake) CallCount(match string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.String(), match) {
			n++
		}
	}
	return n
}

func (f *Fake) record(command string, args []string) proc.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Command: command, Args: append([]string(nil), args...)}
	f.calls = append(f.calls, call)

	line := call.String()
	for _, rule := range f.rules {
		if strings.Contains(line, rule.Match) {
			result := rule.Result
			result.Command = command
			result.Args = call.Args
			result.StartedAt = time.Now()
			return result
		}
	}
	if f.DefaultResult != nil {
		result := *f.DefaultResult
		result.Command = command
		result.Args = call.Args
		return result
	}
	return proc.Result{Command: command, Args: call.Args, ExitCode: 0, StartedAt: time.Now()}
}
