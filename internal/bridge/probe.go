package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/droiddeck/backend/internal/proc"
	"github.com/prometheus/procfs"
)

// processProbe reports whether a process with the given executable name
// is running. Injectable so tests do not depend on host processes.
type processProbe interface {
	exists(ctx context.Context, name string) bool
}

// procfsProbe scans /proc, falling back to pgrep on hosts without a
// readable procfs.
type procfsProbe struct {
	runner proc.Runner
}

func (p *procfsProbe) exists(ctx context.Context, name string) bool {
	if found, ok := p.scanProcfs(name); ok {
		return found
	}
	res := p.runner.Execute(ctx, "pgrep", []string{"-x", name}, 5*time.Second)
	return res.Success() && strings.TrimSpace(res.Stdout) != ""
}

func (p *procfsProbe) scanProcfs(name string) (found, ok bool) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return false, false
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return false, false
	}

	// The kernel truncates comm to 15 bytes.
	want := name
	if len(want) > 15 {
		want = want[:15]
	}
	for _, pr := range procs {
		comm, err := pr.Comm()
		if err != nil {
			continue
		}
		if comm == want {
			return true, true
		}
	}
	return false, true
}
