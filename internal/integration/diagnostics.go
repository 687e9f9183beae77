package integration

import (
	"context"
	"strings"
	"time"
)

// Diagnostics is a point-in-time capture for troubleshooting: the
// composite status, resolved tool locations, and a recent subsystem
// log tail.
type Diagnostics struct {
	Status     Status    `json:"status"`
	AdbPath    string    `json:"adb_path,omitempty"`
	AaptPath   string    `json:"aapt_path,omitempty"`
	AdbVersion string    `json:"adb_version,omitempty"`
	LogTail    []string  `json:"log_tail,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

const logTailLines = "200"

// Diagnostics captures the current state. Tool probes and the log tail
// are best-effort; a subsystem that is down simply yields less.
func (f *Facade) Diagnostics(ctx context.Context) Diagnostics {
	d := Diagnostics{
		Status:     f.Status(ctx),
		CapturedAt: time.Now(),
	}
	d.AdbPath, d.AaptPath = f.bridge.ToolPaths()
	if d.AdbPath != "" {
		if res, err := f.bridge.Adb(ctx, 10*time.Second, "version"); err == nil && res.Success() {
			d.AdbVersion = firstLine(res.Stdout)
		}
	}
	if !d.Status.Connected {
		return d
	}

	res, err := f.bridge.Adb(ctx, 15*time.Second, "logcat", "-d", "-t", logTailLines)
	if err == nil && res.Success() {
		for _, line := range strings.Split(res.Stdout, "\n") {
			if line = strings.TrimRight(line, "\r"); line != "" {
				d.LogTail = append(d.LogTail, line)
			}
		}
	}
	return d
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
