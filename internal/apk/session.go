package apk

import (
	"context"
	"time"

	"github.com/droiddeck/backend/internal/proc"
)

// Session is the slice of the bridge this package needs: tool access and
// subsystem reachability.
type Session interface {
	Adb(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error)
	Aapt(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error)
	EnsureReachable(ctx context.Context) error
	PlatformVersion(ctx context.Context) string
}
