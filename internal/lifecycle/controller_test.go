package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
)

type fakeSubsystem struct {
	mu        sync.Mutex
	running   bool
	available bool
	starts    int
	stops     int
	startErr  error
}

func (f *fakeSubsystem) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeSubsystem) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeSubsystem) IsRunning(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSubsystem) IsAvailable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

type fakeMemory struct {
	mb int
	ok bool
}

func (f fakeMemory) availableMB() (int, bool) { return f.mb, f.ok }

func newTestController(subsys *fakeSubsystem, cfg config.LifecycleConfig) *Controller {
	return NewController(subsys, cfg, logging.NewNop())
}

func TestGateDisabledMode(t *testing.T) {
	c := newTestController(&fakeSubsystem{}, config.LifecycleConfig{Mode: "disabled"})

	if err := c.Gate(); !errors.Is(err, ErrDisabled) {
		t.Errorf("Gate = %v, want ErrDisabled", err)
	}
	if err := c.EnsureStarted(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("EnsureStarted = %v, want ErrDisabled", err)
	}
}

func TestGateOnDemand(t *testing.T) {
	c := newTestController(&fakeSubsystem{}, config.LifecycleConfig{Mode: "on-demand"})
	if err := c.Gate(); err != nil {
		t.Errorf("Gate = %v, want nil", err)
	}
}

func TestEnsureStartedStartsOnce(t *testing.T) {
	subsys := &fakeSubsystem{available: true}
	c := newTestController(subsys, config.LifecycleConfig{Mode: "on-demand", AutoStart: true})

	for i := 0; i < 3; i++ {
		if err := c.EnsureStarted(context.Background()); err != nil {
			t.Fatalf("EnsureStarted: %v", err)
		}
	}
	if subsys.starts != 1 {
		t.Errorf("starts = %d, want 1", subsys.starts)
	}
}

func TestEnsureStartedWithoutAutoStart(t *testing.T) {
	subsys := &fakeSubsystem{available: true}
	c := newTestController(subsys, config.LifecycleConfig{Mode: "on-demand", AutoStart: false})

	if err := c.EnsureStarted(context.Background()); err == nil {
		t.Fatal("expected error with auto-start off")
	}
	if subsys.starts != 0 {
		t.Errorf("starts = %d, want 0", subsys.starts)
	}
}

func TestPreloadStartsAfterDelay(t *testing.T) {
	subsys := &fakeSubsystem{available: true}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "preload", AutoStart: true, PreloadDelaySec: 0,
	})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if subsys.IsRunning(ctx) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("preload never started the subsystem")
}

func TestPreloadSkipsAbsentSubsystem(t *testing.T) {
	subsys := &fakeSubsystem{available: false}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "preload", AutoStart: true, PreloadDelaySec: 0,
	})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if subsys.starts != 0 {
		t.Errorf("absent subsystem must not be started, starts = %d", subsys.starts)
	}
}

func TestOptimizeStopsIdleSubsystem(t *testing.T) {
	subsys := &fakeSubsystem{available: true, running: true}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "on-demand", IdleStopEnabled: true, IdleTimeoutMin: 20,
	})

	current := time.Unix(10000, 0)
	c.now = func() time.Time { return current }
	c.MarkActivity()

	current = current.Add(19 * time.Minute)
	c.optimize(context.Background())
	if subsys.stops != 0 {
		t.Fatal("subsystem stopped before the idle threshold")
	}

	current = current.Add(2 * time.Minute)
	c.optimize(context.Background())
	if subsys.stops != 1 {
		t.Errorf("stops = %d, want 1 after idle threshold", subsys.stops)
	}
}

func TestMarkActivityResetsIdleClock(t *testing.T) {
	subsys := &fakeSubsystem{running: true}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "on-demand", IdleStopEnabled: true, IdleTimeoutMin: 20,
	})

	current := time.Unix(10000, 0)
	c.now = func() time.Time { return current }
	c.MarkActivity()

	current = current.Add(19 * time.Minute)
	c.MarkActivity()
	current = current.Add(19 * time.Minute)
	c.optimize(context.Background())

	if subsys.stops != 0 {
		t.Error("activity must reset the idle clock")
	}
}

func TestOptimizeStopsOnLowMemory(t *testing.T) {
	subsys := &fakeSubsystem{running: true}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "on-demand", LowMemoryEnabled: true, LowMemoryMB: 1024,
	})
	c.mem = fakeMemory{mb: 512, ok: true}

	c.optimize(context.Background())
	if subsys.stops != 1 {
		t.Errorf("stops = %d, want 1 under memory pressure", subsys.stops)
	}
}

func TestOptimizeIgnoresUnreadableMemory(t *testing.T) {
	subsys := &fakeSubsystem{running: true}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "on-demand", LowMemoryEnabled: true, LowMemoryMB: 1024,
	})
	c.mem = fakeMemory{ok: false}

	c.optimize(context.Background())
	if subsys.stops != 0 {
		t.Error("unreadable meminfo must not trigger a stop")
	}
}

func TestOptimizeNoopWhenStopped(t *testing.T) {
	subsys := &fakeSubsystem{running: false}
	c := newTestController(subsys, config.LifecycleConfig{
		Mode: "on-demand", IdleStopEnabled: true, IdleTimeoutMin: 0,
	})

	c.optimize(context.Background())
	if subsys.stops != 0 {
		t.Error("stopped subsystem must not be stopped again")
	}
}
