// Package lifecycle decides when the subsystem runs. Three modes:
// disabled rejects every operation, on-demand starts the subsystem when
// an operation needs it, preload warms it shortly after service start.
// Optional background passes stop an idle or memory-starved subsystem.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ErrDisabled is returned by Gate when the integration is switched off.
var ErrDisabled = fmt.Errorf("subsystem integration is disabled")

// Subsystem is the bridge surface the controller drives.
type Subsystem interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning(ctx context.Context) bool
	IsAvailable(ctx context.Context) bool
}

// Controller owns the operating mode and the background optimize loop.
type Controller struct {
	mode   config.Mode
	cfg    config.LifecycleConfig
	subsys Subsystem
	mem    memoryProbe
	log    *logging.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	preload      *time.Timer

	done chan struct{}
	once sync.Once
}

// NewController creates a controller; Run starts its background work.
func NewController(subsys Subsystem, cfg config.LifecycleConfig, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.NewNop()
	}
	c := &Controller{
		mode:   config.ParseMode(cfg.Mode),
		cfg:    cfg,
		subsys: subsys,
		mem:    procfsMemory{},
		log:    log.Named("lifecycle"),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	c.lastActivity = c.now()
	return c
}

// Mode returns the configured operating mode.
func (c *Controller) Mode() config.Mode {
	return c.mode
}

// Run schedules the preload (when configured) and drives the periodic
// optimize pass until ctx ends or Close is called.
func (c *Controller) Run(ctx context.Context) {
	if c.mode == config.ModePreload && c.cfg.AutoStart {
		delay := time.Duration(c.cfg.PreloadDelaySec) * time.Second
		c.mu.Lock()
		c.preload = time.AfterFunc(delay, func() {
			pctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if !c.subsys.IsAvailable(pctx) {
				c.log.Debug("preload skipped, subsystem not installed")
				return
			}
			if err := c.subsys.Start(pctx); err != nil {
				c.log.Warn("preload start failed", zap.Error(err))
			}
		})
		c.mu.Unlock()
		c.log.Info("preload scheduled", zap.Duration("delay", delay))
	}

	if !c.cfg.IdleStopEnabled && !c.cfg.LowMemoryEnabled {
		return
	}
	interval := time.Duration(c.cfg.CheckIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.optimize(ctx)
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}()
}

// Close cancels the preload timer and the optimize loop.
func (c *Controller) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.preload != nil {
			c.preload.Stop()
		}
		c.mu.Unlock()
	})
}

// Gate rejects operations in disabled mode; every gated entry point
// calls it before touching the subsystem.
func (c *Controller) Gate() error {
	if c.mode == config.ModeDisabled {
		return ErrDisabled
	}
	return nil
}

// EnsureStarted brings the subsystem up for an operation that needs it,
// honoring the mode and the auto-start switch.
func (c *Controller) EnsureStarted(ctx context.Context) error {
	if err := c.Gate(); err != nil {
		return err
	}
	if c.subsys.IsRunning(ctx) {
		return nil
	}
	if !c.cfg.AutoStart {
		return fmt.Errorf("subsystem is not running and auto-start is off")
	}
	return c.subsys.Start(ctx)
}

// MarkActivity resets the idle clock. Called on every successful
// user-visible operation.
func (c *Controller) MarkActivity() {
	c.mu.Lock()
	c.lastActivity = c.now()
	c.mu.Unlock()
}

// IdleFor returns the time since the last recorded activity.
func (c *Controller) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastActivity)
}

// optimize stops a running subsystem that has idled past the threshold
// or when the host runs low on memory. One stop per pass.
func (c *Controller) optimize(ctx context.Context) {
	if !c.subsys.IsRunning(ctx) {
		return
	}

	if c.cfg.IdleStopEnabled {
		idle := c.IdleFor()
		if idle >= time.Duration(c.cfg.IdleTimeoutMin)*time.Minute {
			c.log.Info("stopping idle subsystem", zap.Duration("idle", idle))
			if err := c.subsys.Stop(ctx); err != nil {
				c.log.Warn("idle stop failed", zap.Error(err))
			}
			return
		}
	}

	if c.cfg.LowMemoryEnabled {
		if avail, ok := c.mem.availableMB(); ok && avail < c.cfg.LowMemoryMB {
			c.log.Info("stopping subsystem under memory pressure",
				zap.Int("available_mb", avail),
				zap.Int("threshold_mb", c.cfg.LowMemoryMB))
			if err := c.subsys.Stop(ctx); err != nil {
				c.log.Warn("low-memory stop failed", zap.Error(err))
			}
		}
	}
}
