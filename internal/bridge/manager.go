// Package bridge manages the debug-bridge connection to the virtual
// Android subsystem: probing whether the subsystem is present and
// running, starting and stopping its client process, and keeping an
// authenticated adb session to its loopback endpoint.
package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/droiddeck/backend/internal/cache"
	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/infrastructure/resilience"
	"github.com/droiddeck/backend/internal/proc"
	"github.com/droiddeck/backend/internal/shared/types"
	"go.uber.org/zap"
)

const (
	availableTTL = 5 * time.Minute
	runningTTL   = 30 * time.Second
	versionTTL   = 30 * time.Minute

	adbTimeout     = 30 * time.Second
	connectRetries = 3
	connectBackoff = 2 * time.Second

	startAttempts = 3
	startWaitUnit = 2 * time.Second
)

// Manager owns subsystem presence probes and the adb session.
type Manager struct {
	runner proc.Runner
	probe  processProbe
	bus    *events.Bus
	cfg    config.BridgeConfig
	subsys config.SubsystemConfig
	log    *logging.Logger
	m      *monitoring.Metrics

	available *cache.Entry[bool]
	running   *cache.Entry[bool]
	version   *cache.Entry[string]

	// Shortened in tests.
	connectWait time.Duration
	startWait   time.Duration
}

// NewManager creates a bridge manager. metrics may be nil.
func NewManager(runner proc.Runner, bus *events.Bus, cfg config.BridgeConfig, subsys config.SubsystemConfig, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		runner:      runner,
		probe:       &procfsProbe{runner: runner},
		bus:         bus,
		cfg:         cfg,
		subsys:      subsys,
		log:         log.Named("bridge"),
		m:           metrics,
		available:   cache.NewEntry[bool](availableTTL),
		running:     cache.NewEntry[bool](runningTTL),
		version:     cache.NewEntry[string](versionTTL),
		connectWait: connectBackoff,
		startWait:   startWaitUnit,
	}
}

// Adb runs the debug-bridge tool with the given arguments. The tool path
// is resolved once and cached by the runner.
func (m *Manager) Adb(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error) {
	path, ok := m.runner.ResolvePath(m.cfg.AdbCommand)
	if !ok {
		return proc.Result{}, fmt.Errorf("debug bridge tool %q not found", m.cfg.AdbCommand)
	}
	return m.runner.Execute(ctx, path, args, timeout), nil
}

// Aapt runs the asset-packaging tool with the given arguments.
func (m *Manager) Aapt(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error) {
	path, ok := m.runner.ResolvePath(m.cfg.AaptCommand)
	if !ok {
		return proc.Result{}, fmt.Errorf("asset tool %q not found", m.cfg.AaptCommand)
	}
	return m.runner.Execute(ctx, path, args, timeout), nil
}

// Endpoint returns the subsystem's loopback adb endpoint.
func (m *Manager) Endpoint() string {
	return m.cfg.Endpoint
}

// ToolPaths reports where the bridge tools resolved to. An empty path
// means the tool is not installed.
func (m *Manager) ToolPaths() (adb string, aapt string) {
	adb, _ = m.runner.ResolvePath(m.cfg.AdbCommand)
	aapt, _ = m.runner.ResolvePath(m.cfg.AaptCommand)
	return adb, aapt
}

// IsAvailable reports whether the subsystem is deployed on this host.
// Absence is an expected state, logged at debug only. Cached for 5
// minutes; deployment state changes rarely.
func (m *Manager) IsAvailable(ctx context.Context) bool {
	available, _ := m.available.Get(func() (bool, error) {
		if m.subsys.ProbeCommand != "" {
			res := m.runner.Execute(ctx, m.subsys.ProbeCommand, m.subsys.ProbeArgs, 10*time.Second)
			return res.Success(), nil
		}
		_, ok := m.runner.ResolvePath(m.subsys.StartCommand)
		if !ok {
			m.log.Debug("subsystem not deployed",
				zap.String("start_command", m.subsys.StartCommand))
		}
		return ok, nil
	})
	return available
}

// IsRunning reports whether the subsystem client process is alive.
// Cached for 30 seconds.
func (m *Manager) IsRunning(ctx context.Context) bool {
	running, _ := m.running.Get(func() (bool, error) {
		return m.probe.exists(ctx, m.subsys.ClientProcess), nil
	})
	return running
}

// Start launches the subsystem client and waits for its process to
// appear, retrying the launch with attempt-scaled waits and falling back
// to the secondary start command. Idempotent: a running subsystem
// returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	if m.IsRunning(ctx) {
		return nil
	}
	if !m.IsAvailable(ctx) {
		return fmt.Errorf("subsystem is not installed on this host")
	}

	for attempt := 1; attempt <= startAttempts; attempt++ {
		res := m.runner.Execute(ctx, m.subsys.StartCommand, m.subsys.StartArgs, adbTimeout)
		if !res.Success() && m.subsys.FallbackStart != "" {
			m.log.Warn("primary start command failed, using fallback",
				zap.Int("exit_code", res.ExitCode),
				zap.String("fallback", m.subsys.FallbackStart))
			m.runner.Execute(ctx, m.subsys.FallbackStart, m.subsys.FallbackArgs, adbTimeout)
		}

		// The client detaches; give it longer to appear on each attempt.
		select {
		case <-time.After(time.Duration(attempt) * m.startWait):
		case <-ctx.Done():
			return ctx.Err()
		}

		m.running.Invalidate()
		if m.IsRunning(ctx) {
			if m.m != nil {
				m.m.SubsystemStarts.WithLabelValues("ok").Inc()
			}
			m.log.Info("subsystem started", zap.Int("attempt", attempt))
			m.publishStatus(false, "starting")
			return nil
		}
	}

	if m.m != nil {
		m.m.SubsystemStarts.WithLabelValues("error").Inc()
	}
	return fmt.Errorf("subsystem did not start after %d attempts", startAttempts)
}

// Stop shuts the subsystem client down and drops the session state.
// Idempotent: a subsystem that is not running returns immediately.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.IsRunning(ctx) {
		return nil
	}
	res := m.runner.Execute(ctx, m.subsys.StopCommand, m.subsys.StopArgs, adbTimeout)
	m.running.Invalidate()
	m.version.Invalidate()
	m.publishStatus(false, "stopped")
	if !res.Success() {
		return fmt.Errorf("subsystem stop failed: %s", strings.TrimSpace(res.Output()))
	}
	m.log.Info("subsystem stopped")
	return nil
}

// Connect establishes the adb session to the subsystem endpoint and
// confirms the device reports ready. The whole sequence is retried with
// exponential backoff; the subsystem's adb daemon comes up a few seconds
// after its process does.
func (m *Manager) Connect(ctx context.Context) error {
	err := resilience.Retry(ctx, connectRetries, m.connectWait, m.connectOnce)
	if err != nil {
		if m.m != nil {
			m.m.ConnectAttempts.WithLabelValues("error").Inc()
		}
		m.publishStatus(false, "disconnected")
		return err
	}
	if m.m != nil {
		m.m.ConnectAttempts.WithLabelValues("ok").Inc()
	}
	m.publishStatus(true, "connected")
	return nil
}

func (m *Manager) connectOnce(ctx context.Context) error {
	res, err := m.Adb(ctx, 10*time.Second, "version")
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("debug bridge tool not functional: %s", strings.TrimSpace(res.Output()))
	}

	res, err = m.Adb(ctx, 10*time.Second, "connect", m.cfg.Endpoint)
	if err != nil {
		return err
	}
	if !res.Success() || !parseConnectOutput(res.Stdout) {
		return fmt.Errorf("connect to %s failed: %s", m.cfg.Endpoint, strings.TrimSpace(res.Output()))
	}

	return m.verifyDevice(ctx)
}

func (m *Manager) verifyDevice(ctx context.Context) error {
	res, err := m.Adb(ctx, 10*time.Second, "devices")
	if err != nil {
		return err
	}
	state := deviceState(res.Stdout, m.cfg.Endpoint)
	if !isDeviceReady(state) {
		if state == "" {
			state = "absent"
		}
		return fmt.Errorf("device %s not ready: state %s", m.cfg.Endpoint, state)
	}
	return nil
}

// IsConnected checks the current session without reconnecting.
func (m *Manager) IsConnected(ctx context.Context) bool {
	return m.verifyDevice(ctx) == nil
}

// EnsureReachable verifies the session and reconnects if it has dropped.
func (m *Manager) EnsureReachable(ctx context.Context) error {
	if m.IsConnected(ctx) {
		return nil
	}
	return m.Connect(ctx)
}

// Disconnect drops the adb session. Used on shutdown; errors are not
// actionable there.
func (m *Manager) Disconnect(ctx context.Context) {
	if _, err := m.Adb(ctx, 10*time.Second, "disconnect", m.cfg.Endpoint); err == nil {
		m.publishStatus(false, "disconnected")
	}
}

// PlatformVersion returns the subsystem's Android release string, cached
// for 30 minutes. Empty when it cannot be read; callers treat that as
// unknown and assume compatibility.
func (m *Manager) PlatformVersion(ctx context.Context) string {
	version, err := m.version.Get(func() (string, error) {
		res, err := m.Adb(ctx, 10*time.Second, "shell", "getprop", "ro.build.version.release")
		if err != nil {
			return "", err
		}
		if !res.Success() {
			return "", fmt.Errorf("getprop failed: %s", strings.TrimSpace(res.Output()))
		}
		v := strings.TrimSpace(res.Stdout)
		if v == "" {
			return "", fmt.Errorf("empty platform version")
		}
		return v, nil
	})
	if err != nil {
		m.log.Debug("platform version unavailable", zap.Error(err))
		return ""
	}
	return version
}

// InvalidateRunning drops the cached running state; called after
// operations known to change it.
func (m *Manager) InvalidateRunning() {
	m.running.Invalidate()
}

func (m *Manager) publishStatus(connected bool, status string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(types.TopicConnection, types.ConnectionStatus{
		Connected: connected,
		Status:    status,
		Timestamp: time.Now(),
	})
}
