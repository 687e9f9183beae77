// Package inventory tracks the packages installed in the subsystem. A
// TTL-bounded snapshot backs reads; refreshes run the package-manager
// listings, diff against the previous snapshot, and publish one change
// event per difference.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/proc"
	"github.com/droiddeck/backend/internal/shared/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotTTL = 3 * time.Minute
	pmTimeout   = 30 * time.Second
)

// Session is the bridge surface this package needs.
type Session interface {
	Adb(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error)
	EnsureReachable(ctx context.Context) error
}

type snapshot struct {
	packages  map[string]types.InstalledPackage
	fetchedAt time.Time
}

// Manager owns the inventory snapshot and the operations that mutate it.
type Manager struct {
	session Session
	bus     *events.Bus
	m       *monitoring.Metrics
	log     *logging.Logger
	now     func() time.Time

	group singleflight.Group

	mu   sync.Mutex // guards snap swap and in-place updates
	snap *snapshot
}

// NewManager creates an inventory manager with an empty, stale snapshot.
func NewManager(session Session, bus *events.Bus, log *logging.Logger, metrics *monitoring.Metrics) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	m := &Manager{
		session: session,
		bus:     bus,
		m:       metrics,
		log:     log.Named("inventory"),
		now:     time.Now,
		snap:    &snapshot{packages: map[string]types.InstalledPackage{}},
	}
	return m
}

// List returns the installed packages, sorted by package name. With
// useCache a fresh, non-empty snapshot is served as-is; otherwise (or
// when stale) a refresh runs first. Concurrent refreshes collapse into
// one listing.
func (m *Manager) List(ctx context.Context, includeSystem, useCache bool) ([]types.InstalledPackage, error) {
	m.mu.Lock()
	fresh := m.now().Sub(m.snap.fetchedAt) < snapshotTTL &&
		!m.snap.fetchedAt.IsZero() && len(m.snap.packages) > 0
	m.mu.Unlock()

	if !useCache || !fresh {
		if err := m.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.InstalledPackage, 0, len(m.snap.packages))
	for _, pkg := range m.snap.packages {
		if !includeSystem && pkg.System {
			continue
		}
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageName < out[j].PackageName })
	return out, nil
}

// Get returns one package from the current snapshot without refreshing.
func (m *Manager) Get(name string) (types.InstalledPackage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pkg, ok := m.snap.packages[name]
	return pkg, ok
}

// Refresh re-reads both package listings and swaps the snapshot.
// Concurrent callers share a single in-flight refresh and all receive
// its result.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	start := m.now()
	if err := m.session.EnsureReachable(ctx); err != nil {
		return fmt.Errorf("inventory refresh: %w", err)
	}

	// The two listings are independently fallible; pm occasionally dies
	// on one filter while the other still answers. A single failure
	// degrades to a partial refresh; only both failing aborts.
	thirdParty, tpErr := m.listPackages(ctx, "-3")
	system, sysErr := m.listPackages(ctx, "-s")
	if tpErr != nil && sysErr != nil {
		return fmt.Errorf("inventory refresh: %v; %v", tpErr, sysErr)
	}
	if tpErr != nil {
		m.log.Warn("third-party listing failed, keeping previous entries", zap.Error(tpErr))
	}
	if sysErr != nil {
		m.log.Warn("system listing failed, keeping previous entries", zap.Error(sysErr))
	}

	next := make(map[string]types.InstalledPackage, len(thirdParty)+len(system))
	for _, pkg := range thirdParty {
		next[pkg.PackageName] = pkg
	}
	for _, pkg := range system {
		next[pkg.PackageName] = pkg
	}

	m.mu.Lock()
	prev := m.snap.packages
	firstFill := m.snap.fetchedAt.IsZero()
	// A failed listing keeps its previous entries so a flaky pm call
	// does not read as a wave of uninstalls.
	for name, pkg := range prev {
		if (tpErr != nil && !pkg.System) || (sysErr != nil && pkg.System) {
			next[name] = pkg
		}
	}
	// Carry runtime-only fields across refreshes.
	for name, pkg := range next {
		if old, ok := prev[name]; ok {
			pkg.Running = old.Running
			pkg.LastLaunchedAt = old.LastLaunchedAt
			pkg.InstalledAt = old.InstalledAt
			if old.VersionCode != pkg.VersionCode {
				pkg.UpdatedAt = m.now()
			}
			next[name] = pkg
		} else if !firstFill {
			pkg.InstalledAt = m.now()
			next[name] = pkg
		}
	}
	m.snap = &snapshot{packages: next, fetchedAt: m.now()}
	m.mu.Unlock()

	m.publishDiff(prev, next, firstFill)
	if m.m != nil {
		m.m.RecordRefresh(m.now().Sub(start), len(next))
	}
	m.log.Debug("inventory refreshed",
		zap.Int("packages", len(next)),
		zap.Duration("took", m.now().Sub(start)),
	)
	return nil
}

func (m *Manager) listPackages(ctx context.Context, filter string) ([]types.InstalledPackage, error) {
	res, err := m.session.Adb(ctx, pmTimeout, "shell", "pm", "list", "packages", "--show-versioncode", filter)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("package listing %s failed: %s", filter, strings.TrimSpace(res.Output()))
	}
	return parseListing(res.Stdout, filter == "-s"), nil
}

// publishDiff emits one event per change plus the terminal
// cache-refreshed event. The initial fill is not a wave of installs;
// only the terminal event goes out.
func (m *Manager) publishDiff(prev, next map[string]types.InstalledPackage, firstFill bool) {
	if m.bus == nil {
		return
	}
	if !firstFill {
		for name, pkg := range next {
			old, existed := prev[name]
			switch {
			case !existed:
				m.publishChange(types.ChangeInstalled, name, &pkg, len(next))
			case old.VersionCode != pkg.VersionCode:
				m.publishChange(types.ChangeUpdated, name, &pkg, len(next))
			}
		}
		for name := range prev {
			if _, still := next[name]; !still {
				m.publishChange(types.ChangeUninstalled, name, nil, len(next))
			}
		}
	}
	m.publishChange(types.ChangeRefreshed, "", nil, len(next))
}

func (m *Manager) publishChange(kind types.ChangeKind, name string, pkg *types.InstalledPackage, total int) {
	m.bus.Publish(types.TopicInventory, types.InventoryChange{
		Kind:        kind,
		PackageName: name,
		Package:     pkg,
		Total:       total,
		Timestamp:   m.now(),
	})
}

// Launch starts a package's launcher activity and confirms a process
// appeared. The package must be present in the inventory.
func (m *Manager) Launch(ctx context.Context, name string) error {
	if _, ok := m.Get(name); !ok {
		if _, err := m.List(ctx, true, true); err != nil {
			return err
		}
		if _, ok := m.Get(name); !ok {
			return fmt.Errorf("package %s is not installed", name)
		}
	}
	if err := m.session.EnsureReachable(ctx); err != nil {
		return err
	}

	res, err := m.session.Adb(ctx, pmTimeout, "shell", "monkey", "-p", name, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	if !res.Success() || strings.Contains(res.Output(), "No activities found") {
		return fmt.Errorf("launch %s failed: %s", name, strings.TrimSpace(res.Output()))
	}

	running := m.isProcessAlive(ctx, name)
	m.mu.Lock()
	if pkg, ok := m.snap.packages[name]; ok {
		pkg.Running = running
		pkg.LastLaunchedAt = m.now()
		m.snap.packages[name] = pkg
	}
	m.mu.Unlock()
	m.log.Info("launched package", zap.String("package", name), zap.Bool("running", running))
	return nil
}

// StopApp force-stops a package.
func (m *Manager) StopApp(ctx context.Context, name string) error {
	res, err := m.session.Adb(ctx, pmTimeout, "shell", "am", "force-stop", name)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("force-stop %s failed: %s", name, strings.TrimSpace(res.Output()))
	}
	m.mu.Lock()
	if pkg, ok := m.snap.packages[name]; ok {
		pkg.Running = false
		m.snap.packages[name] = pkg
	}
	m.mu.Unlock()
	return nil
}

// Uninstall removes a package from the subsystem and from the snapshot,
// publishing the uninstalled event immediately rather than waiting for
// the next refresh.
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	if err := m.session.EnsureReachable(ctx); err != nil {
		return err
	}
	res, err := m.session.Adb(ctx, pmTimeout, "uninstall", name)
	if err != nil {
		return err
	}
	if !res.Success() || strings.Contains(res.Output(), "Failure") {
		return fmt.Errorf("uninstall %s failed: %s", name, strings.TrimSpace(res.Output()))
	}

	m.mu.Lock()
	delete(m.snap.packages, name)
	total := len(m.snap.packages)
	m.mu.Unlock()

	if m.bus != nil {
		m.publishChange(types.ChangeUninstalled, name, nil, total)
	}
	m.log.Info("uninstalled package", zap.String("package", name))
	return nil
}

// ClearData wipes a package's data, as a settings reset.
func (m *Manager) ClearData(ctx context.Context, name string) error {
	res, err := m.session.Adb(ctx, pmTimeout, "shell", "pm", "clear", name)
	if err != nil {
		return err
	}
	if !res.Success() || !strings.Contains(res.Output(), "Success") {
		return fmt.Errorf("clear data for %s failed: %s", name, strings.TrimSpace(res.Output()))
	}
	return nil
}

// IsAppRunning checks for a live process of the package.
func (m *Manager) IsAppRunning(ctx context.Context, name string) bool {
	return m.isProcessAlive(ctx, name)
}

func (m *Manager) isProcessAlive(ctx context.Context, name string) bool {
	res, err := m.session.Adb(ctx, 10*time.Second, "shell", "pidof", name)
	if err != nil || !res.Success() {
		return false
	}
	return parsePidof(res.Stdout)
}
