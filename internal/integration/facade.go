// Package integration composes the subsystem managers behind one
// facade. Every public operation runs the same gauntlet: lifecycle
// gate, subsystem start, bridge session, then the operation itself.
package integration

import (
	"context"
	"time"

	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/proc"
	"github.com/droiddeck/backend/internal/shared/types"
	"go.uber.org/zap"
)

// Bridge is the connection-manager surface the facade drives.
type Bridge interface {
	IsAvailable(ctx context.Context) bool
	IsRunning(ctx context.Context) bool
	IsConnected(ctx context.Context) bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EnsureReachable(ctx context.Context) error
	PlatformVersion(ctx context.Context) string
	Endpoint() string
	ToolPaths() (adb string, aapt string)
	Adb(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error)
}

// Lifecycle gates operations and owns subsystem startup policy.
type Lifecycle interface {
	Gate() error
	EnsureStarted(ctx context.Context) error
	MarkActivity()
	Mode() config.Mode
}

// Installer runs the package install pipeline.
type Installer interface {
	Install(ctx context.Context, path string) types.InstallOutcome
}

// Inventory is the installed-package manager surface.
type Inventory interface {
	List(ctx context.Context, includeSystem, useCache bool) ([]types.InstalledPackage, error)
	Refresh(ctx context.Context) error
	Launch(ctx context.Context, name string) error
	StopApp(ctx context.Context, name string) error
	Uninstall(ctx context.Context, name string) error
	ClearData(ctx context.Context, name string) error
}

// Finder locates stored package files by package name and scans
// directories for candidates.
type Finder interface {
	FindPackageFile(ctx context.Context, packageName string) (string, error)
	ScanDir(dir string) ([]string, error)
}

// Validator checks whether a package file is installable.
type Validator interface {
	Validate(ctx context.Context, path string) (bool, string)
}

// Facade is the single entry point the transport layers talk to.
type Facade struct {
	bridge    Bridge
	lifecycle Lifecycle
	installer Installer
	inventory Inventory
	finder    Finder
	validator Validator
	metadata  MetadataSource
	history   *history
	log       *logging.Logger
}

// New composes the facade.
func New(bridge Bridge, lc Lifecycle, installer Installer, inventory Inventory, finder Finder, validator Validator, metadata MetadataSource, log *logging.Logger) *Facade {
	if log == nil {
		log = logging.NewNop()
	}
	return &Facade{
		bridge:    bridge,
		lifecycle: lc,
		installer: installer,
		inventory: inventory,
		finder:    finder,
		validator: validator,
		metadata:  metadata,
		history:   newHistory(),
		log:       log.Named("integration"),
	}
}

// Status is the composite subsystem state for the status endpoint.
type Status struct {
	Mode            string `json:"mode"`
	Available       bool   `json:"available"`
	Running         bool   `json:"running"`
	Connected       bool   `json:"connected"`
	PlatformVersion string `json:"platform_version,omitempty"`
	Endpoint        string `json:"endpoint"`
}

// Status reports the subsystem state without side effects: nothing is
// started or connected on its behalf.
func (f *Facade) Status(ctx context.Context) Status {
	s := Status{
		Mode:     string(f.lifecycle.Mode()),
		Endpoint: f.bridge.Endpoint(),
	}
	if f.lifecycle.Gate() != nil {
		return s
	}
	s.Available = f.bridge.IsAvailable(ctx)
	if !s.Available {
		return s
	}
	s.Running = f.bridge.IsRunning(ctx)
	if s.Running {
		s.Connected = f.bridge.IsConnected(ctx)
		if s.Connected {
			s.PlatformVersion = f.bridge.PlatformVersion(ctx)
		}
	}
	return s
}

// ensureReady runs the shared preamble for operations that talk to the
// subsystem.
func (f *Facade) ensureReady(ctx context.Context) error {
	if err := f.lifecycle.Gate(); err != nil {
		return err
	}
	if err := f.lifecycle.EnsureStarted(ctx); err != nil {
		return err
	}
	return f.bridge.EnsureReachable(ctx)
}

// InstallPackage installs a package file and records the outcome in the
// sideload history. The installer folds its own failures into the
// outcome; only the preamble can error here.
func (f *Facade) InstallPackage(ctx context.Context, path string) (types.InstallOutcome, error) {
	if err := f.ensureReady(ctx); err != nil {
		return types.InstallOutcome{}, err
	}

	outcome := f.installer.Install(ctx, path)
	f.history.add(outcome)
	if outcome.Success {
		f.lifecycle.MarkActivity()
		if err := f.inventory.Refresh(ctx); err != nil {
			f.log.Warn("post-install refresh failed", zap.Error(err))
		}
	}
	return outcome, nil
}

// InstallByName resolves a stored package file by package name and
// installs it.
func (f *Facade) InstallByName(ctx context.Context, packageName string) (types.InstallOutcome, error) {
	if err := f.lifecycle.Gate(); err != nil {
		return types.InstallOutcome{}, err
	}
	path, err := f.finder.FindPackageFile(ctx, packageName)
	if err != nil {
		return types.InstallOutcome{}, err
	}
	return f.InstallPackage(ctx, path)
}

// ListPackages lists installed packages through the ready subsystem.
func (f *Facade) ListPackages(ctx context.Context, includeSystem, useCache bool) ([]types.InstalledPackage, error) {
	if err := f.ensureReady(ctx); err != nil {
		return nil, err
	}
	return f.inventory.List(ctx, includeSystem, useCache)
}

// Launch starts an installed package.
func (f *Facade) Launch(ctx context.Context, packageName string) error {
	if err := f.ensureReady(ctx); err != nil {
		return err
	}
	if err := f.inventory.Launch(ctx, packageName); err != nil {
		return err
	}
	f.lifecycle.MarkActivity()
	return nil
}

// StopApp force-stops a package.
func (f *Facade) StopApp(ctx context.Context, packageName string) error {
	if err := f.ensureReady(ctx); err != nil {
		return err
	}
	return f.inventory.StopApp(ctx, packageName)
}

// Uninstall removes a package.
func (f *Facade) Uninstall(ctx context.Context, packageName string) error {
	if err := f.ensureReady(ctx); err != nil {
		return err
	}
	if err := f.inventory.Uninstall(ctx, packageName); err != nil {
		return err
	}
	f.lifecycle.MarkActivity()
	return nil
}

// ClearData wipes a package's data.
func (f *Facade) ClearData(ctx context.Context, packageName string) error {
	if err := f.ensureReady(ctx); err != nil {
		return err
	}
	return f.inventory.ClearData(ctx, packageName)
}

// StartSubsystem starts the subsystem on explicit user request,
// regardless of the auto-start policy. Only the disabled mode refuses.
func (f *Facade) StartSubsystem(ctx context.Context) error {
	if err := f.lifecycle.Gate(); err != nil {
		return err
	}
	if err := f.bridge.Start(ctx); err != nil {
		return err
	}
	f.lifecycle.MarkActivity()
	return nil
}

// StopSubsystem stops the subsystem.
func (f *Facade) StopSubsystem(ctx context.Context) error {
	if err := f.lifecycle.Gate(); err != nil {
		return err
	}
	return f.bridge.Stop(ctx)
}

// Connect establishes the bridge session, starting the subsystem first
// when the policy allows it.
func (f *Facade) Connect(ctx context.Context) error {
	return f.ensureReady(ctx)
}

// ValidatePackage checks a package file without touching the subsystem.
func (f *Facade) ValidatePackage(ctx context.Context, path string) (bool, string) {
	return f.validator.Validate(ctx, path)
}

// PackageMetadata extracts metadata from a package file.
func (f *Facade) PackageMetadata(ctx context.Context, path string) (*types.PackageMetadata, error) {
	return f.metadata.Extract(ctx, path)
}

// ScanPackages lists package files under a directory, sorted.
func (f *Facade) ScanPackages(dir string) ([]string, error) {
	return f.finder.ScanDir(dir)
}

// History returns the most recent install outcomes, newest first.
func (f *Facade) History(limit int) []types.InstallOutcome {
	return f.history.recent(limit)
}
