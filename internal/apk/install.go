package apk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/droiddeck/backend/internal/apilevel"
	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/infrastructure/monitoring"
	"github.com/droiddeck/backend/internal/shared/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const installTimeout = 10 * time.Minute

// Installer drives package installs end to end: validation,
// reachability, metadata, compatibility, then the install chain with
// split-failure escalation.
// Installs are serialized; the subsystem's package service rejects
// concurrent sessions anyway.
type Installer struct {
	session   Session
	validator *Validator
	extractor *Extractor
	levels    *apilevel.Table
	bus       *events.Bus
	m         *monitoring.Metrics
	log       *logging.Logger
	gate      *semaphore.Weighted
}

// NewInstaller wires an installer. bus and metrics may be nil.
func NewInstaller(session Session, validator *Validator, extractor *Extractor, levels *apilevel.Table, bus *events.Bus, log *logging.Logger, metrics *monitoring.Metrics) *Installer {
	if log == nil {
		log = logging.NewNop()
	}
	if levels == nil {
		levels = apilevel.Default()
	}
	return &Installer{
		session:   session,
		validator: validator,
		extractor: extractor,
		levels:    levels,
		bus:       bus,
		m:         metrics,
		log:       log.Named("apk.install"),
		gate:      semaphore.NewWeighted(1),
	}
}

// Install runs the full pipeline for one package file. It never returns
// an error; every failure mode is folded into the outcome so callers and
// event subscribers see the same terminal state.
func (i *Installer) Install(ctx context.Context, path string) types.InstallOutcome {
	start := time.Now()
	format := DetectFormat(path)

	if err := i.gate.Acquire(ctx, 1); err != nil {
		return i.finish(format, path, "", start, types.InstallOutcome{
			Reason: "cancelled while waiting for a running install", ExitCode: -1,
		}, types.StageCancelled)
	}
	defer i.gate.Release(1)

	i.progress(types.StageValidating, path, "")
	ok, reason := i.validator.Validate(ctx, path)
	if !ok {
		return i.finish(format, path, "", start, types.InstallOutcome{Reason: reason, ExitCode: -1}, types.StageFailed)
	}

	// A dead bridge fails here, before any extraction work is spent on
	// a package that cannot be delivered.
	if err := i.session.EnsureReachable(ctx); err != nil {
		return i.finish(format, path, "", start, types.InstallOutcome{
			Reason:   fmt.Sprintf("subsystem not reachable: %v", err),
			ExitCode: -1,
		}, types.StageFailed)
	}

	i.progress(types.StageExtracting, path, "")
	meta, err := i.extractor.Extract(ctx, path)
	if err != nil {
		return i.finish(format, path, "", start, types.InstallOutcome{Reason: err.Error(), ExitCode: -1}, types.StageFailed)
	}

	i.progress(types.StageChecking, path, meta.PackageName)
	if reason := i.checkCompatibility(ctx, meta); reason != "" {
		return i.finish(format, path, meta.PackageName, start, types.InstallOutcome{
			PackageName: meta.PackageName, Reason: reason, ExitCode: -1,
		}, types.StageFailed)
	}

	i.progress(types.StageInstalling, path, meta.PackageName)
	var res result
	if format == FormatXAPK {
		res = i.installBundle(ctx, path)
	} else {
		res = i.installChain(ctx, "install", []string{path})
	}

	outcome := types.InstallOutcome{
		Success:       res.ok,
		PackageName:   meta.PackageName,
		InstalledSize: meta.FileSize,
		ExitCode:      res.exitCode,
	}
	stage := types.StageCompleted
	if !res.ok {
		outcome.Reason = res.reason
		stage = types.StageFailed
		if ctx.Err() != nil {
			stage = types.StageCancelled
		}
	}
	return i.finish(format, path, meta.PackageName, start, outcome, stage)
}

// checkCompatibility compares the package's minimum SDK with the
// platform's API level. An unknown platform level never blocks an
// install.
func (i *Installer) checkCompatibility(ctx context.Context, meta *types.PackageMetadata) string {
	if meta.MinSDK <= 0 {
		return ""
	}
	level := i.levels.Level(i.session.PlatformVersion(ctx))
	if level > 0 && meta.MinSDK > level {
		return fmt.Sprintf("%s is not compatible: requires API %d, platform provides API %d",
			meta.PackageName, meta.MinSDK, level)
	}
	return ""
}

type result struct {
	ok       bool
	reason   string
	exitCode int
}

// installChain runs verb (install or install-multiple) and escalates on
// a missing-split failure: first with -r -t, then with -r -t -g. Any
// other failure stops the chain.
func (i *Installer) installChain(ctx context.Context, verb string, paths []string) result {
	res := i.adbInstall(ctx, verb, nil, paths)
	if installSucceeded(res) {
		return result{ok: true}
	}
	if !strings.Contains(res.output, "INSTALL_FAILED_MISSING_SPLIT") {
		return result{reason: classifyFailure(res.output), exitCode: res.exitCode}
	}

	i.log.Info("missing split, retrying with replace flags", zap.String("verb", verb))
	res = i.adbInstall(ctx, verb, []string{"-r", "-t"}, paths)
	if installSucceeded(res) {
		return result{ok: true}
	}

	res = i.adbInstall(ctx, verb, []string{"-r", "-t", "-g"}, paths)
	if installSucceeded(res) {
		return result{ok: true}
	}
	return result{reason: classifyFailure(res.output), exitCode: res.exitCode}
}

type installResult struct {
	success  bool
	output   string
	exitCode int
}

func (i *Installer) adbInstall(ctx context.Context, verb string, flags, paths []string) installResult {
	args := append([]string{verb}, flags...)
	args = append(args, paths...)
	res, err := i.session.Adb(ctx, installTimeout, args...)
	if err != nil {
		return installResult{output: err.Error(), exitCode: -1}
	}
	return installResult{success: res.Success(), output: res.Output(), exitCode: res.ExitCode}
}

func installSucceeded(res installResult) bool {
	return res.success && !strings.Contains(res.output, "Failure")
}

// installBundle extracts an .xapk into a scratch directory and installs
// the inner packages: one file goes through the plain chain, several go
// through install-multiple first with a per-file fallback for package
// services that lack multi-session support.
func (i *Installer) installBundle(ctx context.Context, path string) result {
	bundle, err := ReadBundleManifest(path)
	if err != nil {
		return result{reason: err.Error(), exitCode: -1}
	}

	scratch := filepath.Join(os.TempDir(), "droiddeck-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return result{reason: fmt.Sprintf("scratch dir: %v", err), exitCode: -1}
	}
	defer os.RemoveAll(scratch)

	apks, err := extractBundle(path, scratch, bundle)
	if err != nil {
		return result{reason: err.Error(), exitCode: -1}
	}
	if ctx.Err() != nil {
		return result{reason: "cancelled", exitCode: -1}
	}

	if len(apks) == 1 {
		return i.installChain(ctx, "install", apks)
	}

	res := i.installChain(ctx, "install-multiple", apks)
	if res.ok || ctx.Err() != nil {
		return res
	}

	i.log.Warn("multi-package install failed, falling back to per-file installs",
		zap.String("reason", res.reason))
	for _, apk := range apks {
		if res = i.installChain(ctx, "install", []string{apk}); !res.ok {
			return res
		}
	}
	return result{ok: true}
}

func (i *Installer) finish(format Format, path, pkg string, start time.Time, outcome types.InstallOutcome, stage types.InstallStage) types.InstallOutcome {
	outcome.FinishedAt = time.Now()
	i.progress(stage, path, pkg)

	label := "ok"
	if !outcome.Success {
		label = "error"
		if stage == types.StageCancelled {
			label = "cancelled"
		}
	}
	if i.m != nil {
		i.m.RecordInstall(string(format), label, time.Since(start))
	}
	i.log.Info("install finished",
		zap.String("path", path),
		zap.String("package", pkg),
		zap.Bool("success", outcome.Success),
		zap.String("reason", outcome.Reason),
	)
	return outcome
}

func (i *Installer) progress(stage types.InstallStage, path, pkg string) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(types.TopicInstall, types.InstallProgress{
		Stage:       stage,
		Percent:     stage.Percent(),
		Path:        path,
		PackageName: pkg,
		Timestamp:   time.Now(),
	})
}
