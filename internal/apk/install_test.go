package apk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/proc"
	"github.com/droiddeck/backend/internal/shared/types"
)

func newTestInstaller(session *fakeSession) (*Installer, *events.Bus) {
	log := logging.NewNop()
	bus := events.New(log)
	v := NewValidator(session, log)
	e := NewExtractor(session, log)
	return NewInstaller(session, v, e, nil, bus, log, nil), bus
}

func validAPKSession() *fakeSession {
	return (&fakeSession{platform: "13"}).
		on("dump badging", proc.Result{ExitCode: 0, Stdout: sampleBadging}).
		on("install", proc.Result{ExitCode: 0, Stdout: "Performing Streamed Install\nSuccess\n"})
}

func TestInstallHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := makeAPK(t, dir, "app.apk")
	session := validAPKSession()
	installer, bus := newTestInstaller(session)

	var stages []types.InstallStage
	bus.Subscribe(types.TopicInstall, func(e any) {
		stages = append(stages, e.(types.InstallProgress).Stage)
	})

	outcome := installer.Install(context.Background(), path)
	if !outcome.Success {
		t.Fatalf("install failed: %+v", outcome)
	}
	if outcome.PackageName != "com.example.app" {
		t.Errorf("package = %q", outcome.PackageName)
	}
	if n := session.count("adb install"); n != 1 {
		t.Errorf("expected 1 install call, got %d", n)
	}

	want := []types.InstallStage{
		types.StageValidating, types.StageExtracting, types.StageChecking,
		types.StageInstalling, types.StageCompleted,
	}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestInstallInvalidFileSpawnsNoInstall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.apk")
	if err := os.WriteFile(path, []byte("not a package"), 0o644); err != nil {
		t.Fatal(err)
	}
	session := validAPKSession()
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if outcome.Success {
		t.Fatal("invalid file must not install")
	}
	if n := session.count("adb install"); n != 0 {
		t.Errorf("invalid file must spawn no install process, got %d calls", n)
	}
}

func TestInstallChecksReachabilityBeforeExtraction(t *testing.T) {
	dir := t.TempDir()
	path := makeAPK(t, dir, "app.apk")
	session := validAPKSession()
	session.unreachable = errors.New("bridge down")
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if outcome.Success {
		t.Fatal("unreachable subsystem must fail the install")
	}
	if !strings.Contains(outcome.Reason, "not reachable") {
		t.Errorf("reason = %q", outcome.Reason)
	}
	// One badging call from validation; the extractor never runs.
	if n := session.count("dump badging"); n != 1 {
		t.Errorf("metadata must not be extracted for an unreachable subsystem, got %d tool calls", n)
	}
	if n := session.count("adb install"); n != 0 {
		t.Errorf("no install may be attempted, got %d calls", n)
	}
}

func TestInstallMissingSplitEscalation(t *testing.T) {
	dir := t.TempDir()
	path := makeAPK(t, dir, "app.apk")
	session := (&fakeSession{platform: "13"}).
		on("dump badging", proc.Result{ExitCode: 0, Stdout: sampleBadging}).
		on("install -r -t -g", proc.Result{ExitCode: 0, Stdout: "Success"}).
		on("install -r -t", proc.Result{ExitCode: 1, Stderr: "Failure [INSTALL_FAILED_MISSING_SPLIT]"}).
		on("install", proc.Result{ExitCode: 1, Stderr: "Failure [INSTALL_FAILED_MISSING_SPLIT]"})
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if !outcome.Success {
		t.Fatalf("escalation chain should succeed: %+v", outcome)
	}
	if n := session.count("adb install"); n != 3 {
		t.Errorf("missing split must add exactly 2 attempts, got %d total", n)
	}
	if n := session.count("-r -t -g"); n != 1 {
		t.Errorf("expected final attempt with -r -t -g, got %d", n)
	}
}

func TestInstallOtherFailureStopsChain(t *testing.T) {
	dir := t.TempDir()
	path := makeAPK(t, dir, "app.apk")
	session := (&fakeSession{platform: "13"}).
		on("dump badging", proc.Result{ExitCode: 0, Stdout: sampleBadging}).
		on("install", proc.Result{ExitCode: 1, Stderr: "Failure [INSTALL_FAILED_INSUFFICIENT_STORAGE]"})
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Reason != "not enough storage in the subsystem" {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if n := session.count("adb install"); n != 1 {
		t.Errorf("non-split failure must not retry, got %d calls", n)
	}
}

func TestInstallIncompatibleMinSDK(t *testing.T) {
	dir := t.TempDir()
	path := makeAPK(t, dir, "app.apk")
	badging := strings.Replace(sampleBadging, "sdkVersion:'26'", "sdkVersion:'34'", 1)
	// Platform release 13 maps to API 33.
	session := (&fakeSession{platform: "13"}).
		on("dump badging", proc.Result{ExitCode: 0, Stdout: badging})
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if outcome.Success {
		t.Fatal("expected compatibility failure")
	}
	if !strings.Contains(outcome.Reason, "not compatible") {
		t.Errorf("reason = %q", outcome.Reason)
	}
	if n := session.count("adb install"); n != 0 {
		t.Errorf("incompatible package must not reach the installer, got %d calls", n)
	}
}

func TestInstallUnknownPlatformAssumesCompatible(t *testing.T) {
	dir := t.TempDir()
	path := makeAPK(t, dir, "app.apk")
	badging := strings.Replace(sampleBadging, "sdkVersion:'26'", "sdkVersion:'34'", 1)
	session := (&fakeSession{platform: ""}).
		on("dump badging", proc.Result{ExitCode: 0, Stdout: badging}).
		on("install", proc.Result{ExitCode: 0, Stdout: "Success"})
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if !outcome.Success {
		t.Fatalf("unknown platform level must not block installs: %+v", outcome)
	}
}

func TestInstallBundleMultiple(t *testing.T) {
	dir := t.TempDir()
	manifest := `{"package_name":"com.example.app","version_code":7,"split_apks":[{"file":"base.apk"},{"file":"config.apk"}]}`
	path := makeZip(t, dir, "app.xapk", map[string][]byte{
		"manifest.json": []byte(manifest),
		"base.apk":      []byte("base"),
		"config.apk":    []byte("config"),
	})
	session := (&fakeSession{platform: "13"}).
		on("install-multiple", proc.Result{ExitCode: 0, Stdout: "Success"})
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if !outcome.Success {
		t.Fatalf("bundle install failed: %+v", outcome)
	}
	if n := session.count("install-multiple"); n != 1 {
		t.Errorf("expected install-multiple, got %d calls", n)
	}
}

func TestInstallBundleFallsBackPerFile(t *testing.T) {
	dir := t.TempDir()
	manifest := `{"package_name":"com.example.app","version_code":7,"split_apks":[{"file":"base.apk"},{"file":"config.apk"}]}`
	path := makeZip(t, dir, "app.xapk", map[string][]byte{
		"manifest.json": []byte(manifest),
		"base.apk":      []byte("base"),
		"config.apk":    []byte("config"),
	})
	session := (&fakeSession{platform: "13"}).
		on("install-multiple", proc.Result{ExitCode: 1, Stderr: "Failure [INSTALL_FAILED_INVALID_APK]"}).
		on("install", proc.Result{ExitCode: 0, Stdout: "Success"})
	installer, _ := newTestInstaller(session)

	outcome := installer.Install(context.Background(), path)
	if !outcome.Success {
		t.Fatalf("per-file fallback failed: %+v", outcome)
	}
	if n := session.count("install-multiple"); n != 1 {
		t.Errorf("install-multiple attempts = %d, want 1", n)
	}
	if n := session.count("adb install "); n != 2 {
		t.Errorf("per-file install calls = %d, want 2", n)
	}
}

func TestInstallBundleCleansScratch(t *testing.T) {
	dir := t.TempDir()
	manifest := `{"package_name":"com.example.app","version_code":7,"split_apks":[{"file":"base.apk"}]}`
	path := makeZip(t, dir, "app.xapk", map[string][]byte{
		"manifest.json": []byte(manifest),
		"base.apk":      []byte("base"),
	})
	session := (&fakeSession{platform: "13"}).
		on("install", proc.Result{ExitCode: 0, Stdout: "Success"})
	installer, _ := newTestInstaller(session)

	before := scratchDirs(t)
	if outcome := installer.Install(context.Background(), path); !outcome.Success {
		t.Fatalf("install failed: %+v", outcome)
	}
	if after := scratchDirs(t); after > before {
		t.Errorf("scratch directories leaked: %d -> %d", before, after)
	}
}

func TestInstallBundleCancelledCleansScratch(t *testing.T) {
	dir := t.TempDir()
	manifest := `{"package_name":"com.example.app","version_code":7,"split_apks":[{"file":"base.apk"}]}`
	path := makeZip(t, dir, "app.xapk", map[string][]byte{
		"manifest.json": []byte(manifest),
		"base.apk":      []byte("base"),
	})
	session := &fakeSession{platform: "13"}
	installer, _ := newTestInstaller(session)

	ctx, cancel := context.WithCancel(context.Background())
	before := scratchDirs(t)

	// Cancel once the pipeline reaches the install stage.
	unsub := installer.bus.Subscribe(types.TopicInstall, func(e any) {
		if e.(types.InstallProgress).Stage == types.StageInstalling {
			cancel()
		}
	})
	defer unsub()

	outcome := installer.Install(ctx, path)
	if outcome.Success {
		t.Fatal("cancelled install must not succeed")
	}
	if after := scratchDirs(t); after > before {
		t.Errorf("cancelled install leaked scratch dirs: %d -> %d", before, after)
	}
}

func scratchDirs(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "droiddeck-*"))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}
