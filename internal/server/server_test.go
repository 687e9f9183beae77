package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/droiddeck/backend/internal/events"
	"github.com/droiddeck/backend/internal/infrastructure/config"
	"github.com/droiddeck/backend/internal/infrastructure/logging"
	"github.com/droiddeck/backend/internal/integration"
	"github.com/droiddeck/backend/internal/shared/types"
)

type stubOrch struct{}

func (stubOrch) Status(ctx context.Context) integration.Status {
	return integration.Status{Mode: "on-demand"}
}
func (stubOrch) Diagnostics(ctx context.Context) integration.Diagnostics {
	return integration.Diagnostics{}
}
func (stubOrch) StartSubsystem(ctx context.Context) error { return nil }
func (stubOrch) StopSubsystem(ctx context.Context) error  { return nil }
func (stubOrch) Connect(ctx context.Context) error        { return nil }
func (stubOrch) ValidatePackage(ctx context.Context, path string) (bool, string) {
	return true, ""
}
func (stubOrch) PackageMetadata(ctx context.Context, path string) (*types.PackageMetadata, error) {
	return &types.PackageMetadata{PackageName: "com.example.app", VersionCode: 1}, nil
}
func (stubOrch) ScanPackages(dir string) ([]string, error) { return nil, nil }
func (stubOrch) InstallPackage(ctx context.Context, path string) (types.InstallOutcome, error) {
	return types.InstallOutcome{Success: true}, nil
}
func (stubOrch) InstallByName(ctx context.Context, packageName string) (types.InstallOutcome, error) {
	return types.InstallOutcome{Success: true}, nil
}
func (stubOrch) ListPackages(ctx context.Context, includeSystem, useCache bool) ([]types.InstalledPackage, error) {
	return nil, nil
}
func (stubOrch) Launch(ctx context.Context, packageName string) error    { return nil }
func (stubOrch) StopApp(ctx context.Context, packageName string) error   { return nil }
func (stubOrch) Uninstall(ctx context.Context, packageName string) error { return nil }
func (stubOrch) ClearData(ctx context.Context, packageName string) error { return nil }
func (stubOrch) History(limit int) []types.InstallOutcome                { return nil }

func newTestServer() *Server {
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	bus := events.New(logging.NewNop())
	return New(cfg, stubOrch{}, bus, nil, logging.NewNop())
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestRoutesRegistered(t *testing.T) {
	srv := newTestServer()

	for _, path := range []string{"/", "/health", "/status", "/diagnostics", "/packages", "/installs/history", "/discovery?dir=/tmp", "/metrics"} {
		if rec := get(srv, path); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
	if rec := get(srv, "/does-not-exist"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d", rec.Code)
	}
}

func TestTraceHeadersInjected(t *testing.T) {
	srv := newTestServer()

	rec := get(srv, "/health")
	if rec.Header().Get("X-Trace-ID") == "" || rec.Header().Get("X-Span-ID") == "" {
		t.Errorf("trace headers missing: %v", rec.Header())
	}
}
