package apk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/droiddeck/backend/internal/proc"
	"github.com/klauspost/compress/zip"
)

const sampleBadging = `package: name='com.example.app' versionCode='42' versionName='1.2.3' platformBuildVersionName='13'
sdkVersion:'26'
targetSdkVersion:'33'
application-label:'Example App'
uses-permission: name='android.permission.INTERNET'
uses-permission: name='android.permission.CAMERA'
`

type sessionRule struct {
	match  string
	result proc.Result
}

// fakeSession scripts tool output per command line, mirroring how the
// bridge exposes the tools.
type fakeSession struct {
	mu          sync.Mutex
	rules       []sessionRule
	calls       []string
	platform    string
	unreachable error
	aaptMissing bool
}

func (s *fakeSession) on(match string, result proc.Result) *fakeSession {
	s.rules = append(s.rules, sessionRule{match: match, result: result})
	return s
}

func (s *fakeSession) Adb(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error) {
	return s.exec("adb", args), nil
}

func (s *fakeSession) Aapt(ctx context.Context, timeout time.Duration, args ...string) (proc.Result, error) {
	if s.aaptMissing {
		return proc.Result{}, errors.New("asset tool not found")
	}
	return s.exec("aapt", args), nil
}

func (s *fakeSession) EnsureReachable(ctx context.Context) error { return s.unreachable }

func (s *fakeSession) PlatformVersion(ctx context.Context) string { return s.platform }

func (s *fakeSession) exec(tool string, args []string) proc.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := tool + " " + strings.Join(args, " ")
	s.calls = append(s.calls, line)
	for _, r := range s.rules {
		if strings.Contains(line, r.match) {
			return r.result
		}
	}
	return proc.Result{ExitCode: 0}
}

func (s *fakeSession) count(match string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.Contains(c, match) {
			n++
		}
	}
	return n
}

// makeZip writes a zip file with the given entries and returns its path.
func makeZip(t *testing.T, dir, name string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for entry, data := range entries {
		ew, err := w.Create(entry)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ew.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func makeAPK(t *testing.T, dir, name string) string {
	t.Helper()
	return makeZip(t, dir, name, map[string][]byte{
		"AndroidManifest.xml": []byte("binary-manifest"),
		"classes.dex":         []byte("dex"),
	})
}
