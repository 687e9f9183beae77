package proc

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
)

// pathCache memoizes successful resolutions for the process lifetime.
// Tool binaries do not move while the service runs; negative results are
// not cached so a tool installed later is picked up.
type pathCache struct {
	paths sync.Map // command name -> absolute path
}

func (c *pathCache) get(command string) (string, bool) {
	v, ok := c.paths.Load(command)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *pathCache) put(command, path string) {
	c.paths.Store(command, path)
}

// DefaultSearchDirs returns the well-known platform-tools install
// locations scanned when a tool is not on PATH.
func DefaultSearchDirs() []string {
	dirs := []string{
		"/usr/lib/android-sdk",
		"/opt/android-sdk",
		"/usr/local/android-sdk",
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, "Android", "Sdk"),
			filepath.Join(home, ".android-sdk"),
			filepath.Join(home, "platform-tools"),
		)
	}
	return dirs
}

// ResolvePath locates a tool binary: the environment's search path first,
// then a recursive scan of the configured well-known directories. Hits
// are cached for the process lifetime.
func (r *ExecRunner) ResolvePath(command string) (string, bool) {
	if command == "" {
		return "", false
	}
	if path, ok := r.resolved.get(command); ok {
		return path, true
	}

	if path, err := exec.LookPath(command); err == nil {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		r.resolved.put(command, path)
		return path, true
	}

	for _, dir := range r.searchDirs {
		if path, ok := r.scanDir(dir, command); ok {
			r.resolved.put(command, path)
			r.log.Debug("resolved tool from well-known directory",
				zap.String("command", command),
				zap.String("path", path),
			)
			return path, true
		}
	}

	r.log.Debug("tool not found", zap.String("command", command))
	return "", false
}

// errFoundTool stops the walk as soon as one match is seen.
var errFoundTool = errors.New("tool found")

func (r *ExecRunner) scanDir(dir, command string) (string, bool) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false
	}

	// fastwalk runs the callback from multiple goroutines.
	var mu sync.Mutex
	var found string
	conf := fastwalk.Config{Follow: false}
	fastwalk.Walk(&conf, dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep scanning
		}
		if d.IsDir() || d.Name() != command {
			return nil
		}
		if !executable(path) {
			return nil
		}
		mu.Lock()
		if found == "" {
			found = path
		}
		mu.Unlock()
		return errFoundTool
	})
	mu.Lock()
	defer mu.Unlock()
	return found, found != ""
}

func executable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
