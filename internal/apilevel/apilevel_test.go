package apilevel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	cases := map[string]int{
		"13":    33,
		"14":    34,
		"12L":   32,
		"11":    30,
		"10.0":  29,
		" 13 ":  33,
		"99":    0,
		"alpha": 0,
		"":      0,
	}
	for release, want := range cases {
		if got := table.Level(release); got != want {
			t.Errorf("Level(%q) = %d, want %d", release, got, want)
		}
	}
}

func TestLoadExtendsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-levels.yaml")
	content := "releases:\n  \"17\": 37\n  \"13\": 99\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := table.Level("17"); got != 37 {
		t.Errorf("new release: Level(17) = %d, want 37", got)
	}
	if got := table.Level("13"); got != 99 {
		t.Errorf("override: Level(13) = %d, want 99", got)
	}
	if got := table.Level("14"); got != 34 {
		t.Errorf("builtin retained: Level(14) = %d, want 34", got)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api-levels.yaml")
	if err := os.WriteFile(path, []byte("releases: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	table := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if got := table.Level("13"); got != 33 {
		t.Errorf("fallback table broken: Level(13) = %d", got)
	}
	if got := LoadOrDefault("").Level("14"); got != 34 {
		t.Errorf("empty path fallback broken: got %d", got)
	}
}
