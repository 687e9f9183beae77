// Package apilevel maps Android platform release strings to API levels.
// The subsystem reports its platform as a release string ("13", "12L");
// install compatibility checks need the numeric API level behind it.
package apilevel

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Table resolves release strings to API levels. Unknown releases resolve
// to 0, which callers treat as "assume compatible".
type Table struct {
	levels map[string]int
}

// Default returns the built-in table used when no external mapping file
// is configured or readable.
func Default() *Table {
	return &Table{levels: map[string]int{
		"8":    26,
		"8.1":  27,
		"9":    28,
		"10":   29,
		"11":   30,
		"12":   31,
		"12L":  32,
		"12.1": 32,
		"13":   33,
		"14":   34,
		"15":   35,
		"16":   36,
	}}
}

type fileFormat struct {
	Releases map[string]int `yaml:"releases"`
}

// Load reads a release→level mapping from a YAML file. Entries extend
// and override the built-in table, so a mapping file only needs to list
// releases newer than this build.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api level map: %w", err)
	}

	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse api level map %s: %w", path, err)
	}

	table := Default()
	for release, level := range file.Releases {
		table.levels[normalize(release)] = level
	}
	return table, nil
}

// LoadOrDefault loads the mapping file if present and silently falls
// back to the built-in table otherwise.
func LoadOrDefault(path string) *Table {
	if path == "" {
		return Default()
	}
	table, err := Load(path)
	if err != nil {
		return Default()
	}
	return table
}

// Level returns the API level for a platform release string, or 0 when
// the release is unknown.
func (t *Table) Level(release string) int {
	return t.levels[normalize(release)]
}

func normalize(release string) string {
	release = strings.TrimSpace(release)
	release = strings.TrimSuffix(release, ".0")
	return release
}
