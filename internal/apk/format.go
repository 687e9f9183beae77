// Package apk validates Android package files, extracts their metadata
// through tiered fallbacks, and installs them into the subsystem with
// progressive retry on split-related failures.
package apk

import (
	"path/filepath"
	"strings"
)

// Format identifies the on-disk package container.
type Format string

const (
	FormatAPK     Format = "apk"
	FormatXAPK    Format = "xapk"
	FormatUnknown Format = "unknown"
)

// DetectFormat classifies a path by extension, case-insensitively.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".apk":
		return FormatAPK
	case ".xapk":
		return FormatXAPK
	default:
		return FormatUnknown
	}
}

// PackageExtensions lists the container extensions handled by this
// package, for discovery globs.
func PackageExtensions() []string {
	return []string{".apk", ".xapk"}
}
