package inventory

import (
	"strconv"
	"strings"

	"github.com/droiddeck/backend/internal/shared/types"
)

// parseListing converts `pm list packages --show-versioncode` output
// into inventory rows.
//
//	package:com.example.app versionCode:42
//	package:com.other.tool
func parseListing(output string, system bool) []types.InstalledPackage {
	var pkgs []types.InstalledPackage
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "package:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "package:"))
		if len(fields) == 0 || fields[0] == "" {
			continue
		}
		pkg := types.InstalledPackage{
			PackageName: fields[0],
			Label:       fields[0],
			System:      system,
			Enabled:     true,
		}
		for _, f := range fields[1:] {
			if v, ok := strings.CutPrefix(f, "versionCode:"); ok {
				if code, err := strconv.ParseInt(v, 10, 64); err == nil {
					pkg.VersionCode = code
				}
			}
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

// parsePidof reports whether `pidof` output names at least one pid.
func parsePidof(output string) bool {
	return strings.TrimSpace(output) != ""
}
