package apk

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/droiddeck/backend/internal/shared/types"
)

// aapt `dump badging` line shapes:
//
//	package: name='com.example.app' versionCode='42' versionName='1.2.3' ...
//	sdkVersion:'26'
//	targetSdkVersion:'33'
//	application-label:'Example App'
//	uses-permission: name='android.permission.INTERNET'
var (
	badgingNameRe       = regexp.MustCompile(`name='([^']*)'`)
	badgingVersionCode  = regexp.MustCompile(`versionCode='([^']*)'`)
	badgingVersionName  = regexp.MustCompile(`versionName='([^']*)'`)
	badgingQuotedSuffix = regexp.MustCompile(`:'([^']*)'`)
)

// parseBadging converts aapt dump badging output into metadata. Returns
// nil when the output carries no package declaration.
func parseBadging(output string) *types.PackageMetadata {
	meta := &types.PackageMetadata{}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "package:"):
			if m := badgingNameRe.FindStringSubmatch(line); m != nil {
				meta.PackageName = m[1]
			}
			if m := badgingVersionCode.FindStringSubmatch(line); m != nil {
				if code, err := strconv.ParseInt(m[1], 10, 64); err == nil {
					meta.VersionCode = code
				}
			}
			if m := badgingVersionName.FindStringSubmatch(line); m != nil {
				meta.VersionName = m[1]
			}
		case strings.HasPrefix(line, "sdkVersion:"):
			if m := badgingQuotedSuffix.FindStringSubmatch(line); m != nil {
				if v, err := strconv.Atoi(m[1]); err == nil {
					meta.MinSDK = v
				}
			}
		case strings.HasPrefix(line, "targetSdkVersion:"):
			if m := badgingQuotedSuffix.FindStringSubmatch(line); m != nil {
				if v, err := strconv.Atoi(m[1]); err == nil {
					meta.TargetSDK = v
				}
			}
		case strings.HasPrefix(line, "application-label:"):
			if m := badgingQuotedSuffix.FindStringSubmatch(line); m != nil {
				meta.Label = m[1]
			}
		case strings.HasPrefix(line, "uses-permission:"):
			if m := badgingNameRe.FindStringSubmatch(line); m != nil {
				meta.Permissions = append(meta.Permissions, m[1])
			}
		}
	}

	if meta.PackageName == "" {
		return nil
	}
	return meta
}

// hasPackageDeclaration is the cheap validity signal for badging output.
func hasPackageDeclaration(output string) bool {
	return strings.Contains(output, "package: name=") && strings.Contains(output, "versionCode=")
}
