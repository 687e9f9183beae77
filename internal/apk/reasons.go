package apk

import (
	"regexp"
	"strings"
)

var failureCodeRe = regexp.MustCompile(`INSTALL(?:_PARSE)?_FAILED_[A-Z_0-9]+`)

// classifyFailure turns raw package-service output into a short
// user-facing reason. Unrecognized codes pass through verbatim; they
// are more useful than a generic message.
func classifyFailure(output string) string {
	code := failureCodeRe.FindString(output)
	switch code {
	case "INSTALL_FAILED_ALREADY_EXISTS":
		return "already installed"
	case "INSTALL_FAILED_VERSION_DOWNGRADE":
		return "a newer version is already installed"
	case "INSTALL_FAILED_INSUFFICIENT_STORAGE":
		return "not enough storage in the subsystem"
	case "INSTALL_FAILED_UPDATE_INCOMPATIBLE":
		return "signature mismatch with the installed version"
	case "INSTALL_FAILED_OLDER_SDK":
		return "package requires a newer platform"
	case "INSTALL_FAILED_NO_MATCHING_ABIS":
		return "no compatible native code for this device"
	case "INSTALL_FAILED_MISSING_SPLIT":
		return "missing required split packages"
	case "INSTALL_FAILED_USER_RESTRICTED":
		return "blocked by a device policy"
	case "":
		if trimmed := strings.TrimSpace(output); trimmed != "" {
			return firstLine(trimmed)
		}
		return "install failed"
	default:
		if strings.HasPrefix(code, "INSTALL_PARSE_FAILED_") {
			return "corrupt or unparsable package"
		}
		return code
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
