package bridge

import "strings"

// deviceState extracts the state column for one serial from `adb devices`
// output. Returns "" when the serial is absent.
//
//	List of devices attached
//	127.0.0.1:58526	device
//	emulator-5554	offline
func deviceState(output, serial string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == serial {
			return fields[1]
		}
	}
	return ""
}

// connected is the only `adb devices` state in which commands may be
// issued; "offline" and "unauthorized" both mean not reachable.
func isDeviceReady(state string) bool {
	return state == "device"
}

// parseConnectOutput classifies `adb connect` stdout. The tool exits
// zero even on failure, so the text is the only signal.
func parseConnectOutput(output string) bool {
	out := strings.ToLower(output)
	return strings.Contains(out, "connected to") || strings.Contains(out, "already connected")
}
