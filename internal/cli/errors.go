package cli

import (
	"errors"
	"fmt"

	"github.com/vburojevic/mprobe/internal/domain"
	"github.com/vburojevic/mprobe/internal/output"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so scripted callers always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		output.NewNDJSONWriter(globals.Stdout).WriteError(code, message, hint...)
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s", code, message)
		if len(hint) > 0 && hint[0] != "" {
			fmt.Fprintf(globals.Stderr, " (hint: %s)", hint[0])
		}
		fmt.Fprintln(globals.Stderr)
	}
	return errors.New(message)
}

// hintFor suggests a next step for a probe failure kind.
func hintFor(kind domain.Kind, port int) string {
	switch kind {
	case domain.KindDeviceNotFound:
		return "connect a device with USB debugging enabled and check `adb devices`"
	case domain.KindForwardFailed:
		return fmt.Sprintf("check that local port %d is free or pass --port", port)
	case domain.KindLaunchFailed:
		return "check that --adb (or MPROBE_ADB) points at a working adb"
	case domain.KindConnectFailed:
		return "the server may not have started; inspect its stderr in the report"
	case domain.KindTimedOut:
		return "the server accepted but sent nothing; compare --server-version with the pushed artifact"
	case domain.KindRemoteClosed:
		return "the server closed the socket early; inspect its output in the report"
	case domain.KindDecodeFailed:
		return "the device name field is not text; the server build may use a different frame layout"
	}
	return ""
}
