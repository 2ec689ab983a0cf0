package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/vburojevic/mprobe/internal/adb"
	"github.com/vburojevic/mprobe/internal/output"
)

// VersionCmd shows the build version and how to upgrade
type VersionCmd struct{}

// VersionOutput is the NDJSON form of the version command
type VersionOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Adb           string `json:"adb,omitempty"`
	GoInstall     string `json:"go_install"`
	ReleasesURL   string `json:"releases_url"`
}

const (
	goInstallCmd = "go install github.com/vburojevic/mprobe/cmd/mprobe@latest"
	releasesURL  = "https://github.com/vburojevic/mprobe/releases"
)

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adbVersion, err := adb.NewClient(globals.AdbPath, 5*time.Second).Version(ctx)
	if err != nil {
		globals.Debug("adb version: %v", err)
	}

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(VersionOutput{
			Type:          "version",
			SchemaVersion: output.SchemaVersion,
			Version:       Version,
			Commit:        Commit,
			Adb:           adbVersion,
			GoInstall:     goInstallCmd,
			ReleasesURL:   releasesURL,
		})
	}

	fmt.Fprintf(globals.Stdout, "mprobe %s (%s)\n", Version, Commit)
	if adbVersion != "" {
		fmt.Fprintln(globals.Stdout, adbVersion)
	} else {
		fmt.Fprintln(globals.Stdout, "adb: not found")
	}
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "To upgrade via Go:")
	fmt.Fprintf(globals.Stdout, "  %s\n", goInstallCmd)
	fmt.Fprintln(globals.Stdout)
	fmt.Fprintln(globals.Stdout, "For release notes, see:")
	fmt.Fprintf(globals.Stdout, "  %s\n", releasesURL)
	return nil
}
