package version

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Version information for the meshfuzz CLI.
// These variables can be overridden at build time via -ldflags.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = versionMajorColor.Sprint("0") + "." + versionMinorColor.Sprint("3") + "." + versionPatchColor.Sprint("0") + "-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""

	// Library names the scene library build under test. It is part of the
	// fuzz cache key, so results never leak between library revisions.
	Library = "meshfmt-dev"
)

// String renders the version block printed by "meshfuzz version".
func String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "meshfuzz %s\n", Version)
	fmt.Fprintf(&b, "library: %s\n", Library)
	if GitCommit != "" {
		fmt.Fprintf(&b, "commit:  %s\n", GitCommit)
	}
	if BuildDate != "" {
		fmt.Fprintf(&b, "built:   %s\n", BuildDate)
	}
	return b.String()
}
