// Package version exposes build identification for the connector binary.
// The variables can be stamped at build time:
//
//	go build -ldflags "-X github.com/zhuxian89/dingtalk-moltbot-connector/version.release=1.0.0"
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const devRelease = "dev"

// Stamped via -ldflags; left at defaults for local builds.
var (
	release   = devRelease
	gitCommit = ""
	buildDate = ""
)

// Release returns the release string, falling back to the module version
// recorded in the build info when no ldflags were supplied.
func Release() string {
	if release != devRelease {
		return release
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devRelease
}

func commitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value[:min(7, len(s.Value))]
		}
	}
	return ""
}

// String renders a human-readable version banner for --version output.
func String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dingtalk-moltbot-connector %s", Release())

	commit := gitCommit
	if commit == "" {
		commit = commitFromBuildInfo()
	}
	if commit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", commit)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

// LogAttrs returns version details as structured log attributes for the
// startup log line.
func LogAttrs() []any {
	attrs := []any{"version", Release()}

	commit := gitCommit
	if commit == "" {
		commit = commitFromBuildInfo()
	}
	if commit != "" {
		attrs = append(attrs, "commit", commit)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}
