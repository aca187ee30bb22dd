// Package version reports the version of the monorel binary.
package version

import (
	"runtime/debug"
	"strings"
)

// Dev is the version of a build without release ldflags.
const Dev = "dev"

// Resolve returns ldflagsVersion when it was set at build time and otherwise
// the module version recorded by go install, falling back to Dev.
func Resolve(ldflagsVersion string) string {
	if ldflagsVersion != "" && ldflagsVersion != Dev {
		return ldflagsVersion
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Dev
	}
	return fromModule(info.Main.Version)
}

func fromModule(v string) string {
	if v == "" || v == "(devel)" {
		return Dev
	}
	return strings.TrimPrefix(v, "v")
}
