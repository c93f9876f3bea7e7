// Package platform maps Go's platform names to the qualifiers npm packages use for native builds.
package platform

import (
	"path/filepath"
	"runtime"
)

// Libc variants used by npm's linux packages
const (
	LibcGlibc = "gnu"
	LibcMusl  = "musl"
)

var nodePlatforms = map[string]string{
	"windows": "win32",
}

var nodeArchs = map[string]string{
	"amd64":    "x64",
	"386":      "ia32",
	"mips64le": "mips64el",
	"mipsle":   "mipsel",
}

// NodePlatform translates a GOOS value to node's process.platform
func NodePlatform(goos string) string {
	if value, ok := nodePlatforms[goos]; ok {
		return value
	}
	return goos
}

// NodeArch translates a GOARCH value to node's process.arch
func NodeArch(goarch string) string {
	if value, ok := nodeArchs[goarch]; ok {
		return value
	}
	return goarch
}

// Qualifier returns the "<platform>-<arch>" string for the given GOOS and GOARCH
func Qualifier(goos, goarch string) string {
	return NodePlatform(goos) + "-" + NodeArch(goarch)
}

// Target returns the qualifier for the running system (i.e. linux-x64)
func Target() string {
	return Qualifier(runtime.GOOS, runtime.GOARCH)
}

// Libc detects the C library on linux. It returns an empty string on other systems.
func Libc() string {
	if runtime.GOOS != "linux" {
		return ""
	}

	return detectLibc("/lib")
}

func detectLibc(libDir string) string {
	matches, err := filepath.Glob(filepath.Join(libDir, "ld-musl-*"))
	if err == nil && len(matches) > 0 {
		return LibcMusl
	}
	return LibcGlibc
}
