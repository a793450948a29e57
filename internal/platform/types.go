// Package platform describes the machine shellapp runs on (the host) and the
// closed set of runtime-shell targets it can build for.
//
// Host detection uses runtime.GOOS/GOARCH plus gopsutil for Linux distribution
// details, and the result is exposed to shellapp.lua as a read-only Lua table.
// Targets are a small enumeration with an explicit mapping table to asset-name
// fragments, resource layouts and executables.
package platform

import "context"

// Info contains host platform information.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64", "386" (normalized)
	ArchRaw string // original GOARCH
	Distro  string // distro ID (Linux only, e.g. "ubuntu")
	Family  string // distro family as reported by gopsutil (Linux only)
	Version string // distro version (Linux only)
}

// IsLinux returns true if the host is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the host is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsWindows returns true if the host is Windows.
func (i *Info) IsWindows() bool {
	return i.OS == "windows"
}

// IsUnix returns true for every host that is not Windows.
func (i *Info) IsUnix() bool {
	return !i.IsWindows()
}

// Is32Bit returns true on 32-bit x86 hosts.
func (i *Info) Is32Bit() bool {
	return i.Arch == "386"
}

// HostTarget maps the host to the target id used when no platforms are
// configured. Unknown operating systems fall back to TargetLinux.
func (i *Info) HostTarget() Target {
	switch i.OS {
	case "darwin":
		return TargetDarwin
	case "windows":
		return TargetWin32
	default:
		return TargetLinux
	}
}

// Detector is the interface for host platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// StaticDetector returns a fixed Info. It is used by tests and by callers
// that already detected the host.
type StaticDetector struct {
	Info *Info
}

// Detect returns the wrapped Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return s.Info, nil
}
