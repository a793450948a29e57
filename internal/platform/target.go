package platform

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Target identifies a runtime-shell build target.
type Target string

const (
	// TargetDarwin is the macOS application bundle build.
	TargetDarwin Target = "darwin"
	// TargetWin32 is the Windows build.
	TargetWin32 Target = "win32"
	// TargetLinux is the generic Linux build; its architecture follows the host.
	TargetLinux Target = "linux"
	// TargetLinux32 is the 32-bit Linux build.
	TargetLinux32 Target = "linux32"
	// TargetLinux64 is the 64-bit Linux build.
	TargetLinux64 Target = "linux64"
)

// targetSpec is one row of the target mapping table.
type targetSpec struct {
	assetFragment string // empty means "depends on host arch"
	unix          bool
	symlinks      bool   // archive relies on symlinks (framework bundles)
	resourceDir   string // slash separated, relative to the extracted tree
	executable    string // slash separated, relative to the extracted tree
}

var targetTable = map[Target]targetSpec{
	TargetDarwin: {
		assetFragment: "darwin-x64",
		unix:          true,
		symlinks:      true,
		resourceDir:   "Atom.app/Contents/Resources",
		executable:    "Atom.app/Contents/MacOS/Atom",
	},
	TargetWin32: {
		assetFragment: "win32-ia32",
		resourceDir:   "resources",
		executable:    "atom.exe",
	},
	TargetLinux: {
		unix:        true,
		resourceDir: "resources",
		executable:  "atom",
	},
	TargetLinux32: {
		assetFragment: "linux-ia32",
		unix:          true,
		resourceDir:   "resources",
		executable:    "atom",
	},
	TargetLinux64: {
		assetFragment: "linux-x64",
		unix:          true,
		resourceDir:   "resources",
		executable:    "atom",
	},
}

// supportedOrder lists targets in display order.
var supportedOrder = []Target{TargetDarwin, TargetWin32, TargetLinux, TargetLinux32, TargetLinux64}

// Supported returns every known target.
func Supported() []Target {
	out := make([]Target, len(supportedOrder))
	copy(out, supportedOrder)
	return out
}

// ParseTarget converts a platform id to a Target.
func ParseTarget(id string) (Target, error) {
	t := Target(normalizeName(id))
	if _, ok := targetTable[t]; !ok {
		return "", &UnsupportedPlatformError{IDs: []string{id}}
	}
	return t, nil
}

// String returns the platform id.
func (t Target) String() string {
	return string(t)
}

// IsUnix reports whether the target is a unix-family platform.
func (t Target) IsUnix() bool {
	return targetTable[t].unix
}

// RequiresSymlinks reports whether the target archive contains symlinks that
// must survive extraction.
func (t Target) RequiresSymlinks() bool {
	return targetTable[t].symlinks
}

// ResourceDir returns the resource directory relative to the extracted tree.
func (t Target) ResourceDir() string {
	return filepath.FromSlash(targetTable[t].resourceDir)
}

// Executable returns the main runtime executable relative to the extracted tree.
func (t Target) Executable() string {
	return filepath.FromSlash(targetTable[t].executable)
}

// AssetFragment returns the "<os>-<arch>" part of the release asset name.
// The generic linux target follows the host architecture.
func (t Target) AssetFragment(host *Info) string {
	if frag := targetTable[t].assetFragment; frag != "" {
		return frag
	}
	if host != nil && host.Is32Bit() {
		return "linux-ia32"
	}
	return "linux-x64"
}

// AssetName returns the release asset name for this target, e.g.
// "atom-shell-v0.19.5-linux-x64.zip".
func (t Target) AssetName(prefix, version string, host *Info) string {
	return fmt.Sprintf("%s-%s-%s.zip", prefix, version, t.AssetFragment(host))
}

// UnsupportedPlatformError is returned when configured platform ids are not
// part of the supported set.
type UnsupportedPlatformError struct {
	IDs []string
}

func (e *UnsupportedPlatformError) Error() string {
	names := make([]string, len(supportedOrder))
	for i, t := range supportedOrder {
		names[i] = string(t)
	}
	return fmt.Sprintf("unsupported platform(s): %s (supported: %s)",
		strings.Join(e.IDs, ", "), strings.Join(names, ", "))
}

// NormalizeTargets turns the configured platform ids into the effective,
// ordered target set for this host.
//
// All unsupported ids are reported together. Duplicates keep their first
// position. The generic linux target is dropped when linux32 or linux64 is
// also requested, and darwin is dropped on Windows hosts because its
// archive cannot be extracted there. Dropped targets produce warnings.
func NormalizeTargets(ids []string, host *Info) ([]Target, []string, error) {
	var (
		targets     []Target
		warnings    []string
		unsupported []string
		seen        = make(map[Target]bool)
	)

	for _, id := range ids {
		t, err := ParseTarget(id)
		if err != nil {
			unsupported = append(unsupported, id)
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}

	if len(unsupported) > 0 {
		return nil, nil, &UnsupportedPlatformError{IDs: unsupported}
	}

	effective := targets[:0:0]
	for _, t := range targets {
		switch {
		case t == TargetLinux && (seen[TargetLinux32] || seen[TargetLinux64]):
			continue
		case t == TargetDarwin && host != nil && host.IsWindows():
			warnings = append(warnings,
				"darwin builds are not supported on Windows hosts because the archive contains symlinks; skipping darwin")
			continue
		}
		effective = append(effective, t)
	}

	return effective, warnings, nil
}
