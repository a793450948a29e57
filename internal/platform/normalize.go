package platform

import (
	"fmt"
	"strings"
)

// normalizeArch converts GOARCH-style values to the architecture names the
// target table understands.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "386", "i386", "i686":
		return "386", nil
	default:
		return "", fmt.Errorf("unsupported host architecture: %s", arch)
	}
}

// normalizeName lowercases and trims identifiers reported by gopsutil.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
