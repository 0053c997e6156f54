// Package platform identifies the host the pipeline is updating: a
// normalized platform ID used for descriptor target matching, and a stable
// device fingerprint sent with signed update-check requests.
//
// It uses gopsutil for host details and falls back gracefully to
// runtime.GOOS/GOARCH when host inspection fails.
package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Universal is the descriptor target platform that matches every host.
const Universal = "universal"

// Info contains the detected host platform.
type Info struct {
	OS      string // "linux", "darwin", "windows"
	Arch    string // "amd64", "arm64" (normalized)
	ArchRaw string // original GOARCH value
	// HostID is the machine identifier reported by the OS, empty when
	// unavailable.
	HostID string
	// Kernel is the reported kernel version, empty when unavailable.
	Kernel string
}

// ID returns the canonical platform identifier used in update descriptors,
// e.g. "linux-amd64".
func (i *Info) ID() string {
	return i.OS + "-" + i.Arch
}

// Matches reports whether a descriptor targeting target applies to this
// host. The "universal" target matches everything.
func (i *Info) Matches(target string) bool {
	if strings.EqualFold(target, Universal) {
		return true
	}
	return strings.EqualFold(target, i.ID())
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// normalizeArch converts GOARCH values to normalized architecture names.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// osName returns the runtime OS, normalized for descriptor matching.
func osName() string {
	return runtime.GOOS
}
