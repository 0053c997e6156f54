package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
	"k8s.io/klog/v2"
)

// RealDetector implements Detector using actual host inspection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect returns platform information for this host. OS and architecture
// come from the runtime; host ID and kernel version come from gopsutil.
// Host inspection failure is not fatal: descriptor matching only needs
// OS/arch, so detection degrades to those.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      osName(),
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		klog.V(1).Infof("host inspection failed, using runtime info only: %v", err)
		return info, nil
	}

	info.HostID = hi.HostID
	info.Kernel = hi.KernelVersion

	return info, nil
}
