package platform

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct {
	getenv func(string) string
}

// NewDetector creates a new platform detector.
func NewDetector() *RealDetector {
	return &RealDetector{getenv: os.Getenv}
}

// Detect uses runtime.GOOS and runtime.GOARCH for OS and architecture and
// gopsutil for Linux distribution details.
//
// A failed distro lookup leaves the distro fields empty and is not an
// error; a cancelled context is.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	getenv := d.getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}

	info := &Info{
		OS:      runtime.GOOS,
		Arch:    arch,
		ArchRaw: runtime.GOARCH,
		CI:      getenv("CI") == "true" || getenv("GITHUB_ACTIONS") == "true",
		Runner:  getenv("RUNNER_OS"),
	}

	if runtime.GOOS == "linux" {
		platform, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}
		if platform = normalizePlatform(platform); platform != "" {
			info.Platform = platform
			info.Family = mapFamily(family)
			info.Version = normalizePlatform(version)
		}
	}

	return info, nil
}

// StaticDetector returns a fixed Info. It serves "--host" overrides and
// tests.
type StaticDetector struct {
	Info *Info
	Err  error
}

// Detect returns the configured Info.
func (s StaticDetector) Detect(ctx context.Context) (*Info, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Info, nil
}
