// Package platform detects the machine tagrelay runs on and maps it onto
// the release build matrix.
//
// Detection reports OS, architecture, Linux distribution details (via
// gopsutil) and whether the process runs inside a CI job. The result is
// exposed to tagrelay.lua as a read-only "platform" table and is used by
// "build --target host" to pick the matrix entries this machine can build.
package platform

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux (musl)
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // "amd64", "arm64" (normalized)
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g., "ubuntu")
	Family   string // canonical family (Linux only, e.g., "debian")
	Version  string // distro version (Linux only, e.g., "22.04")

	// CI is true inside a CI job (CI or GITHUB_ACTIONS set to "true").
	CI bool
	// Runner is the CI runner OS label (RUNNER_OS), empty outside CI.
	Runner string
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool { return i.OS == "linux" }

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool { return i.OS == "darwin" }

// IsWindows returns true if the platform is Windows.
func (i *Info) IsWindows() bool { return i.OS == "windows" }

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool { return i.Arch == "amd64" }

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool { return i.Arch == "arm64" }

// IsMusl returns true on musl-based Linux distributions.
func (i *Info) IsMusl() bool { return i.IsLinux() && i.Family == FamilyAlpine }

// MatrixHost maps the detected OS onto the host column of the build matrix.
func (i *Info) MatrixHost() (release.HostOS, error) {
	switch i.OS {
	case "darwin":
		return release.HostMacOS, nil
	case "windows":
		return release.HostWindows, nil
	case "linux":
		return release.HostLinux, nil
	default:
		return "", fmt.Errorf("no build matrix host for OS %q", i.OS)
	}
}

// Triple returns the native target triple of this machine, e.g.
// x86_64-unknown-linux-gnu. It is empty when the OS or architecture has
// no matrix spelling.
func (i *Info) Triple() string {
	arch := tripleArch(i.Arch)
	if arch == "" {
		return ""
	}
	switch {
	case i.IsMacOS():
		return arch + "-apple-darwin"
	case i.IsWindows():
		return arch + "-pc-windows-msvc"
	case i.IsMusl():
		return arch + "-unknown-linux-musl"
	case i.IsLinux():
		return arch + "-unknown-linux-gnu"
	default:
		return ""
	}
}

// HostTargets returns the entries of matrix this machine builds.
func (i *Info) HostTargets(matrix []release.Target) ([]release.Target, error) {
	host, err := i.MatrixHost()
	if err != nil {
		return nil, err
	}
	targets := release.TargetsForHost(matrix, host)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no matrix entry is built on %s", release.ErrUnknownTarget, host)
	}
	return targets, nil
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
