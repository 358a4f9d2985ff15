package release

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTarget is returned when a requested target is not in the matrix.
var ErrUnknownTarget = errors.New("unknown target")

// HostOS is the operating system of the machine a target is built on.
type HostOS string

const (
	HostMacOS   HostOS = "macos"
	HostWindows HostOS = "windows"
	HostLinux   HostOS = "linux"
)

// ParseHostOS accepts the matrix names and Go's GOOS spellings.
func ParseHostOS(s string) (HostOS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "macos", "darwin", "macos-latest", "macos-14":
		return HostMacOS, nil
	case "windows", "windows-latest":
		return HostWindows, nil
	case "linux", "ubuntu", "ubuntu-latest":
		return HostLinux, nil
	default:
		return "", fmt.Errorf("unknown host OS %q", s)
	}
}

// Target is one entry of the build matrix.
type Target struct {
	// Triple is the target platform triple, e.g. x86_64-unknown-linux-gnu.
	Triple string
	// Host is the OS of the machine that builds the target.
	Host HostOS
}

// DefaultMatrix is the fixed set of targets every release is built for.
var DefaultMatrix = []Target{
	{Triple: "aarch64-apple-darwin", Host: HostMacOS},
	{Triple: "x86_64-pc-windows-msvc", Host: HostWindows},
	{Triple: "x86_64-unknown-linux-gnu", Host: HostLinux},
	{Triple: "aarch64-unknown-linux-gnu", Host: HostLinux},
}

// IsWindows reports whether the target produces Windows binaries.
func (t Target) IsWindows() bool {
	return strings.Contains(t.Triple, "windows")
}

// BinaryName returns the file name of a built binary for this target.
func (t Target) BinaryName(name string) string {
	if t.IsWindows() {
		return name + ".exe"
	}
	return name
}

// ArchiveFormat returns "zip" for Windows targets and "tar.gz" otherwise.
func (t Target) ArchiveFormat() string {
	if t.IsWindows() {
		return "zip"
	}
	return "tar.gz"
}

// ArchiveName returns the archive base name, <prefix>-<triple>.
func ArchiveName(prefix, triple string) string {
	return prefix + "-" + triple
}

// AssetName returns the uploaded file name: the archive name plus the
// extension of its format.
func (t Target) AssetName(prefix string) string {
	return ArchiveName(prefix, t.Triple) + "." + t.ArchiveFormat()
}

func (t Target) String() string {
	return fmt.Sprintf("%s (%s)", t.Triple, t.Host)
}

// SelectTargets returns the matrix entries named by triples, in matrix
// order. An empty request selects the whole matrix.
func SelectTargets(matrix []Target, triples []string) ([]Target, error) {
	if len(triples) == 0 {
		out := make([]Target, len(matrix))
		copy(out, matrix)
		return out, nil
	}

	want := make(map[string]bool, len(triples))
	for _, tr := range triples {
		want[strings.TrimSpace(tr)] = true
	}

	var out []Target
	for _, t := range matrix {
		if want[t.Triple] {
			out = append(out, t)
			delete(want, t.Triple)
		}
	}
	for tr := range want {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, tr)
	}
	return out, nil
}

// TargetsForHost returns the matrix entries built on host.
func TargetsForHost(matrix []Target, host HostOS) []Target {
	var out []Target
	for _, t := range matrix {
		if t.Host == host {
			out = append(out, t)
		}
	}
	return out
}

// ValidateMatrix checks a configured matrix. It must be a non-empty subset
// of DefaultMatrix without duplicates.
func ValidateMatrix(matrix []Target) error {
	if len(matrix) == 0 {
		return errors.New("matrix is empty")
	}
	seen := make(map[string]bool, len(matrix))
	for i, t := range matrix {
		if strings.TrimSpace(t.Triple) == "" {
			return fmt.Errorf("matrix[%d]: triple is empty", i)
		}
		if _, err := ParseHostOS(string(t.Host)); err != nil {
			return fmt.Errorf("matrix[%d]: %w", i, err)
		}
		if seen[t.Triple] {
			return fmt.Errorf("matrix[%d]: duplicate triple %s", i, t.Triple)
		}
		seen[t.Triple] = true
		if !IsDefaultTarget(t) {
			return fmt.Errorf("matrix[%d]: %s is not a release target", i, t)
		}
	}
	return nil
}

// IsDefaultTarget reports whether t is an entry of DefaultMatrix, host
// included.
func IsDefaultTarget(t Target) bool {
	for _, d := range DefaultMatrix {
		if d == t {
			return true
		}
	}
	return false
}
