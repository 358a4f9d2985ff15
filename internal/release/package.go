package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/binary"
)

// Artifact is a packaged archive ready for upload.
type Artifact struct {
	// Name is the asset name on the release.
	Name string
	// Path is the archive on disk.
	Path string
	// Sidecars are checksum and signature files uploaded next to the
	// archive, named after their file base name.
	Sidecars []string
}

// Packager turns built binaries into an uploadable archive.
type Packager interface {
	// AssetName is the name the archive for target is uploaded under.
	AssetName(target Target) string
	Package(ctx context.Context, target Target, binDir string) (*Artifact, error)
}

// DefaultBinaries are the two executables every target ships.
var DefaultBinaries = []string{"uv", "uvx"}

// DefaultArchivePrefix is the archive name prefix.
const DefaultArchivePrefix = "uv"

// ArchivePackager writes <prefix>-<triple>.{tar.gz,zip} archives holding the
// target's binaries under a <prefix>-<triple>/ directory.
type ArchivePackager struct {
	Prefix   string
	Binaries []string
	// DistDir receives archives and sidecars.
	DistDir string
	// Checksums adds a <archive>.sha256 sidecar.
	Checksums bool
	// Signer, when set, adds a <archive>.asc sidecar.
	Signer *binary.Signer

	archiver *binary.Archiver
}

// NewArchivePackager creates a packager with the default binaries when
// none are given.
func NewArchivePackager(prefix string, binaries []string, distDir string) *ArchivePackager {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	if len(binaries) == 0 {
		binaries = DefaultBinaries
	}
	return &ArchivePackager{
		Prefix:   prefix,
		Binaries: binaries,
		DistDir:  distDir,
		archiver: binary.NewArchiver(),
	}
}

// AssetName implements Packager.
func (p *ArchivePackager) AssetName(target Target) string {
	return target.AssetName(p.Prefix)
}

// Package implements Packager.
func (p *ArchivePackager) Package(ctx context.Context, target Target, binDir string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format, err := binary.ParseFormat(target.ArchiveFormat())
	if err != nil {
		return nil, err
	}

	root := ArchiveName(p.Prefix, target.Triple)
	entries := make([]binary.Entry, 0, len(p.Binaries))
	for _, name := range p.Binaries {
		file := target.BinaryName(name)
		src := filepath.Join(binDir, file)
		if _, err := os.Stat(src); err != nil {
			return nil, fmt.Errorf("binary %s for %s: %w", file, target.Triple, err)
		}
		entries = append(entries, binary.Entry{
			Name:   root + "/" + file,
			Source: src,
			Mode:   0755,
		})
	}

	archiver := p.archiver
	if archiver == nil {
		archiver = binary.NewArchiver()
	}

	name := root + format.Extension()
	artifact := &Artifact{Name: name, Path: filepath.Join(p.DistDir, name)}
	if err := archiver.Create(artifact.Path, format, entries); err != nil {
		return nil, fmt.Errorf("package %s: %w", target.Triple, err)
	}

	if p.Checksums {
		sum, err := binary.WriteChecksumFile(artifact.Path)
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", artifact.Name, err)
		}
		artifact.Sidecars = append(artifact.Sidecars, sum)
	}
	if p.Signer != nil {
		sig, err := p.Signer.SignFile(artifact.Path)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", artifact.Name, err)
		}
		artifact.Sidecars = append(artifact.Sidecars, sig)
	}

	return artifact, nil
}
