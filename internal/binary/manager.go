package binary

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"
)

// Manager fetches a published archive with its sidecars and verifies it
type Manager struct {
	downloader *Downloader
	verifier   *Verifier
	archiver   *Archiver
}

// Config holds configuration for the manager
type Config struct {
	// CacheDir receives downloaded files, one subdirectory per tag
	CacheDir string
	// Token authenticates downloads; may be empty for public repositories
	Token string
	// KeyringPath is the public keyring; empty disables signature checks
	KeyringPath string
	// Accept is sent with every download; see Downloader.WithAccept
	Accept string
}

// NewManager creates a new manager
func NewManager(config Config) (*Manager, error) {
	if config.CacheDir == "" {
		return nil, fmt.Errorf("CacheDir is required")
	}

	verifier, err := NewVerifierFromFile(config.KeyringPath)
	if err != nil {
		return nil, fmt.Errorf("load keyring: %w", err)
	}

	return &Manager{
		downloader: NewDownloader(config.CacheDir).WithToken(config.Token).WithAccept(config.Accept),
		verifier:   verifier,
		archiver:   NewArchiver(),
	}, nil
}

// RemoteFile is a downloadable release asset
type RemoteFile struct {
	Name string
	URL  string
}

// FetchRequest names an archive and its sidecars on a release
type FetchRequest struct {
	Tag       string
	Archive   RemoteFile
	Checksum  RemoteFile
	Signature RemoteFile
	// ExpectFiles must all be present in the archive
	ExpectFiles []string
}

// FetchResult contains information about a verified archive
type FetchResult struct {
	Path         string
	Verified     VerificationMethod
	Files        []string
	DownloadTime time.Duration
}

// FetchAndVerify downloads the archive and its sidecars, verifies them, and
// checks that the archive contains the expected files.
func (m *Manager) FetchAndVerify(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	startTime := time.Now()

	archivePath, err := m.downloader.DownloadAsset(ctx, req.Tag, req.Archive.Name, req.Archive.URL)
	if err != nil {
		return nil, err
	}

	var checksumPath, signaturePath string
	if req.Checksum.URL != "" {
		checksumPath, err = m.downloader.DownloadAsset(ctx, req.Tag, req.Checksum.Name, req.Checksum.URL)
		if err != nil {
			return nil, err
		}
	}
	if req.Signature.URL != "" && m.verifier.RequiresSignature() {
		signaturePath, err = m.downloader.DownloadAsset(ctx, req.Tag, req.Signature.Name, req.Signature.URL)
		if err != nil {
			return nil, err
		}
	}

	verifyResult, err := m.verifier.VerifyFile(archivePath, checksumPath, signaturePath)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", req.Archive.Name, err)
	}

	files, err := m.archiver.List(archivePath)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", req.Archive.Name, err)
	}
	if missing := missingFiles(files, req.ExpectFiles); len(missing) > 0 {
		return nil, fmt.Errorf("archive %s is missing %v", req.Archive.Name, missing)
	}

	return &FetchResult{
		Path:         archivePath,
		Verified:     verifyResult.Method,
		Files:        files,
		DownloadTime: time.Since(startTime),
	}, nil
}

// Install extracts members of a verified archive into destDir, each under
// its base name, and marks them executable. It returns the written paths.
func (m *Manager) Install(archivePath string, members []string, destDir string) ([]string, error) {
	paths := make([]string, 0, len(members))
	for _, member := range members {
		dest := filepath.Join(destDir, path.Base(member))
		if err := m.archiver.ExtractFile(archivePath, member, dest); err != nil {
			return paths, fmt.Errorf("extract %s: %w", member, err)
		}
		if err := SetExecutable(dest); err != nil {
			return paths, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func missingFiles(have, want []string) []string {
	present := make(map[string]bool, len(have))
	for _, f := range have {
		present[f] = true
	}
	var missing []string
	for _, f := range want {
		if !present[f] {
			missing = append(missing, f)
		}
	}
	return missing
}
