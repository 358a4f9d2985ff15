package service

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/binary"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// AssetSource looks up a release and its assets and addresses asset
// downloads.
type AssetSource interface {
	GetReleaseByTag(ctx context.Context, tag string) (*release.Release, error)
	ListAssets(ctx context.Context, releaseID int64) ([]release.Asset, error)
	AssetDownloadURL(assetID int64) string
}

// Fetcher downloads and verifies one archive and installs its members.
type Fetcher interface {
	FetchAndVerify(ctx context.Context, req binary.FetchRequest) (*binary.FetchResult, error)
	Install(archivePath string, members []string, destDir string) ([]string, error)
}

// VerifyService checks the archives attached to a release.
type VerifyService struct {
	source   AssetSource
	fetcher  Fetcher
	prefix   string
	binaries []string
	logger   logging.Logger
}

// NewVerifyService creates a new verify service.
func NewVerifyService(source AssetSource, fetcher Fetcher, prefix string, binaries []string, logger logging.Logger) *VerifyService {
	if prefix == "" {
		prefix = release.DefaultArchivePrefix
	}
	if len(binaries) == 0 {
		binaries = release.DefaultBinaries
	}
	return &VerifyService{
		source:   source,
		fetcher:  fetcher,
		prefix:   prefix,
		binaries: binaries,
		logger:   logging.OrNop(logger),
	}
}

// VerifyRequest names the release and targets to check.
type VerifyRequest struct {
	Tag     string
	Targets []release.Target
	// InstallDir, when set, receives the binaries of every verified archive
	// under <InstallDir>/<triple>.
	InstallDir string
}

// TargetVerification is the outcome for one target.
type TargetVerification struct {
	Target release.Target
	Asset  string
	Result *binary.FetchResult
	// Installed lists the binaries written under VerifyRequest.InstallDir.
	Installed []string
	Err       error
}

// Execute downloads each target archive with its sidecars and verifies it.
// Every target is checked; the error combines the failures.
func (s *VerifyService) Execute(ctx context.Context, req VerifyRequest) ([]TargetVerification, error) {
	rel, err := s.source.GetReleaseByTag(ctx, req.Tag)
	if err != nil {
		return nil, fmt.Errorf("release for %s: %w", req.Tag, err)
	}
	assets, err := s.source.ListAssets(ctx, rel.ID)
	if err != nil {
		return nil, fmt.Errorf("list assets of %s: %w", req.Tag, err)
	}
	byName := make(map[string]release.Asset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}

	var errs error
	out := make([]TargetVerification, 0, len(req.Targets))
	for _, target := range req.Targets {
		v := TargetVerification{Target: target, Asset: target.AssetName(s.prefix)}
		v.Result, v.Err = s.verifyTarget(ctx, req.Tag, target, v.Asset, byName)
		if v.Err == nil && req.InstallDir != "" {
			v.Installed, v.Err = s.fetcher.Install(v.Result.Path, s.expectedFiles(target), filepath.Join(req.InstallDir, target.Triple))
		}
		if v.Err != nil {
			errs = multierr.Append(errs, &release.TaskError{Target: target, Err: v.Err})
		} else {
			s.logger.Info("archive verified", "asset", v.Asset, "method", v.Result.Verified.String())
		}
		out = append(out, v)
	}
	return out, errs
}

func (s *VerifyService) verifyTarget(ctx context.Context, tag string, target release.Target, name string, assets map[string]release.Asset) (*binary.FetchResult, error) {
	archive, ok := assets[name]
	if !ok {
		return nil, fmt.Errorf("asset %s is not attached", name)
	}

	req := binary.FetchRequest{
		Tag:     tag,
		Archive: s.remote(archive),
	}
	if sum, ok := assets[name+binary.ChecksumSuffix]; ok {
		req.Checksum = s.remote(sum)
	}
	if sig, ok := assets[name+binary.SignatureSuffix]; ok {
		req.Signature = s.remote(sig)
	}

	req.ExpectFiles = s.expectedFiles(target)
	return s.fetcher.FetchAndVerify(ctx, req)
}

// expectedFiles lists the archive members of target: <prefix>-<triple>/<binary>.
func (s *VerifyService) expectedFiles(target release.Target) []string {
	root := release.ArchiveName(s.prefix, target.Triple)
	files := make([]string, 0, len(s.binaries))
	for _, b := range s.binaries {
		files = append(files, root+"/"+target.BinaryName(b))
	}
	return files
}

func (s *VerifyService) remote(a release.Asset) binary.RemoteFile {
	return binary.RemoteFile{Name: a.Name, URL: s.source.AssetDownloadURL(a.ID)}
}
