package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/binary"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/mirror"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// fakeReleases is an in-memory release API.
type fakeReleases struct {
	mu       sync.Mutex
	nextID   int64
	releases map[string]*release.Release
	assets   map[int64][]release.Asset
	uploads  []string
}

func newFakeReleases() *fakeReleases {
	return &fakeReleases{
		nextID:   100,
		releases: make(map[string]*release.Release),
		assets:   make(map[int64][]release.Asset),
	}
}

func (f *fakeReleases) addRelease(tag string, assets ...string) *release.Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r := &release.Release{ID: f.nextID, Tag: tag, Name: tag}
	f.releases[tag] = r
	for _, name := range assets {
		f.nextID++
		f.assets[r.ID] = append(f.assets[r.ID], release.Asset{ID: f.nextID, Name: name})
	}
	return r
}

func (f *fakeReleases) GetReleaseByTag(ctx context.Context, tag string) (*release.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.releases[tag]
	if !ok {
		return nil, release.ErrReleaseNotFound
	}
	return r, nil
}

func (f *fakeReleases) CreateRelease(ctx context.Context, nr release.NewRelease) (*release.Release, error) {
	f.mu.Lock()
	if _, ok := f.releases[nr.Tag]; ok {
		f.mu.Unlock()
		return nil, release.ErrReleaseExists
	}
	f.mu.Unlock()
	return f.addRelease(nr.Tag), nil
}

func (f *fakeReleases) ListReleases(ctx context.Context) ([]release.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []release.Release
	for _, r := range f.releases {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeReleases) ListAssets(ctx context.Context, releaseID int64) ([]release.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]release.Asset(nil), f.assets[releaseID]...), nil
}

func (f *fakeReleases) UploadAsset(ctx context.Context, releaseID int64, name, path string) (*release.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets[releaseID] {
		if a.Name == name {
			return nil, release.ErrAssetExists
		}
	}
	f.nextID++
	a := release.Asset{ID: f.nextID, Name: name}
	f.assets[releaseID] = append(f.assets[releaseID], a)
	f.uploads = append(f.uploads, name)
	return &a, nil
}

func (f *fakeReleases) DeleteAsset(ctx context.Context, assetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, list := range f.assets {
		for i, a := range list {
			if a.ID == assetID {
				f.assets[id] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("asset %d not found", assetID)
}

func (f *fakeReleases) AssetDownloadURL(assetID int64) string {
	return fmt.Sprintf("https://api.example.test/assets/%d", assetID)
}

func (f *fakeReleases) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// fakeBuilder writes nothing and fails for the triples in fail.
type fakeBuilder struct {
	mu   sync.Mutex
	fail map[string]bool
	dir  string
}

func (b *fakeBuilder) Build(ctx context.Context, target release.Target, ref string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[target.Triple] {
		return "", fmt.Errorf("%w: %s", release.ErrBuildFailed, target.Triple)
	}
	return b.dir, nil
}

func (b *fakeBuilder) setFail(triple string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail == nil {
		b.fail = make(map[string]bool)
	}
	b.fail[triple] = fail
}

// fakePackager writes an empty archive file per target.
type fakePackager struct {
	dir string
}

func (p *fakePackager) AssetName(target release.Target) string {
	return target.AssetName("uv")
}

func (p *fakePackager) Package(ctx context.Context, target release.Target, binDir string) (*release.Artifact, error) {
	path := filepath.Join(p.dir, p.AssetName(target))
	if err := os.WriteFile(path, []byte(target.Triple), 0o644); err != nil {
		return nil, err
	}
	return &release.Artifact{Name: p.AssetName(target), Path: path}, nil
}

// fakeSyncer returns a canned mirror result.
type fakeSyncer struct {
	result *mirror.Result
	err    error
	calls  int
}

func (s *fakeSyncer) Sync(ctx context.Context) (*mirror.Result, error) {
	s.calls++
	return s.result, s.err
}

// fakeDispatcher records workflow dispatches.
type fakeDispatcher struct {
	workflow string
	ref      string
	inputs   map[string]string
	calls    int
	err      error
}

func (d *fakeDispatcher) DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	d.calls++
	d.workflow, d.ref, d.inputs = workflowFile, ref, inputs
	return d.err
}

// fakePublisher records inline publish requests.
type fakePublisher struct {
	requests []PublishRequest
	err      error
}

func (p *fakePublisher) Execute(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	p.requests = append(p.requests, req)
	return &PublishResult{}, p.err
}

// fakeTags serves fixed tag sets.
type fakeTags struct {
	upstream tags.Set
	origin   tags.Set
	err      error
}

func (f *fakeTags) ListRemoteTags(ctx context.Context, url string, auth transport.AuthMethod) (tags.Set, error) {
	return f.upstream, f.err
}

func (f *fakeTags) RemoteTags(ctx context.Context, remote string, auth transport.AuthMethod) (tags.Set, error) {
	if remote != "origin" {
		return tags.Set{}, errors.New("unknown remote " + remote)
	}
	return f.origin, nil
}

// fakeFetcher records fetch requests and fails for names in fail.
type fakeFetcher struct {
	mu       sync.Mutex
	requests []binary.FetchRequest
	fail     map[string]error
	installs map[string][]string
}

func (f *fakeFetcher) Install(archivePath string, members []string, destDir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installs == nil {
		f.installs = make(map[string][]string)
	}
	f.installs[destDir] = members
	paths := make([]string, len(members))
	for i, m := range members {
		paths[i] = filepath.Join(destDir, filepath.Base(m))
	}
	return paths, nil
}

func (f *fakeFetcher) FetchAndVerify(ctx context.Context, req binary.FetchRequest) (*binary.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.fail[req.Archive.Name]; err != nil {
		return nil, err
	}
	return &binary.FetchResult{Path: "/cache/" + req.Archive.Name, Verified: binary.VerificationSHA256, Files: req.ExpectFiles}, nil
}
