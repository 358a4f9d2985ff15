package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// fakeReleases is an in-memory ReleaseService.
type fakeReleases struct {
	mu       sync.Mutex
	nextID   int64
	releases map[string]*Release
	assets   map[int64][]Asset

	createErr error
	listErr   error
	uploadErr map[string]error
	creates   int
	uploads   []string
	deleted   []int64
}

func newFakeReleases() *fakeReleases {
	return &fakeReleases{
		nextID:    100,
		releases:  make(map[string]*Release),
		assets:    make(map[int64][]Asset),
		uploadErr: make(map[string]error),
	}
}

func (f *fakeReleases) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeReleases) addRelease(tag string) *Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &Release{ID: f.id(), Tag: tag, Name: tag, HTMLURL: "https://example.test/releases/" + tag}
	f.releases[tag] = r
	return r
}

func (f *fakeReleases) addAsset(releaseID int64, name string) Asset {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := Asset{ID: f.id(), Name: name, Size: 1}
	f.assets[releaseID] = append(f.assets[releaseID], a)
	return a
}

func (f *fakeReleases) assetNames(releaseID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, a := range f.assets[releaseID] {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeReleases) GetReleaseByTag(ctx context.Context, tag string) (*Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.releases[tag]
	if !ok {
		return nil, ErrReleaseNotFound
	}
	return r, nil
}

func (f *fakeReleases) CreateRelease(ctx context.Context, nr NewRelease) (*Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.releases[nr.Tag]; ok {
		return nil, ErrReleaseExists
	}
	r := &Release{ID: f.id(), Tag: nr.Tag, Name: nr.Name, Draft: nr.Draft}
	f.releases[nr.Tag] = r
	return r, nil
}

func (f *fakeReleases) ListAssets(ctx context.Context, releaseID int64) ([]Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Asset(nil), f.assets[releaseID]...), nil
}

func (f *fakeReleases) UploadAsset(ctx context.Context, releaseID int64, name, path string) (*Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[name]; err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	for _, a := range f.assets[releaseID] {
		if a.Name == name {
			return nil, fmt.Errorf("%w: %s", ErrAssetExists, name)
		}
	}
	a := Asset{ID: f.id(), Name: name, Size: info.Size()}
	f.assets[releaseID] = append(f.assets[releaseID], a)
	f.uploads = append(f.uploads, name)
	return &a, nil
}

func (f *fakeReleases) DeleteAsset(ctx context.Context, assetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for rid, list := range f.assets {
		for i, a := range list {
			if a.ID == assetID {
				f.assets[rid] = append(list[:i:i], list[i+1:]...)
				f.deleted = append(f.deleted, assetID)
				return nil
			}
		}
	}
	return fmt.Errorf("asset %d not found", assetID)
}

// fakeBuilder writes stub binaries for each target into its own directory.
type fakeBuilder struct {
	root     string
	binaries []string
	fail     map[string]error

	mu    sync.Mutex
	built []string
}

func (b *fakeBuilder) Build(ctx context.Context, target Target, ref string) (string, error) {
	b.mu.Lock()
	b.built = append(b.built, target.Triple)
	b.mu.Unlock()

	if err := b.fail[target.Triple]; err != nil {
		return "", err
	}
	dir := filepath.Join(b.root, target.Triple)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	for _, name := range b.binaries {
		if err := os.WriteFile(filepath.Join(dir, target.BinaryName(name)), []byte(name+"@"+ref), 0755); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (b *fakeBuilder) builtTargets() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.built...)
	sort.Strings(out)
	return out
}

// fakeRefs resolves only the refs it knows.
type fakeRefs map[string]string

func (f fakeRefs) ResolveRef(ctx context.Context, ref string) (string, error) {
	if h, ok := f[ref]; ok {
		return h, nil
	}
	return "", fmt.Errorf("reference not found: %s", ref)
}

// memRecorder keeps every recorded state change.
type memRecorder struct {
	mu      sync.Mutex
	results []TaskResult
	err     error
}

func (m *memRecorder) Record(r TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return m.err
}

func (m *memRecorder) statesFor(triple string) []TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TaskState
	for _, r := range m.results {
		if r.Target.Triple == triple {
			out = append(out, r.State)
		}
	}
	return out
}
