package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/drift"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// assetListConcurrency bounds parallel asset listings against the API.
const assetListConcurrency = 8

// TagLister lists the tags of the upstream URL and of the fork remote.
type TagLister interface {
	ListRemoteTags(ctx context.Context, url string, auth transport.AuthMethod) (tags.Set, error)
	RemoteTags(ctx context.Context, remote string, auth transport.AuthMethod) (tags.Set, error)
}

// ReleaseLister lists published releases and their assets.
type ReleaseLister interface {
	ListReleases(ctx context.Context) ([]release.Release, error)
	ListAssets(ctx context.Context, releaseID int64) ([]release.Asset, error)
}

// StatusConfig wires a StatusService.
type StatusConfig struct {
	Tags         TagLister
	Releases     ReleaseLister
	UpstreamURL  string
	Remote       string
	UpstreamAuth transport.AuthMethod
	OriginAuth   transport.AuthMethod
	// ArchivePrefix and Matrix determine the archives a complete release
	// carries.
	ArchivePrefix string
	Matrix        []release.Target
	Clock         Clock
}

// StatusService builds the drift report.
type StatusService struct {
	cfg   StatusConfig
	clock Clock
}

// NewStatusService creates a new status service.
func NewStatusService(cfg StatusConfig) *StatusService {
	if len(cfg.Matrix) == 0 {
		cfg.Matrix = release.DefaultMatrix
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = release.DefaultArchivePrefix
	}
	return &StatusService{cfg: cfg, clock: clockOrReal(cfg.Clock)}
}

// StatusRequest contains the parameters of a status check.
type StatusRequest struct {
	Since string
}

// StatusResult contains the drift report.
type StatusResult struct {
	Results   []drift.DriftResult
	Repairs   []drift.Repair
	CheckedAt time.Time
}

// HasDrift reports whether any tag needs attention.
func (r *StatusResult) HasDrift() bool {
	return drift.HasDrift(r.Results)
}

// Execute collects upstream tags, fork tags and releases and compares them.
func (s *StatusService) Execute(ctx context.Context, req StatusRequest) (*StatusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var upstream, local tags.Set
	var releases []release.Release

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		upstream, err = s.cfg.Tags.ListRemoteTags(gctx, s.cfg.UpstreamURL, s.cfg.UpstreamAuth)
		if err != nil {
			return fmt.Errorf("list upstream tags: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		local, err = s.cfg.Tags.RemoteTags(gctx, s.cfg.Remote, s.cfg.OriginAuth)
		if err != nil {
			return fmt.Errorf("list %s tags: %w", s.cfg.Remote, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		releases, err = s.cfg.Releases.ListReleases(gctx)
		if err != nil {
			return fmt.Errorf("list releases: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states, err := s.releaseStates(ctx, local, releases)
	if err != nil {
		return nil, err
	}

	results := drift.DetectDrift(upstream, local, states, drift.ExpectedAssets(s.cfg.ArchivePrefix, s.cfg.Matrix), drift.Options{Since: req.Since})
	return &StatusResult{
		Results:   results,
		Repairs:   drift.PlanRepairs(results, s.cfg.ArchivePrefix, s.cfg.Matrix),
		CheckedAt: s.clock.Now(),
	}, nil
}

// releaseStates lists the assets of every release whose tag is on the fork.
func (s *StatusService) releaseStates(ctx context.Context, local tags.Set, releases []release.Release) ([]drift.ReleaseState, error) {
	var (
		mu     sync.Mutex
		states []drift.ReleaseState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(assetListConcurrency)
	for _, rel := range releases {
		if !local.Contains(rel.Tag) {
			continue
		}
		g.Go(func() error {
			assets, err := s.cfg.Releases.ListAssets(gctx, rel.ID)
			if err != nil {
				return fmt.Errorf("list assets of %s: %w", rel.Tag, err)
			}
			state := drift.ReleaseState{Tag: rel.Tag, ID: rel.ID, Draft: rel.Draft}
			for _, a := range assets {
				state.Assets = append(state.Assets, a.Name)
			}
			mu.Lock()
			states = append(states, state)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}
