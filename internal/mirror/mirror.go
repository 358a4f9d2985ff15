// Package mirror keeps a fork's tag namespace in step with its upstream.
//
// A sync lists both tag sets, computes the tags upstream has that the fork
// lacks, and moves them over one at a time. The tag namespace is its own
// idempotency key: a tag that made it across is never reconsidered, and a
// tag that failed is simply still missing on the next run.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// ErrUpstreamRequired is returned when no upstream URL is configured.
var ErrUpstreamRequired = errors.New("upstream URL is required")

// Repository is the subset of git.Git the mirror depends on.
type Repository interface {
	ListRemoteTags(ctx context.Context, url string, auth transport.AuthMethod) (tags.Set, error)
	RemoteTags(ctx context.Context, remote string, auth transport.AuthMethod) (tags.Set, error)
	FetchTag(ctx context.Context, url, tag string, auth transport.AuthMethod) error
	PushTag(ctx context.Context, remote, tag string, auth transport.AuthMethod) error
}

// Options configures a Syncer.
type Options struct {
	// UpstreamURL is the repository whose tags are mirrored.
	UpstreamURL string
	// Remote is the fork remote tags are pushed to (default "origin").
	Remote string
	// UpstreamAuth is used for listing and fetching upstream. Nil for public repos.
	UpstreamAuth transport.AuthMethod
	// PushAuth carries the privileged token used to push tags to the fork.
	PushAuth transport.AuthMethod
	// DryRun computes the missing set without fetching or pushing.
	DryRun bool
}

// TagFailure records a tag that could not be mirrored.
type TagFailure struct {
	Tag string
	Err error
}

// Result is the outcome of one sync run.
type Result struct {
	// Upstream and Local are the tag sets observed at the start of the run.
	Upstream tags.Set
	Local    tags.Set
	// Missing is Upstream minus Local.
	Missing tags.Set
	// Synced holds the tags that were pushed during this run.
	Synced tags.Set
	// Failed holds tags that could not be fetched or pushed.
	Failed []TagFailure
	// HasNewTags is true when at least one tag was pushed.
	HasNewTags bool
	// LatestTag is the highest version among Synced.
	LatestTag string
	// DryRun is true when nothing was fetched or pushed.
	DryRun bool
	// InSync is true when every upstream tag is on the fork after the run.
	InSync bool
}

// Syncer mirrors upstream tags into the fork.
type Syncer struct {
	repo   Repository
	opts   Options
	logger logging.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(repo Repository, opts Options, logger logging.Logger) (*Syncer, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if opts.UpstreamURL == "" {
		return nil, ErrUpstreamRequired
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	return &Syncer{
		repo:   repo,
		opts:   opts,
		logger: logging.OrNop(logger),
	}, nil
}

// Sync runs one mirror pass.
//
// Tags are pushed individually and a failure does not stop the remaining
// tags. The returned Result always reflects what was actually pushed; the
// error combines every per-tag failure.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	upstream, err := s.repo.ListRemoteTags(ctx, s.opts.UpstreamURL, s.opts.UpstreamAuth)
	if err != nil {
		return nil, fmt.Errorf("list upstream tags: %w", err)
	}

	local, err := s.repo.RemoteTags(ctx, s.opts.Remote, s.opts.PushAuth)
	if err != nil {
		return nil, fmt.Errorf("list %s tags: %w", s.opts.Remote, err)
	}

	missing := tags.ComputeMissing(local, upstream)
	result := &Result{
		Upstream: upstream,
		Local:    local,
		Missing:  missing,
		DryRun:   s.opts.DryRun,
	}

	s.logger.Info("compared tag sets",
		"upstream", upstream.Len(),
		"local", local.Len(),
		"missing", missing.Len(),
	)

	if missing.IsEmpty() {
		s.logger.Info("no new tags")
		result.InSync = true
		return result, nil
	}

	if s.opts.DryRun {
		result.Synced = missing
		result.LatestTag, _ = tags.Latest(missing)
		return result, nil
	}

	var errs error
	pushed := make([]string, 0, missing.Len())
	for _, tag := range missing.Names() {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		if err := s.mirrorTag(ctx, tag); err != nil {
			s.logger.Warn("tag not mirrored", "tag", tag, "error", err)
			result.Failed = append(result.Failed, TagFailure{Tag: tag, Err: err})
			errs = multierr.Append(errs, err)
			continue
		}

		s.logger.Info("mirrored tag", "tag", tag)
		pushed = append(pushed, tag)
	}

	result.Synced = tags.NewSet(pushed...)
	result.LatestTag, result.HasNewTags = tags.Latest(result.Synced)
	result.InSync = upstream.IsSubsetOf(local.Union(result.Synced))

	return result, errs
}

func (s *Syncer) mirrorTag(ctx context.Context, tag string) error {
	if err := s.repo.FetchTag(ctx, s.opts.UpstreamURL, tag, s.opts.UpstreamAuth); err != nil {
		return err
	}
	return s.repo.PushTag(ctx, s.opts.Remote, tag, s.opts.PushAuth)
}

// Outputs returns the key/value pairs consumed by the release trigger.
func (r *Result) Outputs() map[string]string {
	hasNew := "false"
	if r.HasNewTags {
		hasNew = "true"
	}
	return map[string]string{
		"has_new_tags": hasNew,
		"synced_tags":  r.Synced.String(),
		"latest_tag":   r.LatestTag,
	}
}
