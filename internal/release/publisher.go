package release

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// PublishResult is the outcome of a publish or build run.
type PublishResult struct {
	Resolved Resolved
	Release  *Release
	// Created is true when this run created the release.
	Created bool
	Tasks   []TaskResult
}

// Failed returns the tasks that failed.
func (r *PublishResult) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.State == TaskFailed {
			out = append(out, t)
		}
	}
	return out
}

// PublisherOptions configures release creation.
type PublisherOptions struct {
	Draft      bool
	Prerelease bool
	// NameTemplate is the release title; "{tag}" is replaced by the tag.
	// Empty uses the tag itself.
	NameTemplate string
	Body         string
}

// Publisher creates the release for a tag and runs the matrix against it.
type Publisher struct {
	releases ReleaseService
	refs     RefResolver
	runner   *MatrixRunner
	opts     PublisherOptions
	logger   logging.Logger
}

// NewPublisher creates a publisher.
func NewPublisher(releases ReleaseService, refs RefResolver, runner *MatrixRunner, opts PublisherOptions, logger logging.Logger) *Publisher {
	return &Publisher{
		releases: releases,
		refs:     refs,
		runner:   runner,
		opts:     opts,
		logger:   logging.OrNop(logger),
	}
}

// CreateRelease creates the one release for resolved.Tag. The tag must
// already exist in the local repository, and an existing release is a
// conflict, never updated.
func (p *Publisher) CreateRelease(ctx context.Context, resolved Resolved) (*Release, error) {
	if p.refs != nil {
		if _, err := p.refs.ResolveRef(ctx, resolved.Ref); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTagNotFound, resolved.Tag, err)
		}
	}

	existing, err := p.releases.GetReleaseByTag(ctx, resolved.Tag)
	switch {
	case err == nil && existing != nil:
		return nil, fmt.Errorf("%w: %s (%s)", ErrReleaseExists, resolved.Tag, existing.HTMLURL)
	case err != nil && !errors.Is(err, ErrReleaseNotFound):
		return nil, fmt.Errorf("look up release %s: %w", resolved.Tag, err)
	}

	rel, err := p.releases.CreateRelease(ctx, NewRelease{
		Tag:        resolved.Tag,
		Name:       p.releaseName(resolved.Tag),
		Body:       p.opts.Body,
		Draft:      p.opts.Draft,
		Prerelease: p.opts.Prerelease,
	})
	if err != nil {
		if errors.Is(err, ErrReleaseExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create release %s: %w", resolved.Tag, err)
	}

	p.logger.Info("created release", "tag", rel.Tag, "id", rel.ID, "url", rel.HTMLURL)
	return rel, nil
}

func (p *Publisher) releaseName(tag string) string {
	if p.opts.NameTemplate == "" {
		return tag
	}
	return expandPlaceholders(p.opts.NameTemplate, Target{}, tags.Ref(tag))
}

// Publish resolves the trigger, creates the release, and runs the matrix
// for targets. When the release cannot be created no task runs.
func (p *Publisher) Publish(ctx context.Context, trigger Trigger, targets []Target) (*PublishResult, error) {
	resolved, err := ResolveTrigger(trigger)
	if err != nil {
		return nil, err
	}
	p.logger.Info("publishing release", "tag", resolved.Tag, "trigger", trigger.String(), "targets", len(targets))

	rel, err := p.CreateRelease(ctx, resolved)
	if err != nil {
		return &PublishResult{Resolved: resolved}, err
	}

	result := &PublishResult{Resolved: resolved, Release: rel, Created: true}
	result.Tasks, err = p.runner.Run(ctx, rel, resolved.Ref, targets)
	return result, err
}

// BuildTargets runs targets against the already existing release for the
// trigger's tag. It is what one CI matrix job runs after the release job.
func (p *Publisher) BuildTargets(ctx context.Context, trigger Trigger, targets []Target) (*PublishResult, error) {
	resolved, err := ResolveTrigger(trigger)
	if err != nil {
		return nil, err
	}

	rel, err := p.releases.GetReleaseByTag(ctx, resolved.Tag)
	if err != nil {
		return &PublishResult{Resolved: resolved}, fmt.Errorf("release for %s: %w", resolved.Tag, err)
	}

	result := &PublishResult{Resolved: resolved, Release: rel}
	result.Tasks, err = p.runner.Run(ctx, rel, resolved.Ref, targets)
	return result, err
}
