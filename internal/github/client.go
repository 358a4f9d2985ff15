// Package github talks to the hosted repository API: releases, release
// assets and workflow dispatch.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	gogithub "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// Client errors
var (
	ErrMissingRepository = errors.New("owner and repository are required")
	ErrWorkflowNotFound  = errors.New("workflow not found")
)

// Client implements release.ReleaseService for one repository.
type Client struct {
	gh     *gogithub.Client
	owner  string
	repo   string
	logger logging.Logger
}

// Options configures a Client.
type Options struct {
	Owner string
	Repo  string
	// Token authenticates API calls. Empty means anonymous, read-only access.
	Token string
	// BaseURL points at a GitHub Enterprise or test server. Empty uses
	// api.github.com.
	BaseURL string
	// HTTPClient is the underlying transport; the token is layered on top.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// NewClient creates a Client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, ErrMissingRepository
	}

	httpClient := opts.HTTPClient
	if opts.Token != "" {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}

	gh := gogithub.NewClient(httpClient)
	if opts.BaseURL != "" {
		base, err := withTrailingSlash(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base URL: %w", err)
		}
		gh.BaseURL = base
		gh.UploadURL = base
	}

	return &Client{
		gh:     gh,
		owner:  opts.Owner,
		repo:   opts.Repo,
		logger: logging.OrNop(opts.Logger),
	}, nil
}

// SplitRepository splits "owner/repo" as found in GITHUB_REPOSITORY.
func SplitRepository(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrMissingRepository, s)
	}
	return owner, repo, nil
}

// Owner returns the repository owner.
func (c *Client) Owner() string { return c.owner }

// Repo returns the repository name.
func (c *Client) Repo() string { return c.repo }

// GetReleaseByTag implements release.ReleaseService. The by-tag endpoint
// never returns drafts, so a 404 falls back to scanning the release list.
func (c *Client) GetReleaseByTag(ctx context.Context, tag string) (*release.Release, error) {
	rel, resp, err := c.gh.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
	if err == nil {
		return toRelease(rel), nil
	}
	if !isStatus(resp, http.StatusNotFound) {
		return nil, fmt.Errorf("get release %s: %w", tag, err)
	}

	all, err := c.ListReleases(ctx)
	if err != nil {
		return nil, fmt.Errorf("look up draft release %s: %w", tag, err)
	}
	for i := range all {
		if all[i].Draft && all[i].Tag == tag {
			c.logger.Debug("found draft release", "tag", tag, "id", all[i].ID)
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", release.ErrReleaseNotFound, tag)
}

// CreateRelease implements release.ReleaseService.
func (c *Client) CreateRelease(ctx context.Context, nr release.NewRelease) (*release.Release, error) {
	req := &gogithub.RepositoryRelease{
		TagName:    gogithub.String(nr.Tag),
		Name:       gogithub.String(nr.Name),
		Draft:      gogithub.Bool(nr.Draft),
		Prerelease: gogithub.Bool(nr.Prerelease),
	}
	if nr.Body != "" {
		req.Body = gogithub.String(nr.Body)
	}

	rel, _, err := c.gh.Repositories.CreateRelease(ctx, c.owner, c.repo, req)
	if err != nil {
		if isAlreadyExists(err) {
			return nil, fmt.Errorf("%w: %s", release.ErrReleaseExists, nr.Tag)
		}
		return nil, fmt.Errorf("create release %s: %w", nr.Tag, err)
	}

	c.logger.Debug("release created", "tag", nr.Tag, "id", rel.GetID())
	return toRelease(rel), nil
}

// ListReleases returns every release of the repository.
func (c *Client) ListReleases(ctx context.Context) ([]release.Release, error) {
	var out []release.Release
	opts := &gogithub.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.gh.Repositories.ListReleases(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list releases: %w", err)
		}
		for _, r := range page {
			out = append(out, *toRelease(r))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListAssets implements release.ReleaseService.
func (c *Client) ListAssets(ctx context.Context, releaseID int64) ([]release.Asset, error) {
	var out []release.Asset
	opts := &gogithub.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.gh.Repositories.ListReleaseAssets(ctx, c.owner, c.repo, releaseID, opts)
		if err != nil {
			return nil, fmt.Errorf("list assets of release %d: %w", releaseID, err)
		}
		for _, a := range page {
			out = append(out, toAsset(a))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// UploadAsset implements release.ReleaseService.
func (c *Client) UploadAsset(ctx context.Context, releaseID int64, name, path string) (*release.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	asset, _, err := c.gh.Repositories.UploadReleaseAsset(ctx, c.owner, c.repo, releaseID,
		&gogithub.UploadOptions{Name: name}, f)
	if err != nil {
		if isAlreadyExists(err) {
			return nil, fmt.Errorf("%w: %s", release.ErrAssetExists, name)
		}
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	a := toAsset(asset)
	c.logger.Debug("asset uploaded", "name", a.Name, "id", a.ID, "size", a.Size)
	return &a, nil
}

// DeleteAsset implements release.ReleaseService.
func (c *Client) DeleteAsset(ctx context.Context, assetID int64) error {
	if _, err := c.gh.Repositories.DeleteReleaseAsset(ctx, c.owner, c.repo, assetID); err != nil {
		return fmt.Errorf("delete asset %d: %w", assetID, err)
	}
	return nil
}

// DispatchWorkflow starts workflowFile on ref with inputs.
func (c *Client) DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error {
	event := gogithub.CreateWorkflowDispatchEventRequest{
		Ref:    ref,
		Inputs: make(map[string]interface{}, len(inputs)),
	}
	for k, v := range inputs {
		event.Inputs[k] = v
	}

	resp, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.owner, c.repo, workflowFile, event)
	if err != nil {
		if isStatus(resp, http.StatusNotFound) {
			return fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowFile)
		}
		return fmt.Errorf("dispatch %s: %w", workflowFile, err)
	}

	c.logger.Info("workflow dispatched", "workflow", workflowFile, "ref", ref)
	return nil
}

// AssetDownloadURL returns the API URL that serves the raw asset when
// requested with Accept: application/octet-stream. It works for private
// repositories, unlike the browser download URL.
func (c *Client) AssetDownloadURL(assetID int64) string {
	return fmt.Sprintf("%srepos/%s/%s/releases/assets/%d", c.gh.BaseURL.String(), c.owner, c.repo, assetID)
}

func toRelease(r *gogithub.RepositoryRelease) *release.Release {
	return &release.Release{
		ID:      r.GetID(),
		Tag:     r.GetTagName(),
		Name:    r.GetName(),
		HTMLURL: r.GetHTMLURL(),
		Draft:   r.GetDraft(),
	}
}

func toAsset(a *gogithub.ReleaseAsset) release.Asset {
	return release.Asset{
		ID:          a.GetID(),
		Name:        a.GetName(),
		Size:        int64(a.GetSize()),
		DownloadURL: a.GetBrowserDownloadURL(),
	}
}

func isStatus(resp *gogithub.Response, code int) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == code
}

// isAlreadyExists reports a 422 validation error with code already_exists.
func isAlreadyExists(err error) bool {
	var errResp *gogithub.ErrorResponse
	if !errors.As(err, &errResp) {
		return false
	}
	if errResp.Response == nil || errResp.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range errResp.Errors {
		if e.Code == "already_exists" {
			return true
		}
	}
	return false
}

func withTrailingSlash(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return url.Parse(raw)
}
