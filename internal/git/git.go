// Package git provides an interface-based wrapper for the Git operations
// tagrelay needs: listing remote tags, reading local tags, moving single
// tags between remotes, and resolving refs. All operations go through
// go-git, so no git binary is required at runtime.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// Common Git errors
var (
	ErrNotAGitRepo   = errors.New("not a git repository")
	ErrInvalidRepo   = errors.New("invalid git repository")
	ErrEmptyTag      = errors.New("tag name cannot be empty")
	ErrEmptyRemote   = errors.New("remote cannot be empty")
	ErrRefNotFound   = errors.New("ref not found")
	ErrRemoteMissing = errors.New("remote not configured")
)

// tokenUser is the username GitHub accepts alongside a token in basic auth.
const tokenUser = "x-access-token"

// Git is the interface for Git operations.
// Following Go best practices: accept interfaces, return structs.
type Git interface {
	// ListRemoteRefs returns the raw ref names advertised by a remote URL,
	// including peeled "^{}" entries for annotated tags.
	ListRemoteRefs(ctx context.Context, url string, auth transport.AuthMethod) ([]string, error)

	// ListRemoteTags lists the tag set advertised by a remote URL.
	ListRemoteTags(ctx context.Context, url string, auth transport.AuthMethod) (tags.Set, error)

	// RemoteTags lists the tag set of a remote configured in the repository.
	RemoteTags(ctx context.Context, remote string, auth transport.AuthMethod) (tags.Set, error)

	// LocalTags lists the tags stored in the local repository.
	LocalTags(ctx context.Context) (tags.Set, error)

	// FetchTag copies a single tag from url into the local repository.
	FetchTag(ctx context.Context, url, tag string, auth transport.AuthMethod) error

	// PushTag pushes a single tag to a configured remote.
	PushTag(ctx context.Context, remote, tag string, auth transport.AuthMethod) error

	// ResolveRef resolves a ref or revision to a commit hash.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// IsGitRepo reports whether the client path is a repository.
	IsGitRepo(ctx context.Context) (bool, error)
}

// Client implements the Git interface.
type Client struct {
	repoPath string // Path to the git repository
	logger   logging.Logger
}

// NewClient creates a new Git client for the given repository path.
func NewClient(repoPath string) *Client {
	return &Client{
		repoPath: repoPath,
		logger:   logging.Nop(),
	}
}

// WithLogger sets the logger used for debug output.
func (c *Client) WithLogger(l logging.Logger) *Client {
	c.logger = logging.OrNop(l)
	return c
}

// TokenAuth returns HTTP basic auth carrying a GitHub token, or nil when the
// token is empty so anonymous access is used.
func TokenAuth(token string) transport.AuthMethod {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{
		Username: tokenUser,
		Password: token,
	}
}

// RemoteURL returns the canonical HTTPS remote URL for owner/repo on GitHub.
func RemoteURL(owner, repo string) string {
	owner = strings.TrimSpace(owner)
	repo = strings.TrimSpace(repo)
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
}

// ListRemoteRefs lists the refs advertised by url without touching any local
// repository. Peeled entries are appended, mirroring `git ls-remote`.
func (c *Client) ListRemoteRefs(ctx context.Context, url string, auth transport.AuthMethod) ([]string, error) {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyRemote
	}

	remote := gogit.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "upstream",
		URLs: []string{url},
	})

	return listRefs(ctx, remote, auth)
}

// ListRemoteTags lists the tags advertised by url.
func (c *Client) ListRemoteTags(ctx context.Context, url string, auth transport.AuthMethod) (tags.Set, error) {
	refs, err := c.ListRemoteRefs(ctx, url, auth)
	if err != nil {
		return tags.Set{}, err
	}
	set := tags.FromRefs(refs)
	c.logger.Debug("listed remote tags", "url", url, "refs", len(refs), "tags", set.Len())
	return set, nil
}

// RemoteTags lists the tags of a remote configured in the repository, such
// as "origin".
func (c *Client) RemoteTags(ctx context.Context, remoteName string, auth transport.AuthMethod) (tags.Set, error) {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return tags.Set{}, fmt.Errorf("context cancelled: %w", err)
	}

	repo, err := c.open()
	if err != nil {
		return tags.Set{}, err
	}

	remote, err := repo.Remote(remoteName)
	if err != nil {
		if errors.Is(err, gogit.ErrRemoteNotFound) {
			return tags.Set{}, fmt.Errorf("%w: %s", ErrRemoteMissing, remoteName)
		}
		return tags.Set{}, fmt.Errorf("get remote %s: %w", remoteName, err)
	}

	refs, err := listRefs(ctx, remote, auth)
	if err != nil {
		return tags.Set{}, err
	}
	set := tags.FromRefs(refs)
	c.logger.Debug("listed remote tags", "remote", remoteName, "tags", set.Len())
	return set, nil
}

// LocalTags returns the tags stored in the repository.
func (c *Client) LocalTags(ctx context.Context) (tags.Set, error) {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return tags.Set{}, fmt.Errorf("context cancelled: %w", err)
	}

	repo, err := c.open()
	if err != nil {
		return tags.Set{}, err
	}

	iter, err := repo.Tags()
	if err != nil {
		return tags.Set{}, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	var refs []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		refs = append(refs, ref.Name().String())
		return nil
	})
	if err != nil {
		return tags.Set{}, fmt.Errorf("iterate tags: %w", err)
	}

	return tags.FromRefs(refs), nil
}

// FetchTag fetches refs/tags/<tag> from url into the repository.
// Fetching a tag that is already present is not an error.
func (c *Client) FetchTag(ctx context.Context, url, tag string, auth transport.AuthMethod) error {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	if tag == "" {
		return ErrEmptyTag
	}
	if strings.TrimSpace(url) == "" {
		return ErrEmptyRemote
	}

	repo, err := c.open()
	if err != nil {
		return err
	}

	const fetchRemote = "tagrelay-upstream"
	remote := gogit.NewRemote(repo.Storer, &config.RemoteConfig{
		Name: fetchRemote,
		URLs: []string{url},
	})

	ref := tags.Ref(tag)
	err = remote.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: fetchRemote,
		RefSpecs:   []config.RefSpec{config.RefSpec("+" + ref + ":" + ref)},
		Auth:       auth,
		Tags:       gogit.NoTags,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch tag %s: %w", tag, err)
	}

	c.logger.Debug("fetched tag", "tag", tag, "url", url)
	return nil
}

// PushTag pushes refs/tags/<tag> to the named remote. Tags are pushed one at
// a time so a failure affects only that tag.
func (c *Client) PushTag(ctx context.Context, remoteName, tag string, auth transport.AuthMethod) error {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	if tag == "" {
		return ErrEmptyTag
	}
	if remoteName == "" {
		return ErrEmptyRemote
	}

	repo, err := c.open()
	if err != nil {
		return err
	}

	ref := tags.Ref(tag)
	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push tag %s to %s: %w", tag, remoteName, err)
	}

	c.logger.Debug("pushed tag", "tag", tag, "remote", remoteName)
	return nil
}

// ResolveRef resolves ref (for example refs/tags/1.2.3) to a commit hash.
func (c *Client) ResolveRef(ctx context.Context, ref string) (string, error) {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	repo, err := c.open()
	if err != nil {
		return "", err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrRefNotFound, ref, err.Error())
	}

	return hash.String(), nil
}

// IsGitRepo checks if the path is a valid git repository.
// Returns (true, nil) if valid, (false, nil) if not exists, (false, err) if corrupted.
func (c *Client) IsGitRepo(ctx context.Context) (bool, error) {
	// Check context cancellation
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}

	_, err := gogit.PlainOpen(c.repoPath)
	if err == gogit.ErrRepositoryNotExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidRepo, err.Error())
	}
	return true, nil
}

func (c *Client) open() (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(c.repoPath)
	if err == gogit.ErrRepositoryNotExists {
		return nil, fmt.Errorf("%w: %s", ErrNotAGitRepo, c.repoPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

func listRefs(ctx context.Context, remote *gogit.Remote, auth transport.AuthMethod) ([]string, error) {
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{
		Auth:          auth,
		PeelingOption: gogit.AppendPeeled,
	})
	if err != nil {
		// An empty remote has nothing to list.
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, nil
		}
		return nil, fmt.Errorf("list remote refs: %w", err)
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name().String())
	}
	return names, nil
}
