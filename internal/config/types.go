package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// Config is the evaluated tagrelay.lua.
type Config struct {
	Upstream UpstreamConfig
	Origin   OriginConfig
	Release  ReleaseConfig
	Build    BuildConfig
	// Matrix restricts the build to a subset of release.DefaultMatrix when
	// non-empty.
	Matrix  []release.Target
	Signing SigningConfig
	// Schedule is the standard five-field cron expression of the mirror.
	Schedule string
	// CacheDir holds downloaded release assets for verify.
	CacheDir string
}

// UpstreamConfig names the repository tags are mirrored from.
type UpstreamConfig struct {
	URL string
}

// OriginConfig names the fork tags are pushed to and releases are
// published on.
type OriginConfig struct {
	// Remote is the git remote name of the fork in the local checkout.
	Remote string
	// Repository is "owner/repo" on the hosting service. Empty falls back
	// to GITHUB_REPOSITORY.
	Repository string
}

// ReleaseConfig controls release creation and archive packaging.
type ReleaseConfig struct {
	ArchivePrefix string
	Binaries      []string
	OnExisting    string
	Draft         bool
	Prerelease    bool
	NameTemplate  string
	// Workflow is the publisher workflow file "sync --publish=dispatch"
	// triggers.
	Workflow    string
	Checksums   bool
	Parallelism int
}

// BuildConfig describes the external build command. An empty Command means
// binaries are already present in OutputDir.
type BuildConfig struct {
	Command   string
	OutputDir string
	WorkDir   string
	Env       map[string]string
}

// SigningConfig points at PGP key files. Key signs archives on publish;
// PublicKey verifies them.
type SigningConfig struct {
	Key       string
	PublicKey string
}

// Default returns a Config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Origin.Remote == "" {
		c.Origin.Remote = DefaultOriginRemote
	}
	if c.Release.ArchivePrefix == "" {
		c.Release.ArchivePrefix = release.DefaultArchivePrefix
	}
	if len(c.Release.Binaries) == 0 {
		c.Release.Binaries = append([]string(nil), release.DefaultBinaries...)
	}
	if c.Release.OnExisting == "" {
		c.Release.OnExisting = string(release.PolicyFail)
	}
	if c.Release.NameTemplate == "" {
		c.Release.NameTemplate = DefaultNameTemplate
	}
	if c.Release.Workflow == "" {
		c.Release.Workflow = DefaultWorkflow
	}
	if c.Release.Parallelism == 0 {
		c.Release.Parallelism = release.DefaultParallelism
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
}

// Targets returns the configured matrix, or the default one.
func (c *Config) Targets() []release.Target {
	if len(c.Matrix) > 0 {
		return c.Matrix
	}
	return release.DefaultMatrix
}

// Policy returns the parsed existing-asset policy.
func (c *Config) Policy() (release.ExistingAssetPolicy, error) {
	return release.ParseExistingAssetPolicy(c.Release.OnExisting)
}

// Validate checks a Config after defaults have been applied.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return &ValidationError{Field: "upstream.url", Message: "is required"}
	}
	if err := validateGitRemote(c.Upstream.URL); err != nil {
		return &ValidationError{Field: "upstream.url", Message: err.Error()}
	}

	if !remoteNamePattern.MatchString(c.Origin.Remote) {
		return &ValidationError{Field: "origin.remote", Message: fmt.Sprintf("invalid remote name %q", c.Origin.Remote)}
	}
	if c.Origin.Repository != "" && !repositoryPattern.MatchString(c.Origin.Repository) {
		return &ValidationError{Field: "origin.repository", Message: fmt.Sprintf("expected owner/repo, got %q", c.Origin.Repository)}
	}

	if !namePattern.MatchString(c.Release.ArchivePrefix) {
		return &ValidationError{Field: "release.archive_prefix", Message: fmt.Sprintf("invalid archive prefix %q", c.Release.ArchivePrefix)}
	}
	if len(c.Release.Binaries) > MaxBinaryCount {
		return &ValidationError{
			Field:   "release.binaries",
			Message: fmt.Sprintf("too many binaries (%d), maximum is %d", len(c.Release.Binaries), MaxBinaryCount),
		}
	}
	seen := make(map[string]bool, len(c.Release.Binaries))
	for i, b := range c.Release.Binaries {
		if !namePattern.MatchString(b) {
			return &ValidationError{Field: fmt.Sprintf("release.binaries[%d]", i), Message: fmt.Sprintf("invalid binary name %q", b)}
		}
		if seen[b] {
			return &ValidationError{Field: fmt.Sprintf("release.binaries[%d]", i), Message: fmt.Sprintf("duplicate binary %q", b)}
		}
		seen[b] = true
	}
	if _, err := c.Policy(); err != nil {
		return &ValidationError{Field: "release.on_existing", Message: err.Error()}
	}
	if !strings.HasSuffix(c.Release.Workflow, ".yml") && !strings.HasSuffix(c.Release.Workflow, ".yaml") {
		return &ValidationError{Field: "release.workflow", Message: fmt.Sprintf("expected a workflow file name, got %q", c.Release.Workflow)}
	}
	if c.Release.Parallelism < 1 || c.Release.Parallelism > MaxParallelism {
		return &ValidationError{
			Field:   "release.parallelism",
			Message: fmt.Sprintf("must be between 1 and %d (got %d)", MaxParallelism, c.Release.Parallelism),
		}
	}

	if err := validateRelativePath(c.Build.OutputDir); err != nil {
		return &ValidationError{Field: "build.output_dir", Message: err.Error()}
	}
	for k := range c.Build.Env {
		if !envNamePattern.MatchString(k) {
			return &ValidationError{Field: "build.env", Message: fmt.Sprintf("invalid variable name %q", k)}
		}
	}

	if len(c.Matrix) > MaxMatrixSize {
		return &ValidationError{
			Field:   "matrix",
			Message: fmt.Sprintf("too many targets (%d), maximum is %d", len(c.Matrix), MaxMatrixSize),
		}
	}
	if len(c.Matrix) > 0 {
		if err := release.ValidateMatrix(c.Matrix); err != nil {
			return &ValidationError{Field: "matrix", Message: err.Error()}
		}
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return &ValidationError{Field: "schedule", Message: err.Error()}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	namePattern       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
	remoteNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,127}$`)
	repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
	envNamePattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// validateRelativePath rejects absolute paths and traversal. Empty is
// allowed. Placeholders such as {target} are left in place.
func validateRelativePath(path string) error {
	if path == "" {
		return nil
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("absolute paths not allowed: %s", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	}
	return nil
}

// validateGitRemote validates a git remote URL. HTTPS, SSH (both
// ssh:// and scp-like git@host:path), file:// and absolute local paths are
// accepted.
func validateGitRemote(remote string) error {
	if filepath.IsAbs(remote) {
		return nil
	}
	if strings.HasPrefix(remote, "git@") {
		if parts := strings.SplitN(remote, ":", 2); len(parts) != 2 || parts[1] == "" {
			return fmt.Errorf("invalid SSH git URL format")
		}
		return nil
	}

	u, err := url.Parse(remote)
	if err != nil {
		return fmt.Errorf("invalid git URL: %w", err)
	}

	switch u.Scheme {
	case "https", "http", "ssh":
		if u.Host == "" {
			return fmt.Errorf("git URL has no host: %s", remote)
		}
	case "file":
	default:
		return fmt.Errorf("git URL must use https, ssh or file scheme (got: %q)", u.Scheme)
	}
	return nil
}
