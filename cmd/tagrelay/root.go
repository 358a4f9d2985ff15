package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/binary"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/config"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/git"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/github"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/platform"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/service"
)

// Settings resolved through viper. Flag-backed keys also read
// TAGRELAY_<KEY>; the rest are bound to the CI runner's variables.
const (
	keyConfig            = "config"
	keyRepo              = "repo"
	keyStateDir          = "state-dir"
	keyCacheDir          = "cache-dir"
	keyLogLevel          = "log-level"
	keyGitHubToken       = "github-token"
	keyPushToken         = "push-token"
	keySigningPassphrase = "signing-passphrase"
	keyGitHubRef         = "github-ref"
	keyRepository        = "github-repository"
	keyAPIURL            = "api-url"
)

// hostTarget selects the matrix entries built on the running machine.
const hostTarget = "host"

// app carries the state shared by every command.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger logging.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr, logger: logging.Nop()}

	root := &cobra.Command{
		Use:   "tagrelay",
		Short: "Mirror upstream tags into a fork and publish binary releases",
		Long: `tagrelay keeps a fork's tags in step with its upstream repository and
publishes a release with one binary archive per target platform for each
mirrored release tag.

Secrets are read from the environment only: GITHUB_TOKEN for the release
API, TAGRELAY_PUSH_TOKEN for pushing tags, and TAGRELAY_SIGNING_PASSPHRASE
for the archive signing key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(a.v.GetString(keyLogLevel))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String(keyConfig, config.DefaultFileName, "path of the tagrelay.lua config")
	flags.String(keyRepo, ".", "local checkout of the fork")
	flags.String(keyStateDir, ".tagrelay", "directory holding locks, run ledgers and archives")
	flags.String(keyLogLevel, logging.LevelInfo, "log level: debug, info, warn, error or none")
	a.bind(flags)

	root.AddCommand(
		newInitCmd(a),
		newSyncCmd(a),
		newPublishCmd(a),
		newBuildCmd(a),
		newStatusCmd(a),
		newVerifyCmd(a),
		newScheduleCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) bind(flags *pflag.FlagSet) {
	a.v.SetEnvPrefix("TAGRELAY")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	_ = a.v.BindEnv(keyGitHubToken, "GITHUB_TOKEN")
	_ = a.v.BindEnv(keyPushToken, "TAGRELAY_PUSH_TOKEN", "GITHUB_TOKEN")
	_ = a.v.BindEnv(keySigningPassphrase, "TAGRELAY_SIGNING_PASSPHRASE")
	_ = a.v.BindEnv(keyGitHubRef, "GITHUB_REF")
	_ = a.v.BindEnv(keyRepository, "GITHUB_REPOSITORY")
	_ = a.v.BindEnv(keyAPIURL, "GITHUB_API_URL")
}

func (a *app) stateDir() string {
	return a.v.GetString(keyStateDir)
}

// loadConfig parses the config file with the running machine's platform
// table.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	parser := config.NewParser(platform.NewDetector()).WithLogger(a.logger)
	cfg, err := parser.ParseFile(ctx, a.v.GetString(keyConfig))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (a *app) git() *git.Client {
	return git.NewClient(a.v.GetString(keyRepo)).WithLogger(a.logger)
}

// githubClient creates the API client for the fork. The repository comes
// from the config, falling back to GITHUB_REPOSITORY.
func (a *app) githubClient(ctx context.Context, cfg *config.Config) (*github.Client, error) {
	repository := cfg.Origin.Repository
	if repository == "" {
		repository = a.v.GetString(keyRepository)
	}
	owner, repo, err := github.SplitRepository(repository)
	if err != nil {
		return nil, fmt.Errorf("origin repository (set origin.repository or GITHUB_REPOSITORY): %w", err)
	}
	return github.NewClient(ctx, github.Options{
		Owner:   owner,
		Repo:    repo,
		Token:   a.v.GetString(keyGitHubToken),
		BaseURL: a.v.GetString(keyAPIURL),
		Logger:  a.logger,
	})
}

// publishService wires the matrix runner: the build command from the
// config, the archive packager, and the optional signing key.
func (a *app) publishService(cfg *config.Config, gh *github.Client) (*service.PublishService, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	workDir := a.v.GetString(keyRepo)
	if cfg.Build.WorkDir != "" {
		workDir = filepath.Join(workDir, cfg.Build.WorkDir)
	}
	builder := release.NewCommandBuilder(strings.Fields(cfg.Build.Command), cfg.Build.OutputDir, workDir, a.logger)
	builder.Env = config.SortedEnv(cfg.Build.Env)
	for _, secret := range []string{a.v.GetString(keyGitHubToken), a.v.GetString(keyPushToken), a.v.GetString(keySigningPassphrase)} {
		if secret != "" {
			builder.Secrets = append(builder.Secrets, secret)
		}
	}

	packager := release.NewArchivePackager(cfg.Release.ArchivePrefix, cfg.Release.Binaries, filepath.Join(a.stateDir(), "dist"))
	packager.Checksums = cfg.Release.Checksums
	if cfg.Signing.Key != "" {
		signer, err := binary.NewSignerFromFile(cfg.Signing.Key, []byte(a.v.GetString(keySigningPassphrase)))
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		packager.Signer = signer
	}

	return service.NewPublishService(service.PublishConfig{
		Releases:    gh,
		Refs:        a.git(),
		Builder:     builder,
		Packager:    packager,
		Policy:      policy,
		Parallelism: cfg.Release.Parallelism,
		Options: release.PublisherOptions{
			Draft:        cfg.Release.Draft,
			Prerelease:   cfg.Release.Prerelease,
			NameTemplate: cfg.Release.NameTemplate,
		},
		Matrix:   cfg.Targets(),
		StateDir: a.stateDir(),
		Logger:   a.logger,
	})
}

// selectTargets resolves --target values against the matrix. "host" expands
// to the entries the running machine builds.
func (a *app) selectTargets(ctx context.Context, matrix []release.Target, names []string) ([]release.Target, error) {
	var triples []string
	var out []release.Target
	for _, n := range names {
		if n != hostTarget {
			triples = append(triples, n)
			continue
		}
		info, err := platform.NewDetector().Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("detect platform: %w", err)
		}
		host, err := info.HostTargets(matrix)
		if err != nil {
			return nil, err
		}
		out = append(out, host...)
	}
	if len(triples) == 0 {
		if len(out) == 0 {
			return matrix, nil
		}
		return out, nil
	}
	named, err := release.SelectTargets(matrix, triples)
	if err != nil {
		return nil, err
	}
	return append(out, named...), nil
}
