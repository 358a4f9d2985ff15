package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/config"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/git"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/github"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		upstream   string
		repository string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter tagrelay.lua",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.v.GetString(keyConfig)
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("stat %s: %w", path, err)
				}
			}

			cfg := config.Default()
			cfg.Upstream.URL = upstreamURL(upstream)
			cfg.Origin.Repository = repository
			if err := cfg.Validate(); err != nil {
				return err
			}

			content, err := config.NewGenerator().Generate(cfg)
			if err != nil {
				return fmt.Errorf("generate config: %w", err)
			}
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			if err := os.MkdirAll(a.stateDir(), 0755); err != nil {
				return fmt.Errorf("create state directory: %w", err)
			}

			fmt.Fprintf(a.stdout, "✓ Wrote %s\n", path)
			fmt.Fprintln(a.stdout)
			fmt.Fprintln(a.stdout, "Next steps:")
			fmt.Fprintln(a.stdout, "  tagrelay status         Compare the fork with upstream")
			fmt.Fprintln(a.stdout, "  tagrelay sync --dry-run Show the tags a sync would mirror")
			return nil
		},
	}

	cmd.Flags().StringVar(&upstream, "upstream", "", "URL or owner/repo of the repository to mirror tags from")
	cmd.Flags().StringVar(&repository, "repository", "", "owner/repo of the fork (default: $GITHUB_REPOSITORY at run time)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	_ = cmd.MarkFlagRequired("upstream")
	return cmd
}

// upstreamURL expands an owner/repo shorthand to its HTTPS clone URL.
func upstreamURL(s string) string {
	if strings.Contains(s, "://") || strings.HasPrefix(s, "git@") || filepath.IsAbs(s) {
		return s
	}
	if owner, repo, err := github.SplitRepository(s); err == nil {
		return git.RemoteURL(owner, repo)
	}
	return s
}
