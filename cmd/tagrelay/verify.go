package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/binary"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/service"
)

// assetMediaType makes the asset API endpoint return the raw file.
const assetMediaType = "application/octet-stream"

func newVerifyCmd(a *app) *cobra.Command {
	var (
		tag        string
		targets    []string
		installDir string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Download a release's archives and check their checksums and signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			selected, err := a.selectTargets(ctx, cfg.Targets(), targets)
			if err != nil {
				return err
			}
			gh, err := a.githubClient(ctx, cfg)
			if err != nil {
				return err
			}

			cacheDir := cfg.CacheDir
			if cacheDir == "" {
				cacheDir = a.v.GetString(keyCacheDir)
			}
			if cacheDir == "" {
				cacheDir = filepath.Join(a.stateDir(), "cache")
			}
			manager, err := binary.NewManager(binary.Config{
				CacheDir:    cacheDir,
				Token:       a.v.GetString(keyGitHubToken),
				KeyringPath: cfg.Signing.PublicKey,
				Accept:      assetMediaType,
			})
			if err != nil {
				return err
			}

			svc := service.NewVerifyService(gh, manager, cfg.Release.ArchivePrefix, cfg.Release.Binaries, a.logger)
			results, err := svc.Execute(ctx, service.VerifyRequest{
				Tag:        tag,
				Targets:    selected,
				InstallDir: installDir,
			})
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(a.stdout, "✗ %s  %v\n", r.Asset, r.Err)
					continue
				}
				fmt.Fprintf(a.stdout, "✓ %s  %s\n", r.Asset, r.Result.Verified)
				for _, p := range r.Installed {
					fmt.Fprintf(a.stdout, "    installed %s\n", p)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "release tag to verify")
	cmd.Flags().StringSliceVar(&targets, "target", nil, `target triples to verify, or "host" (default: the whole matrix)`)
	cmd.Flags().StringVar(&installDir, "install", "", "extract verified binaries into DIR/<triple>")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}
