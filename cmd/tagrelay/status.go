package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/drift"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/git"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/service"
)

func newStatusCmd(a *app) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report tags and releases that are out of step with upstream",
		Long: `Compare the upstream tags with the fork's tags, releases and release
assets, and print the commands that repair any drift. Exits with status 1
when drift is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(ctx)
			if err != nil {
				return err
			}
			gh, err := a.githubClient(ctx, cfg)
			if err != nil {
				return err
			}

			svc := service.NewStatusService(service.StatusConfig{
				Tags:          a.git(),
				Releases:      gh,
				UpstreamURL:   cfg.Upstream.URL,
				Remote:        cfg.Origin.Remote,
				OriginAuth:    git.TokenAuth(a.v.GetString(keyPushToken)),
				ArchivePrefix: cfg.Release.ArchivePrefix,
				Matrix:        cfg.Targets(),
			})
			result, err := svc.Execute(ctx, service.StatusRequest{Since: since})
			if err != nil {
				return err
			}

			fmt.Fprint(a.stdout, drift.FormatDriftReport(result.Results))
			if len(result.Repairs) > 0 {
				fmt.Fprintln(a.stdout)
				fmt.Fprint(a.stdout, drift.FormatRepairPlan(result.Repairs))
			}
			if result.HasDrift() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "ignore release tags older than this version")
	return cmd
}
