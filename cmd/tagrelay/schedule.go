package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/service"
)

func newScheduleCmd(a *app) *cobra.Command {
	var f syncFlags

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run sync on the configured cron schedule until interrupted",
		Long: `Run "tagrelay sync" on every tick of the config's schedule, for hosts
that are not driven by a CI scheduler. The config is reloaded before each
run. Ticks that arrive while a sync is still running are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			scheduler, err := service.NewScheduler(cfg.Schedule, func(ctx context.Context) error {
				current, err := a.loadConfig(ctx)
				if err != nil {
					return err
				}
				result, err := a.runSync(ctx, current, f)
				if result != nil {
					a.printSyncResult(result)
				}
				return err
			}, a.logger)
			if err != nil {
				return err
			}
			return scheduler.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&f.publish, "publish", string(service.PublishNone), "publish after new tags: none, dispatch or inline")
	cmd.Flags().StringVar(&f.workflow, "workflow", "", "publisher workflow file (default: release.workflow from the config)")
	cmd.Flags().StringVar(&f.ref, "ref", "main", "branch the dispatched workflow runs on")
	return cmd
}
