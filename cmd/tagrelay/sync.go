package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/config"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/git"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/mirror"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/service"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

type syncFlags struct {
	dryRun   bool
	publish  string
	workflow string
	ref      string
}

func newSyncCmd(a *app) *cobra.Command {
	var f syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror upstream tags into the fork",
		Long: `Push every upstream tag the fork lacks. Step outputs has_new_tags,
latest_tag and synced_tags are written to $GITHUB_OUTPUT, or to stdout
outside a workflow.

With --publish=dispatch the publisher workflow is started for the latest
mirrored tag; --publish=inline builds and publishes it in this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.runSync(cmd.Context(), cfg, f)
			if result != nil {
				a.printSyncResult(result)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "report missing tags without fetching or pushing")
	cmd.Flags().StringVar(&f.publish, "publish", string(service.PublishNone), "publish after new tags: none, dispatch or inline")
	cmd.Flags().StringVar(&f.workflow, "workflow", "", "publisher workflow file (default: release.workflow from the config)")
	cmd.Flags().StringVar(&f.ref, "ref", "main", "branch the dispatched workflow runs on")
	return cmd
}

// runSync wires and executes one sync. The scheduler reuses it.
func (a *app) runSync(ctx context.Context, cfg *config.Config, f syncFlags) (*service.SyncResult, error) {
	mode, err := service.ParsePublishMode(f.publish)
	if err != nil {
		return nil, err
	}

	syncer, err := mirror.NewSyncer(a.git(), mirror.Options{
		UpstreamURL: cfg.Upstream.URL,
		Remote:      cfg.Origin.Remote,
		PushAuth:    git.TokenAuth(a.v.GetString(keyPushToken)),
		DryRun:      f.dryRun,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	var (
		dispatcher service.Dispatcher
		publisher  service.Publisher
	)
	if mode != service.PublishNone && !f.dryRun {
		gh, err := a.githubClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dispatcher = gh
		if mode == service.PublishInline {
			svc, err := a.publishService(cfg, gh)
			if err != nil {
				return nil, err
			}
			publisher = svc
		}
	}

	workflow := f.workflow
	if workflow == "" {
		workflow = cfg.Release.Workflow
	}

	svc := service.NewSyncService(syncer, dispatcher, publisher, a.stateDir(), nil, a.logger)
	return svc.Execute(ctx, service.SyncRequest{
		Publish:  mode,
		Workflow: workflow,
		Ref:      f.ref,
		Output:   a.stdout,
	})
}

func (a *app) printSyncResult(r *service.SyncResult) {
	m := r.Mirror
	switch {
	case m.DryRun:
		fmt.Fprintf(a.stderr, "Dry run: %d tag(s) missing from the fork\n", m.Missing.Len())
		for _, t := range tags.SortByVersion(m.Missing) {
			fmt.Fprintf(a.stderr, "  %s\n", t)
		}
	case m.Missing.IsEmpty():
		fmt.Fprintln(a.stderr, "✓ Fork is up to date")
	default:
		fmt.Fprintf(a.stderr, "✓ Mirrored %d of %d tag(s)\n", m.Synced.Len(), m.Missing.Len())
		for _, f := range m.Failed {
			fmt.Fprintf(a.stderr, "✗ %s: %v\n", f.Tag, f.Err)
		}
		if !m.InSync {
			fmt.Fprintln(a.stderr, "Fork is still behind upstream; the next sync retries the failed tags.")
		}
	}
	if r.Dispatched {
		fmt.Fprintf(a.stderr, "✓ Publisher dispatched for %s\n", m.LatestTag)
	}
	if r.Published != nil && r.Published.PublishResult != nil && r.Published.Release != nil {
		fmt.Fprintf(a.stderr, "✓ Published %s\n", r.Published.Release.HTMLURL)
	}
}
