package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/actions"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/service"
)

type publishFlags struct {
	tag     string
	targets []string
	resume  bool
}

func newPublishCmd(a *app) *cobra.Command {
	var f publishFlags

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Create the release for a tag and upload one archive per target",
		Long: `Resolve the release tag from --tag, or from $GITHUB_REF when the
workflow was started by a tag push, create its release and run the build
matrix. Outputs tag, release_id and release_url are written to
$GITHUB_OUTPUT.

--resume reruns only the targets the last run for the tag left unfinished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPublish(cmd, f, false)
		},
	}

	cmd.Flags().StringVar(&f.tag, "tag", "", "release tag (default: the tag in $GITHUB_REF)")
	cmd.Flags().StringSliceVar(&f.targets, "target", nil, `target triples to build, or "host" (default: the whole matrix)`)
	cmd.Flags().BoolVar(&f.resume, "resume", false, "rerun the unfinished targets of the last run")
	return cmd
}

func newBuildCmd(a *app) *cobra.Command {
	var f publishFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and upload archives to an existing release",
		Long: `Build the given targets for a tag whose release already exists. This
is the per-runner half of a matrix workflow: one job creates the release
with "tagrelay publish --target host" and the others attach their archives.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPublish(cmd, f, true)
		},
	}

	cmd.Flags().StringVar(&f.tag, "tag", "", "release tag (default: the tag in $GITHUB_REF)")
	cmd.Flags().StringSliceVar(&f.targets, "target", nil, `target triples to build, or "host"`)
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func (a *app) runPublish(cmd *cobra.Command, f publishFlags, buildOnly bool) error {
	ctx := cmd.Context()
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	trigger, err := release.TriggerFor(f.tag, a.v.GetString(keyGitHubRef))
	if err != nil {
		return err
	}

	var targets []release.Target
	if len(f.targets) > 0 {
		if targets, err = a.selectTargets(ctx, cfg.Targets(), f.targets); err != nil {
			return err
		}
	}

	gh, err := a.githubClient(ctx, cfg)
	if err != nil {
		return err
	}
	svc, err := a.publishService(cfg, gh)
	if err != nil {
		return err
	}

	result, runErr := svc.Execute(ctx, service.PublishRequest{
		Trigger:   trigger,
		Targets:   targets,
		BuildOnly: buildOnly,
		Resume:    f.resume,
	})
	if result != nil {
		a.printPublishResult(result)
		if err := emitPublishOutputs(a, result); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func emitPublishOutputs(a *app, r *service.PublishResult) error {
	if r.PublishResult == nil || r.Release == nil {
		return nil
	}
	return actions.Emit(a.stdout, map[string]string{
		"tag":         r.Resolved.Tag,
		"release_id":  strconv.FormatInt(r.Release.ID, 10),
		"release_url": r.Release.HTMLURL,
	})
}

func (a *app) printPublishResult(r *service.PublishResult) {
	if r.PublishResult == nil {
		return
	}
	for _, t := range r.Tasks {
		switch t.State {
		case release.TaskCompleted:
			fmt.Fprintf(a.stderr, "✓ %s  %s\n", t.Target.Triple, t.AssetName)
		case release.TaskSkipped:
			fmt.Fprintf(a.stderr, "- %s  %s (exists)\n", t.Target.Triple, t.AssetName)
		case release.TaskFailed:
			fmt.Fprintf(a.stderr, "✗ %s  %v\n", t.Target.Triple, t.Err)
		}
	}
	if failed := r.Failed(); len(failed) > 0 && r.Run != nil {
		fmt.Fprintf(a.stderr, "\n%d target(s) failed. To retry them:\n  tagrelay publish --tag %s --resume\n", len(failed), r.Resolved.Tag)
	}
}
