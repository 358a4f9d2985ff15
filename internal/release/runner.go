package release

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
)

// DefaultParallelism bounds how many matrix tasks run at once.
const DefaultParallelism = 4

// MatrixRunner fans out one build-package-upload task per target.
//
// Tasks are independent: a failing task never cancels its siblings, and
// archives that were uploaded stay on the release. Every task yields a
// TaskResult in target order.
type MatrixRunner struct {
	releases    ReleaseService
	builder     Builder
	packager    Packager
	recorder    Recorder
	policy      ExistingAssetPolicy
	parallelism int
	logger      logging.Logger
}

// RunnerOption configures a MatrixRunner.
type RunnerOption func(*MatrixRunner)

// WithRecorder persists task state changes.
func WithRecorder(r Recorder) RunnerOption {
	return func(m *MatrixRunner) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithPolicy sets the existing-asset policy.
func WithPolicy(p ExistingAssetPolicy) RunnerOption {
	return func(m *MatrixRunner) {
		if p != "" {
			m.policy = p
		}
	}
}

// WithParallelism bounds concurrent tasks; values below 1 are ignored.
func WithParallelism(n int) RunnerOption {
	return func(m *MatrixRunner) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(l logging.Logger) RunnerOption {
	return func(m *MatrixRunner) {
		m.logger = logging.OrNop(l)
	}
}

// NewMatrixRunner creates a runner.
func NewMatrixRunner(releases ReleaseService, builder Builder, packager Packager, opts ...RunnerOption) *MatrixRunner {
	m := &MatrixRunner{
		releases:    releases,
		builder:     builder,
		packager:    packager,
		recorder:    nopRecorder{},
		policy:      PolicyFail,
		parallelism: DefaultParallelism,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes the matrix against rel. The returned error combines one
// TaskError per failed task; the results slice is always complete.
func (m *MatrixRunner) Run(ctx context.Context, rel *Release, ref string, targets []Target) ([]TaskResult, error) {
	if rel == nil {
		return nil, fmt.Errorf("release is required")
	}

	existing, err := m.releases.ListAssets(ctx, rel.ID)
	if err != nil {
		return nil, fmt.Errorf("list assets of release %s: %w", rel.Tag, err)
	}
	byName := make(map[string]Asset, len(existing))
	for _, a := range existing {
		byName[a.Name] = a
	}

	results := make([]TaskResult, len(targets))
	for i, t := range targets {
		results[i] = TaskResult{Target: t, State: TaskPending, AssetName: m.packager.AssetName(t)}
		m.record(results[i])
	}

	var g errgroup.Group
	g.SetLimit(m.parallelism)

	for i := range targets {
		g.Go(func() error {
			results[i] = m.runTask(ctx, rel, ref, results[i], byName)
			m.record(results[i])
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, r := range results {
		if r.State == TaskFailed {
			errs = multierr.Append(errs, &TaskError{Target: r.Target, Err: r.Err})
		}
	}
	return results, errs
}

func (m *MatrixRunner) runTask(ctx context.Context, rel *Release, ref string, res TaskResult, existing map[string]Asset) TaskResult {
	target := res.Target
	fail := func(err error) TaskResult {
		m.logger.Error("matrix task failed", "target", target.Triple, "error", err)
		res.State = TaskFailed
		res.Err = err
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	prior, hasPrior := existing[res.AssetName]
	if hasPrior {
		switch m.policy {
		case PolicySkip:
			m.logger.Info("asset already attached, skipping", "target", target.Triple, "asset", res.AssetName)
			res.State = TaskSkipped
			res.AssetID = prior.ID
			return res
		case PolicyReplace:
		default:
			return fail(fmt.Errorf("%w: %s", ErrAssetExists, res.AssetName))
		}
	}

	res.State = TaskRunning
	m.record(res)

	binDir, err := m.builder.Build(ctx, target, ref)
	if err != nil {
		return fail(err)
	}

	artifact, err := m.packager.Package(ctx, target, binDir)
	if err != nil {
		return fail(err)
	}

	// Stale sidecars are replaced regardless of policy.
	for _, path := range artifact.Sidecars {
		name := filepath.Base(path)
		if _, err := m.upload(ctx, rel, name, path, existing); err != nil {
			return fail(err)
		}
	}

	asset, err := m.upload(ctx, rel, artifact.Name, artifact.Path, existing)
	if err != nil {
		return fail(err)
	}

	m.logger.Info("uploaded archive", "target", target.Triple, "asset", asset.Name, "size", asset.Size)
	res.State = TaskCompleted
	res.AssetID = asset.ID
	res.AssetName = asset.Name
	return res
}

// upload replaces any asset of the same name and attaches path.
func (m *MatrixRunner) upload(ctx context.Context, rel *Release, name, path string, existing map[string]Asset) (*Asset, error) {
	if prior, ok := existing[name]; ok {
		if err := m.releases.DeleteAsset(ctx, prior.ID); err != nil {
			return nil, fmt.Errorf("delete existing asset %s: %w", name, err)
		}
	}
	asset, err := m.releases.UploadAsset(ctx, rel.ID, name, path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	return asset, nil
}

func (m *MatrixRunner) record(r TaskResult) {
	if err := m.recorder.Record(r); err != nil {
		m.logger.Warn("could not record task state", "target", r.Target.Triple, "state", r.State, "error", err)
	}
}
