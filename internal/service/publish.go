// Package service provides the high-level tagrelay operations behind the
// commands: sync, publish, build, status and verify.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/transaction"
)

// ErrNothingToResume is returned by a resumed run whose ledger has no
// unfinished targets.
var ErrNothingToResume = errors.New("nothing to resume")

// PublishConfig wires a PublishService.
type PublishConfig struct {
	Releases    release.ReleaseService
	Refs        release.RefResolver
	Builder     release.Builder
	Packager    release.Packager
	Policy      release.ExistingAssetPolicy
	Parallelism int
	Options     release.PublisherOptions
	// Matrix is used when a request names no targets.
	Matrix []release.Target
	// StateDir holds the lock and the run ledgers.
	StateDir string
	Clock    Clock
	Logger   logging.Logger
}

// PublishService orchestrates publish and build runs.
type PublishService struct {
	cfg    PublishConfig
	clock  Clock
	logger logging.Logger
}

// NewPublishService creates a new publish service with dependency injection.
func NewPublishService(cfg PublishConfig) (*PublishService, error) {
	if cfg.Releases == nil {
		return nil, fmt.Errorf("release service is required")
	}
	if cfg.Builder == nil || cfg.Packager == nil {
		return nil, fmt.Errorf("builder and packager are required")
	}
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if len(cfg.Matrix) == 0 {
		cfg.Matrix = release.DefaultMatrix
	}
	return &PublishService{
		cfg:    cfg,
		clock:  clockOrReal(cfg.Clock),
		logger: logging.OrNop(cfg.Logger),
	}, nil
}

// PublishRequest contains the parameters of a publish or build run.
type PublishRequest struct {
	Trigger release.Trigger
	// Targets restricts the run; empty runs the whole matrix.
	Targets []release.Target
	// BuildOnly runs against the existing release instead of creating it.
	BuildOnly bool
	// Resume reruns the unfinished targets of the newest ledger for the tag.
	// It implies BuildOnly.
	Resume bool
}

// PublishResult contains the results of a publish or build run.
type PublishResult struct {
	*release.PublishResult
	Run *transaction.RunTxn
	// Finished is true when every target of the run completed or was skipped.
	Finished   bool
	FinishedAt time.Time
}

// Execute performs the run. The ledger is persisted before any task starts
// and after every task state change.
func (s *PublishService) Execute(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	resolved, err := release.ResolveTrigger(req.Trigger)
	if err != nil {
		return nil, err
	}

	op := transaction.OperationPublish
	if req.BuildOnly || req.Resume {
		op = transaction.OperationBuild
	}

	// 1. Acquire the workspace lock
	lock, err := transaction.AcquireLock(ctx, s.cfg.StateDir, op)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", op, err)
	}
	defer func() { _ = lock.Release() }()

	// 2. Pick the targets
	targets := req.Targets
	if len(targets) == 0 {
		targets = s.cfg.Matrix
	}
	if req.Resume {
		prev, err := transaction.Latest(s.cfg.StateDir, resolved.Tag)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", resolved.Tag, err)
		}
		targets = prev.Unfinished()
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: run %s for %s is complete", ErrNothingToResume, prev.ID, resolved.Tag)
		}
		s.logger.Info("resuming run", "tag", resolved.Tag, "previous", prev.ID, "targets", len(targets))
	}

	// 3. Open the ledger
	run := transaction.NewRun(op, resolved.Tag, targets)
	if err := run.Persist(s.cfg.StateDir); err != nil {
		return nil, fmt.Errorf("persist run ledger: %w", err)
	}

	// 4. Run the matrix
	runner := release.NewMatrixRunner(s.cfg.Releases, s.cfg.Builder, s.cfg.Packager,
		release.WithRecorder(run),
		release.WithPolicy(s.cfg.Policy),
		release.WithParallelism(s.cfg.Parallelism),
		release.WithLogger(s.logger),
	)
	publisher := release.NewPublisher(s.cfg.Releases, s.cfg.Refs, runner, s.cfg.Options, s.logger)

	var res *release.PublishResult
	if op == transaction.OperationBuild {
		res, err = publisher.BuildTargets(ctx, req.Trigger, targets)
	} else {
		res, err = publisher.Publish(ctx, req.Trigger, targets)
	}

	if res != nil && res.Release != nil {
		if serr := run.SetRelease(res.Release.ID); serr != nil {
			s.logger.Warn("failed to record release id", "run", run.ID, "error", serr)
		}
	}

	result := &PublishResult{
		PublishResult: res,
		Run:           run,
		Finished:      run.Done(),
		FinishedAt:    s.clock.Now(),
	}
	s.logger.Info("run finished", "tag", resolved.Tag, "run", run.ID, "operation", string(op), "done", result.Finished)
	return result, err
}
