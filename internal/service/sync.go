package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/actions"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/mirror"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/transaction"
)

// Syncer runs one tag mirror pass.
type Syncer interface {
	Sync(ctx context.Context) (*mirror.Result, error)
}

// Dispatcher starts a workflow run on the hosting service.
type Dispatcher interface {
	DispatchWorkflow(ctx context.Context, workflowFile, ref string, inputs map[string]string) error
}

// Publisher runs a publish in-process.
type Publisher interface {
	Execute(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// PublishMode is what a sync does after it pushed new tags.
type PublishMode string

const (
	// PublishNone only reports the outputs.
	PublishNone PublishMode = "none"
	// PublishDispatch starts the publisher workflow for the latest tag.
	PublishDispatch PublishMode = "dispatch"
	// PublishInline publishes the latest tag in this process.
	PublishInline PublishMode = "inline"
)

// ParsePublishMode parses a mode name; empty means PublishNone.
func ParsePublishMode(s string) (PublishMode, error) {
	switch PublishMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PublishNone:
		return PublishNone, nil
	case PublishDispatch:
		return PublishDispatch, nil
	case PublishInline:
		return PublishInline, nil
	default:
		return "", fmt.Errorf("unknown publish mode %q (want none, dispatch or inline)", s)
	}
}

// SyncService orchestrates a mirror run and what follows it.
type SyncService struct {
	syncer     Syncer
	dispatcher Dispatcher
	publisher  Publisher
	stateDir   string
	clock      Clock
	logger     logging.Logger
}

// NewSyncService creates a new sync service with dependency injection.
// dispatcher and publisher may be nil when the matching mode is not used.
func NewSyncService(syncer Syncer, dispatcher Dispatcher, publisher Publisher, stateDir string, clock Clock, logger logging.Logger) *SyncService {
	return &SyncService{
		syncer:     syncer,
		dispatcher: dispatcher,
		publisher:  publisher,
		stateDir:   stateDir,
		clock:      clockOrReal(clock),
		logger:     logging.OrNop(logger),
	}
}

// SyncRequest contains the parameters of a sync run.
type SyncRequest struct {
	Publish PublishMode
	// Workflow and Ref select the workflow run PublishDispatch starts.
	Workflow string
	Ref      string
	// Output receives the outputs when $GITHUB_OUTPUT is not set.
	Output io.Writer
}

// SyncResult contains the results of a sync run.
type SyncResult struct {
	Mirror     *mirror.Result
	Dispatched bool
	Published  *PublishResult
	FinishedAt time.Time
}

// Execute performs the sync. Outputs are emitted even when some tags failed,
// so the tags that did make it across are still reported. Publishing only
// follows a sync in which every tag succeeded.
func (s *SyncService) Execute(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	// 1. Acquire the workspace lock
	lock, err := transaction.AcquireLock(ctx, s.stateDir, transaction.OperationSync)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	// 2. Mirror
	res, syncErr := s.syncer.Sync(ctx)
	if res == nil {
		return nil, syncErr
	}
	result := &SyncResult{Mirror: res}

	// 3. Outputs
	out := req.Output
	if out == nil {
		out = io.Discard
	}
	if err := actions.Emit(out, res.Outputs()); err != nil {
		return result, multierr.Append(syncErr, fmt.Errorf("write outputs: %w", err))
	}

	// 4. Publish the latest tag
	if syncErr == nil && res.HasNewTags && !res.DryRun {
		syncErr = s.publish(ctx, req, result)
	}

	result.FinishedAt = s.clock.Now()
	return result, syncErr
}

func (s *SyncService) publish(ctx context.Context, req SyncRequest, result *SyncResult) error {
	latest := result.Mirror.LatestTag
	switch req.Publish {
	case PublishDispatch:
		if s.dispatcher == nil {
			return fmt.Errorf("dispatch requested but no workflow dispatcher is configured")
		}
		if err := s.dispatcher.DispatchWorkflow(ctx, req.Workflow, req.Ref, map[string]string{"tag": latest}); err != nil {
			return fmt.Errorf("dispatch publisher for %s: %w", latest, err)
		}
		result.Dispatched = true
		s.logger.Info("publisher dispatched", "tag", latest, "workflow", req.Workflow)

	case PublishInline:
		if s.publisher == nil {
			return fmt.Errorf("inline publish requested but no publisher is configured")
		}
		pub, err := s.publisher.Execute(ctx, PublishRequest{Trigger: release.ExplicitTag{Name: latest}})
		result.Published = pub
		if err != nil {
			return fmt.Errorf("publish %s: %w", latest, err)
		}
	}
	return nil
}
