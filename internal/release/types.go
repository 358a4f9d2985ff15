// Package release publishes a hosted release for a tag and attaches one
// binary archive per matrix target.
//
// A publish run resolves its trigger to a canonical tag ref, creates the
// release (failing if one already exists), and then fans out one
// independent task per target. Each task builds, packages, and uploads its
// archive and records its own outcome; the run fails if any task fails, but
// archives that were uploaded stay attached.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Release and asset errors
var (
	ErrReleaseExists   = errors.New("release already exists")
	ErrReleaseNotFound = errors.New("release not found")
	ErrAssetExists     = errors.New("asset already attached to release")
	ErrTagNotFound     = errors.New("tag does not exist in local repository")
)

// Release is a hosted release object.
type Release struct {
	ID      int64
	Tag     string
	Name    string
	HTMLURL string
	Draft   bool
}

// Asset is a file attached to a release.
type Asset struct {
	ID          int64
	Name        string
	Size        int64
	DownloadURL string
}

// NewRelease describes a release to create.
type NewRelease struct {
	Tag        string
	Name       string
	Body       string
	Draft      bool
	Prerelease bool
}

// ReleaseService is the hosted release API.
type ReleaseService interface {
	// GetReleaseByTag returns ErrReleaseNotFound when no release exists.
	GetReleaseByTag(ctx context.Context, tag string) (*Release, error)
	// CreateRelease returns ErrReleaseExists on conflict.
	CreateRelease(ctx context.Context, r NewRelease) (*Release, error)
	ListAssets(ctx context.Context, releaseID int64) ([]Asset, error)
	UploadAsset(ctx context.Context, releaseID int64, name, path string) (*Asset, error)
	DeleteAsset(ctx context.Context, assetID int64) error
}

// RefResolver resolves refs in the local repository.
type RefResolver interface {
	ResolveRef(ctx context.Context, ref string) (string, error)
}

// ExistingAssetPolicy decides what a task does when its archive is already
// attached to the release, which happens when a run is repeated after a
// partial matrix failure.
type ExistingAssetPolicy string

const (
	// PolicyFail fails the task and leaves the existing asset alone.
	PolicyFail ExistingAssetPolicy = "fail"
	// PolicySkip treats the existing asset as this task's result.
	PolicySkip ExistingAssetPolicy = "skip"
	// PolicyReplace deletes the existing asset and uploads a new one.
	PolicyReplace ExistingAssetPolicy = "replace"
)

// ParseExistingAssetPolicy parses a policy name; empty means PolicyFail.
func ParseExistingAssetPolicy(s string) (ExistingAssetPolicy, error) {
	switch ExistingAssetPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFail:
		return PolicyFail, nil
	case PolicySkip:
		return PolicySkip, nil
	case PolicyReplace:
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("unknown existing-asset policy %q (want fail, skip or replace)", s)
	}
}

// TaskState is the lifecycle state of one matrix task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "in_progress"
	TaskCompleted TaskState = "completed"
	TaskSkipped   TaskState = "skipped"
	TaskFailed    TaskState = "failed"
)

// TaskResult is the recorded outcome of one matrix task.
type TaskResult struct {
	Target    Target
	State     TaskState
	AssetID   int64
	AssetName string
	Err       error
}

// TaskError ties a task failure to its target.
type TaskError struct {
	Target Target
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("target %s: %v", e.Target.Triple, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Recorder persists task state changes as they happen. Implementations must
// be safe for concurrent use.
type Recorder interface {
	Record(result TaskResult) error
}

type nopRecorder struct{}

func (nopRecorder) Record(TaskResult) error { return nil }
