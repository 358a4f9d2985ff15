// Package transaction provides the workspace lock and the persisted run
// ledger of publish and build runs.
//
// The ledger records the state of every matrix target as it changes, so an
// interrupted or partially failed run can be inspected with "status" and
// resumed with "publish --resume".
package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// ErrNoRun is returned when no ledger exists for a tag.
var ErrNoRun = errors.New("no recorded run")

// Operation is the kind of run a lock or ledger belongs to.
type Operation string

const (
	OperationSync    Operation = "sync"
	OperationPublish Operation = "publish"
	OperationBuild   Operation = "build"
)

const ledgerVersion = 1

// RunTxn is the ledger of one publish or build run. It implements
// release.Recorder; each Record call persists the ledger when a directory
// is attached with Persist.
type RunTxn struct {
	Version   int         `json:"version"` // Schema version for future evolution
	ID        string      `json:"id"`
	Operation Operation   `json:"operation"`
	Tag       string      `json:"tag"`
	ReleaseID int64       `json:"release_id,omitempty"`
	Started   time.Time   `json:"started"`
	Updated   time.Time   `json:"updated"`
	Targets   []TargetTxn `json:"targets"`

	mu  sync.Mutex
	dir string
	now func() time.Time
}

// TargetTxn is the ledger entry of one matrix target.
type TargetTxn struct {
	Triple    string            `json:"triple"`
	Host      release.HostOS    `json:"host"`
	State     release.TaskState `json:"state"`
	AssetID   int64             `json:"asset_id,omitempty"`
	AssetName string            `json:"asset_name,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	Updated   time.Time         `json:"updated"`
}

// NewRun creates a ledger with every target pending.
func NewRun(op Operation, tag string, targets []release.Target) *RunTxn {
	now := time.Now().UTC()
	entries := make([]TargetTxn, 0, len(targets))
	for _, t := range targets {
		entries = append(entries, TargetTxn{
			Triple:  t.Triple,
			Host:    t.Host,
			State:   release.TaskPending,
			Updated: now,
		})
	}
	return &RunTxn{
		Version:   ledgerVersion,
		ID:        uuid.New().String(),
		Operation: op,
		Tag:       tag,
		Started:   now,
		Updated:   now,
		Targets:   entries,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Persist attaches dir and saves the ledger there.
func (t *RunTxn) Persist(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dir = dir
	return t.saveLocked(dir)
}

// SetRelease records the release the run publishes to.
func (t *RunTxn) SetRelease(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReleaseID = id
	return t.saveAttachedLocked()
}

// Record implements release.Recorder.
func (t *RunTxn) Record(result release.TaskResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	if t.now != nil {
		now = t.now()
	}

	entry := TargetTxn{
		Triple:    result.Target.Triple,
		Host:      result.Target.Host,
		State:     result.State,
		AssetID:   result.AssetID,
		AssetName: result.AssetName,
		Updated:   now,
	}
	if result.Err != nil {
		entry.LastError = result.Err.Error()
	}

	found := false
	for i := range t.Targets {
		if t.Targets[i].Triple == entry.Triple {
			t.Targets[i] = entry
			found = true
			break
		}
	}
	if !found {
		t.Targets = append(t.Targets, entry)
	}
	t.Updated = now

	return t.saveAttachedLocked()
}

func (t *RunTxn) saveAttachedLocked() error {
	if t.dir == "" {
		return nil
	}
	return t.saveLocked(t.dir)
}

// Save writes the ledger to dir atomically.
func (t *RunTxn) Save(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked(dir)
}

func (t *RunTxn) saveLocked(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	finalPath := filepath.Join(dir, t.fileName())
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temporary ledger file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename ledger file: %w", err)
	}

	if df, err := os.Open(dir); err == nil {
		syncErr := df.Sync()
		df.Close()
		if syncErr != nil {
			return fmt.Errorf("sync directory: %w", syncErr)
		}
	}
	return nil
}

func (t *RunTxn) fileName() string {
	return fmt.Sprintf("txn-%s-%s.json", t.Operation, t.ID)
}

// Load reads a ledger from disk.
func Load(path string) (*RunTxn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var txn RunTxn
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("unmarshal ledger: %w", err)
	}
	if txn.Version > ledgerVersion {
		return nil, fmt.Errorf("ledger %s has version %d, newer than supported %d", path, txn.Version, ledgerVersion)
	}
	txn.now = func() time.Time { return time.Now().UTC() }
	return &txn, nil
}

// List loads every ledger in dir, newest first. Unreadable files are
// skipped.
func List(dir string) ([]*RunTxn, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger directory: %w", err)
	}

	var runs []*RunTxn
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "txn-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		txn, err := Load(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		runs = append(runs, txn)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})
	return runs, nil
}

// Latest returns the newest ledger for tag.
func Latest(dir, tag string) (*RunTxn, error) {
	runs, err := List(dir)
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.Tag == tag {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w for tag %s", ErrNoRun, tag)
}

// Unfinished returns the targets that neither completed nor were skipped,
// in ledger order.
func (t *RunTxn) Unfinished() []release.Target {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []release.Target
	for _, e := range t.Targets {
		if e.State != release.TaskCompleted && e.State != release.TaskSkipped {
			out = append(out, release.Target{Triple: e.Triple, Host: e.Host})
		}
	}
	return out
}

// Failed returns the entries in the failed state.
func (t *RunTxn) Failed() []TargetTxn {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []TargetTxn
	for _, e := range t.Targets {
		if e.State == release.TaskFailed {
			out = append(out, e)
		}
	}
	return out
}

// Done returns true if every target completed or was skipped.
func (t *RunTxn) Done() bool {
	return len(t.Targets) > 0 && len(t.Unfinished()) == 0
}
