package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/mirror"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

func syncedResult(names ...string) *mirror.Result {
	synced := tags.NewSet(names...)
	latest, _ := tags.Latest(synced)
	return &mirror.Result{
		Missing:    synced,
		Synced:     synced,
		HasNewTags: !synced.IsEmpty(),
		LatestTag:  latest,
	}
}

func TestSyncService_Execute(t *testing.T) {
	tests := []struct {
		name           string
		result         *mirror.Result
		syncErr        error
		mode           PublishMode
		wantDispatches int
		wantPublishes  int
		wantErr        bool
		wantOutput     string
	}{
		{
			name:       "No new tags",
			result:     syncedResult(),
			mode:       PublishDispatch,
			wantOutput: "has_new_tags=false\n",
		},
		{
			name:           "New tags dispatch publisher",
			result:         syncedResult("0.9.0", "0.10.0"),
			mode:           PublishDispatch,
			wantDispatches: 1,
			wantOutput:     "latest_tag=0.10.0\n",
		},
		{
			name:          "New tags publish inline",
			result:        syncedResult("1.0.0"),
			mode:          PublishInline,
			wantPublishes: 1,
			wantOutput:    "has_new_tags=true\n",
		},
		{
			name:       "New tags report only",
			result:     syncedResult("1.0.0"),
			mode:       PublishNone,
			wantOutput: "synced_tags=1.0.0\n",
		},
		{
			name:       "Partial failure still emits outputs but does not publish",
			result:     syncedResult("1.0.0"),
			syncErr:    errors.New("push 1.1.0: denied"),
			mode:       PublishDispatch,
			wantErr:    true,
			wantOutput: "latest_tag=1.0.0\n",
		},
		{
			name: "Dry run never publishes",
			result: func() *mirror.Result {
				r := syncedResult()
				r.Missing = tags.NewSet("1.0.0")
				r.DryRun = true
				return r
			}(),
			mode:       PublishDispatch,
			wantOutput: "has_new_tags=false\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GITHUB_OUTPUT", "")
			dispatcher := &fakeDispatcher{}
			publisher := &fakePublisher{}
			svc := NewSyncService(&fakeSyncer{result: tt.result, err: tt.syncErr}, dispatcher, publisher, t.TempDir(), TestClock{FixedTime: fixedNow}, nil)

			var out bytes.Buffer
			res, err := svc.Execute(context.Background(), SyncRequest{
				Publish:  tt.mode,
				Workflow: "release.yml",
				Ref:      "main",
				Output:   &out,
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if res == nil {
				t.Fatal("Execute() returned no result")
			}
			if dispatcher.calls != tt.wantDispatches {
				t.Errorf("dispatches = %d, want %d", dispatcher.calls, tt.wantDispatches)
			}
			if len(publisher.requests) != tt.wantPublishes {
				t.Errorf("publishes = %d, want %d", len(publisher.requests), tt.wantPublishes)
			}
			if !strings.Contains(out.String(), tt.wantOutput) {
				t.Errorf("outputs %q do not contain %q", out.String(), tt.wantOutput)
			}
		})
	}
}

func TestSyncService_DispatchInputs(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "")
	dispatcher := &fakeDispatcher{}
	svc := NewSyncService(&fakeSyncer{result: syncedResult("0.9.0", "0.10.0")}, dispatcher, nil, t.TempDir(), nil, nil)

	res, err := svc.Execute(context.Background(), SyncRequest{Publish: PublishDispatch, Workflow: "release.yml", Ref: "main"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Dispatched {
		t.Error("Dispatched = false, want true")
	}
	if dispatcher.workflow != "release.yml" || dispatcher.ref != "main" {
		t.Errorf("dispatched %s@%s", dispatcher.workflow, dispatcher.ref)
	}
	if dispatcher.inputs["tag"] != "0.10.0" {
		t.Errorf("tag input = %q, want 0.10.0", dispatcher.inputs["tag"])
	}
}

func TestSyncService_InlineTrigger(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "")
	publisher := &fakePublisher{err: errors.New("build failed")}
	svc := NewSyncService(&fakeSyncer{result: syncedResult("1.0.0")}, nil, publisher, t.TempDir(), nil, nil)

	_, err := svc.Execute(context.Background(), SyncRequest{Publish: PublishInline})
	if err == nil || !strings.Contains(err.Error(), "publish 1.0.0") {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := publisher.requests[0].Trigger; got != (release.ExplicitTag{Name: "1.0.0"}) {
		t.Errorf("trigger = %#v", got)
	}
}

func TestSyncService_MissingDispatcher(t *testing.T) {
	t.Setenv("GITHUB_OUTPUT", "")
	svc := NewSyncService(&fakeSyncer{result: syncedResult("1.0.0")}, nil, nil, t.TempDir(), nil, nil)

	if _, err := svc.Execute(context.Background(), SyncRequest{Publish: PublishDispatch}); err == nil {
		t.Error("expected an error without a dispatcher")
	}
}

func TestSyncService_SyncFailsOutright(t *testing.T) {
	syncErr := errors.New("list upstream tags: connection refused")
	svc := NewSyncService(&fakeSyncer{err: syncErr}, nil, nil, t.TempDir(), nil, nil)

	res, err := svc.Execute(context.Background(), SyncRequest{})
	if !errors.Is(err, syncErr) {
		t.Fatalf("Execute() error = %v, want %v", err, syncErr)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestSyncService_WritesOutputFile(t *testing.T) {
	path := t.TempDir() + "/output"
	t.Setenv("GITHUB_OUTPUT", path)
	svc := NewSyncService(&fakeSyncer{result: syncedResult("1.0.0", "1.1.0")}, nil, nil, t.TempDir(), nil, nil)

	var out bytes.Buffer
	if _, err := svc.Execute(context.Background(), SyncRequest{Output: &out}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("stdout fallback used although GITHUB_OUTPUT is set: %q", out.String())
	}
}

func TestParsePublishMode(t *testing.T) {
	tests := []struct {
		in      string
		want    PublishMode
		wantErr bool
	}{
		{"", PublishNone, false},
		{"none", PublishNone, false},
		{"Dispatch", PublishDispatch, false},
		{" inline ", PublishInline, false},
		{"later", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePublishMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePublishMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
