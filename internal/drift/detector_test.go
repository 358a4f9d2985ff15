package drift

import (
	"reflect"
	"testing"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

var fullAssets = ExpectedAssets("uv", release.DefaultMatrix)

func TestExpectedAssets(t *testing.T) {
	want := []string{
		"uv-aarch64-apple-darwin.tar.gz",
		"uv-x86_64-pc-windows-msvc.zip",
		"uv-x86_64-unknown-linux-gnu.tar.gz",
		"uv-aarch64-unknown-linux-gnu.tar.gz",
	}
	if !reflect.DeepEqual(fullAssets, want) {
		t.Errorf("ExpectedAssets() = %v, want %v", fullAssets, want)
	}
}

func TestDetectDrift(t *testing.T) {
	tests := []struct {
		name     string
		upstream tags.Set
		local    tags.Set
		releases []ReleaseState
		opts     Options
		want     []DriftResult
	}{
		{
			name:     "All in sync",
			upstream: tags.NewSet("1.0.0"),
			local:    tags.NewSet("1.0.0"),
			releases: []ReleaseState{{Tag: "1.0.0", ID: 1, Assets: fullAssets}},
			want: []DriftResult{
				{Tag: "1.0.0", DriftType: DriftOK, ReleaseID: 1},
			},
		},
		{
			name:     "Missing tag",
			upstream: tags.NewSet("1.0.0", "1.1.0"),
			local:    tags.NewSet("1.0.0"),
			releases: []ReleaseState{{Tag: "1.0.0", ID: 1, Assets: fullAssets}},
			want: []DriftResult{
				{Tag: "1.0.0", DriftType: DriftOK, ReleaseID: 1},
				{Tag: "1.1.0", DriftType: DriftMissingTag},
			},
		},
		{
			name:     "Missing release",
			upstream: tags.NewSet("1.0.0"),
			local:    tags.NewSet("1.0.0"),
			want: []DriftResult{
				{Tag: "1.0.0", DriftType: DriftMissingRelease},
			},
		},
		{
			name:     "Partial release",
			upstream: tags.NewSet("1.0.0"),
			local:    tags.NewSet("1.0.0"),
			releases: []ReleaseState{{
				Tag:    "1.0.0",
				ID:     4,
				Assets: []string{"uv-aarch64-apple-darwin.tar.gz", "uv-x86_64-unknown-linux-gnu.tar.gz", "uv-x86_64-unknown-linux-gnu.tar.gz.sha256"},
			}},
			want: []DriftResult{{
				Tag:           "1.0.0",
				DriftType:     DriftPartialRelease,
				ReleaseID:     4,
				MissingAssets: []string{"uv-x86_64-pc-windows-msvc.zip", "uv-aarch64-unknown-linux-gnu.tar.gz"},
			}},
		},
		{
			name:     "Non-release tags never need a release",
			upstream: tags.NewSet("0.1.0a1", "nightly"),
			local:    tags.NewSet("0.1.0a1", "nightly"),
			want: []DriftResult{
				{Tag: "nightly", DriftType: DriftOK},
				{Tag: "0.1.0a1", DriftType: DriftOK},
			},
		},
		{
			name:     "Fork-only tag is still checked",
			upstream: tags.NewSet(),
			local:    tags.NewSet("2.0.0"),
			want: []DriftResult{
				{Tag: "2.0.0", DriftType: DriftMissingRelease},
			},
		},
		{
			name:     "Results ordered by version",
			upstream: tags.NewSet("0.10.0", "0.9.0", "0.2.0"),
			local:    tags.NewSet("0.9.0"),
			releases: []ReleaseState{{Tag: "0.9.0", ID: 9, Assets: fullAssets}},
			want: []DriftResult{
				{Tag: "0.2.0", DriftType: DriftMissingTag},
				{Tag: "0.9.0", DriftType: DriftOK, ReleaseID: 9},
				{Tag: "0.10.0", DriftType: DriftMissingTag},
			},
		},
		{
			name:     "Since filters older tags",
			upstream: tags.NewSet("0.9.0", "0.10.0", "0.11.0"),
			local:    tags.NewSet("0.9.0", "0.10.0"),
			opts:     Options{Since: "0.10.0"},
			want: []DriftResult{
				{Tag: "0.10.0", DriftType: DriftMissingRelease},
				{Tag: "0.11.0", DriftType: DriftMissingTag},
			},
		},
		{
			name:     "Empty inputs",
			upstream: tags.NewSet(),
			local:    tags.NewSet(),
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectDrift(tt.upstream, tt.local, tt.releases, fullAssets, tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectDrift() =\n  %+v\nwant\n  %+v", got, tt.want)
			}
		})
	}
}

func TestHasDrift(t *testing.T) {
	if HasDrift(nil) {
		t.Error("HasDrift(nil) = true, want false")
	}
	if HasDrift([]DriftResult{{Tag: "1.0.0", DriftType: DriftOK}}) {
		t.Error("HasDrift(all OK) = true, want false")
	}
	if !HasDrift([]DriftResult{{Tag: "1.0.0"}, {Tag: "1.1.0", DriftType: DriftMissingTag}}) {
		t.Error("HasDrift(with missing tag) = false, want true")
	}
}

func TestCount(t *testing.T) {
	counts := Count([]DriftResult{
		{DriftType: DriftOK},
		{DriftType: DriftOK},
		{DriftType: DriftPartialRelease},
	})
	if counts[DriftOK] != 2 || counts[DriftPartialRelease] != 1 || counts[DriftMissingTag] != 0 {
		t.Errorf("Count() = %v", counts)
	}
}

func TestDriftTypeString(t *testing.T) {
	tests := map[DriftType]string{
		DriftOK:             "OK",
		DriftMissingTag:     "MISSING_TAG",
		DriftMissingRelease: "MISSING_RELEASE",
		DriftPartialRelease: "PARTIAL_RELEASE",
		DriftType(42):       "UNKNOWN",
	}
	for d, want := range tests {
		if got := d.String(); got != want {
			t.Errorf("DriftType(%d).String() = %q, want %q", int(d), got, want)
		}
	}
}
