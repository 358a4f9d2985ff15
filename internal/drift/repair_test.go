package drift

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

func TestPlanRepairs(t *testing.T) {
	results := []DriftResult{
		{Tag: "1.0.0", DriftType: DriftOK},
		{Tag: "1.1.0", DriftType: DriftPartialRelease, MissingAssets: []string{
			"uv-x86_64-pc-windows-msvc.zip",
			"uv-aarch64-unknown-linux-gnu.tar.gz",
			"uv-unknown-asset.tar.gz",
		}},
		{Tag: "1.2.0", DriftType: DriftMissingRelease},
		{Tag: "1.3.0", DriftType: DriftMissingTag},
		{Tag: "1.4.0", DriftType: DriftMissingTag},
	}

	got := PlanRepairs(results, "uv", release.DefaultMatrix)
	want := []Repair{
		{Tag: "1.1.0", Action: ActionBuild, Targets: []release.Target{
			{Triple: "x86_64-pc-windows-msvc", Host: release.HostWindows},
			{Triple: "aarch64-unknown-linux-gnu", Host: release.HostLinux},
		}},
		{Tag: "1.2.0", Action: ActionPublish},
		{Tag: "1.3.0", Action: ActionSync},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PlanRepairs() =\n  %+v\nwant\n  %+v", got, want)
	}

	commands := []string{
		"tagrelay build --tag 1.1.0 --target x86_64-pc-windows-msvc --target aarch64-unknown-linux-gnu",
		"tagrelay publish --tag 1.2.0",
		"tagrelay sync",
	}
	for i, r := range got {
		if c := r.Command(); c != commands[i] {
			t.Errorf("Command() = %q, want %q", c, commands[i])
		}
	}
}

func TestFormatRepairPlan(t *testing.T) {
	if out := FormatRepairPlan(nil); out != "" {
		t.Errorf("FormatRepairPlan(nil) = %q, want empty", out)
	}

	out := FormatRepairPlan([]Repair{{Tag: "1.2.0", Action: ActionPublish}})
	if !strings.HasPrefix(out, "To repair:\n") || !strings.Contains(out, "  tagrelay publish --tag 1.2.0\n") {
		t.Errorf("unexpected plan:\n%s", out)
	}
}

func TestRepairActionString(t *testing.T) {
	for a, want := range map[RepairAction]string{
		ActionNone: "none", ActionSync: "sync", ActionPublish: "publish", ActionBuild: "build", RepairAction(9): "unknown",
	} {
		if got := a.String(); got != want {
			t.Errorf("RepairAction(%d).String() = %q, want %q", int(a), got, want)
		}
	}
}
