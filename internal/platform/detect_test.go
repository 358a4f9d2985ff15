package platform

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

func TestRealDetector_Detect(t *testing.T) {
	env := map[string]string{"GITHUB_ACTIONS": "true", "RUNNER_OS": "Linux"}
	detector := &RealDetector{getenv: func(k string) string { return env[k] }}

	info, err := detector.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.Arch != "amd64" && info.Arch != "arm64" {
		t.Errorf("Arch = %v, want amd64 or arm64", info.Arch)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if !info.CI {
		t.Error("CI = false, want true with GITHUB_ACTIONS=true")
	}
	if info.Runner != "Linux" {
		t.Errorf("Runner = %q, want Linux", info.Runner)
	}
	if info.Platform != "" && info.Family == "" {
		t.Error("Family should be set when Platform is set")
	}
	if runtime.GOOS != "linux" && info.Platform != "" {
		t.Errorf("Platform should be empty on non-Linux, got %v", info.Platform)
	}
}

func TestRealDetector_NotCI(t *testing.T) {
	detector := &RealDetector{getenv: func(string) string { return "" }}
	info, err := detector.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.CI || info.Runner != "" {
		t.Errorf("CI = %v, Runner = %q; want false and empty", info.CI, info.Runner)
	}
}

func TestStaticDetector(t *testing.T) {
	want := &Info{OS: "darwin", Arch: "arm64"}
	got, err := StaticDetector{Info: want}.Detect(context.Background())
	if err != nil || got != want {
		t.Fatalf("Detect() = %v, %v; want %v", got, err, want)
	}

	boom := errors.New("boom")
	if _, err := (StaticDetector{Err: boom}).Detect(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Detect() error = %v, want %v", err, boom)
	}
}

func TestInfo_MatrixHost(t *testing.T) {
	tests := []struct {
		os      string
		want    release.HostOS
		wantErr bool
	}{
		{"darwin", release.HostMacOS, false},
		{"windows", release.HostWindows, false},
		{"linux", release.HostLinux, false},
		{"freebsd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			got, err := (&Info{OS: tt.os}).MatrixHost()
			if (err != nil) != tt.wantErr {
				t.Fatalf("MatrixHost() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("MatrixHost() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo_Triple(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"apple silicon", Info{OS: "darwin", Arch: "arm64"}, "aarch64-apple-darwin"},
		{"windows amd64", Info{OS: "windows", Arch: "amd64"}, "x86_64-pc-windows-msvc"},
		{"ubuntu amd64", Info{OS: "linux", Arch: "amd64", Family: FamilyDebian}, "x86_64-unknown-linux-gnu"},
		{"linux arm64", Info{OS: "linux", Arch: "arm64"}, "aarch64-unknown-linux-gnu"},
		{"alpine", Info{OS: "linux", Arch: "amd64", Family: FamilyAlpine}, "x86_64-unknown-linux-musl"},
		{"unknown arch", Info{OS: "linux", Arch: "riscv64"}, ""},
		{"unknown os", Info{OS: "plan9", Arch: "amd64"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Triple(); got != tt.want {
				t.Errorf("Triple() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo_HostTargets(t *testing.T) {
	linux := &Info{OS: "linux", Arch: "amd64"}
	got, err := linux.HostTargets(release.DefaultMatrix)
	if err != nil {
		t.Fatalf("HostTargets() error = %v", err)
	}
	want := []string{"x86_64-unknown-linux-gnu", "aarch64-unknown-linux-gnu"}
	if len(got) != len(want) {
		t.Fatalf("HostTargets() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Triple != want[i] {
			t.Errorf("HostTargets()[%d] = %s, want %s", i, got[i].Triple, want[i])
		}
	}

	macOnly := []release.Target{{Triple: "aarch64-apple-darwin", Host: release.HostMacOS}}
	if _, err := linux.HostTargets(macOnly); !errors.Is(err, release.ErrUnknownTarget) {
		t.Errorf("HostTargets() error = %v, want ErrUnknownTarget", err)
	}
}

func TestInfo_BooleanMethods(t *testing.T) {
	info := &Info{OS: "linux", Arch: "arm64", Family: FamilyAlpine}
	if !info.IsLinux() || info.IsMacOS() || info.IsWindows() {
		t.Error("OS predicates wrong for linux")
	}
	if !info.IsARM64() || info.IsAMD64() {
		t.Error("arch predicates wrong for arm64")
	}
	if !info.IsMusl() {
		t.Error("IsMusl() = false for alpine")
	}
	if (&Info{OS: "darwin", Family: FamilyAlpine}).IsMusl() {
		t.Error("IsMusl() = true off Linux")
	}
}
