package config

import (
	"context"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

func TestGenerator_Generate_ParsesBack(t *testing.T) {
	cfg := validConfig()
	cfg.Origin.Repository = "acme/uv"
	cfg.Release.Checksums = true
	cfg.Release.Draft = true
	cfg.Build = BuildConfig{
		Command:   `cargo build --release --target {target} --features "a b"`,
		OutputDir: "target/{target}/release",
		Env:       map[string]string{"RUSTFLAGS": "-C strip=symbols", "CC": "clang"},
	}
	cfg.Matrix = []release.Target{{Triple: "x86_64-unknown-linux-gnu", Host: release.HostLinux}}
	cfg.Signing = SigningConfig{Key: "k.asc", PublicKey: "p.asc"}

	src, err := NewGenerator().Generate(cfg)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	got, err := NewParser(nil).ParseString(context.Background(), src)
	if err != nil {
		t.Fatalf("generated config does not parse: %v\n%s", err, src)
	}

	if got.Build.Command != cfg.Build.Command {
		t.Errorf("Build.Command = %q, want %q", got.Build.Command, cfg.Build.Command)
	}
	if strings.Join(SortedEnv(got.Build.Env), " ") != strings.Join(SortedEnv(cfg.Build.Env), " ") {
		t.Errorf("Build.Env = %v", got.Build.Env)
	}
	if !got.Release.Checksums || !got.Release.Draft || got.Origin.Repository != "acme/uv" {
		t.Errorf("Release = %+v, Origin = %+v", got.Release, got.Origin)
	}
	if len(got.Matrix) != 1 || got.Matrix[0] != cfg.Matrix[0] {
		t.Errorf("Matrix = %v", got.Matrix)
	}
	if got.Signing != cfg.Signing {
		t.Errorf("Signing = %+v", got.Signing)
	}
}

func TestGenerator_Generate_OmitsEmptySections(t *testing.T) {
	src, err := NewGenerator().Generate(validConfig())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, absent := range []string{"matrix = {", "signing = {", "env = {", "draft = "} {
		if strings.Contains(src, absent) {
			t.Errorf("generated config contains %q:\n%s", absent, src)
		}
	}
	if !strings.Contains(src, `schedule = "10 */12 * * *"`) {
		t.Errorf("generated config lacks the schedule:\n%s", src)
	}
}

func TestGenerator_Generate_Nil(t *testing.T) {
	if _, err := NewGenerator().Generate(nil); err == nil {
		t.Error("Generate(nil) succeeded")
	}
}

func TestQuoteLuaString(t *testing.T) {
	tests := map[string]string{
		"hello":     `"hello"`,
		`say "hi"`:  `"say \"hi\""`,
		"a\nb":      `"a\nb"`,
		`C:\build`:  `"C:\\build"`,
		"tab\there": `"tab\there"`,
	}
	for in, want := range tests {
		if got := quoteLuaString(in); got != want {
			t.Errorf("quoteLuaString(%q) = %s, want %s", in, got, want)
		}
	}
}
