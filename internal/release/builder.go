package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// ErrBuildFailed is returned when the build command exits unsuccessfully.
var ErrBuildFailed = errors.New("build failed")

// Builder produces the binaries of one target and returns the directory
// holding them.
type Builder interface {
	Build(ctx context.Context, target Target, ref string) (string, error)
}

// Placeholders expanded in build commands and output directories.
const (
	PlaceholderTarget = "{target}"
	PlaceholderRef    = "{ref}"
	PlaceholderTag    = "{tag}"
)

// BuildError carries the redacted tail of the build output while keeping
// the underlying error for errors.Is checks.
type BuildError struct {
	Target  Target
	Output  string
	wrapped error
}

func (e *BuildError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%v for %s: %v", ErrBuildFailed, e.Target.Triple, e.wrapped)
	}
	return fmt.Sprintf("%v for %s: %v: %s", ErrBuildFailed, e.Target.Triple, e.wrapped, e.Output)
}

func (e *BuildError) Unwrap() []error {
	return []error{ErrBuildFailed, e.wrapped}
}

// CommandBuilder runs an external build command per target. The toolchain
// is opaque: the command only has to leave the binaries in OutputDir.
type CommandBuilder struct {
	// Command is the argv; an empty command means the binaries were built
	// by an earlier step and are taken from OutputDir as is.
	Command []string
	// OutputDir is where the binaries end up, relative to WorkDir.
	OutputDir string
	// WorkDir is the checkout the command runs in.
	WorkDir string
	// Env is appended to the scrubbed base environment.
	Env []string
	// Secrets are redacted from captured output.
	Secrets []string

	logger logging.Logger
}

// NewCommandBuilder creates a builder running command in workDir.
func NewCommandBuilder(command []string, outputDir, workDir string, logger logging.Logger) *CommandBuilder {
	return &CommandBuilder{
		Command:   command,
		OutputDir: outputDir,
		WorkDir:   workDir,
		logger:    logging.OrNop(logger),
	}
}

// Build runs the command for target and returns the expanded output
// directory.
func (b *CommandBuilder) Build(ctx context.Context, target Target, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outDir := expandPlaceholders(b.OutputDir, target, ref)
	if outDir == "" {
		return "", fmt.Errorf("output directory is not configured")
	}
	if !filepath.IsAbs(outDir) && b.WorkDir != "" {
		outDir = filepath.Join(b.WorkDir, outDir)
	}

	if len(b.Command) == 0 {
		b.logger.Debug("no build command, using prebuilt binaries", "target", target.Triple, "dir", outDir)
		return outDir, nil
	}

	args := make([]string, len(b.Command))
	for i, a := range b.Command {
		args[i] = expandPlaceholders(a, target, ref)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = b.WorkDir
	cmd.Env = append(baseEnv(), b.Env...)
	cmd.Env = append(cmd.Env,
		"TAGRELAY_TARGET="+target.Triple,
		"TAGRELAY_REF="+ref,
		"TAGRELAY_OUTPUT_DIR="+outDir,
	)

	b.logger.Info("building target", "target", target.Triple, "command", args[0])

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("build %s cancelled: %w", target.Triple, ctxErr)
		}
		return "", &BuildError{
			Target:  target,
			Output:  redactOutput(string(out), b.Secrets),
			wrapped: err,
		}
	}

	return outDir, nil
}

func expandPlaceholders(s string, target Target, ref string) string {
	tag := ref
	if name, ok := tags.TagName(ref); ok {
		tag = name
	}
	r := strings.NewReplacer(
		PlaceholderTarget, target.Triple,
		PlaceholderRef, ref,
		PlaceholderTag, tag,
	)
	return r.Replace(s)
}

// baseEnv passes through what toolchains need and drops tokens.
func baseEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if isSecretEnv(key) {
			continue
		}
		env = append(env, kv)
	}
	return env
}

func isSecretEnv(key string) bool {
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "PASSPHRASE") ||
		strings.Contains(upper, "SECRET")
}

// redactOutput keeps the last part of the output and masks secrets.
func redactOutput(out string, secrets []string) string {
	const maxLen = 2000
	for _, s := range secrets {
		if s != "" {
			out = strings.ReplaceAll(out, s, "***")
		}
	}
	out = strings.TrimSpace(out)
	if len(out) > maxLen {
		out = "..." + out[len(out)-maxLen:]
	}
	return out
}
