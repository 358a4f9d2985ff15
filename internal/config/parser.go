package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/logging"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/platform"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// Parser evaluates tagrelay.lua with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Nop()}
}

// WithLogger sets the logger used for parse diagnostics.
func (p *Parser) WithLogger(logger logging.Logger) *Parser {
	p.logger = logging.OrNop(logger)
	return p
}

// ParseFile reads and parses a config file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", info.Size(), MaxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if findings := DetectSensitiveData(string(data)); len(findings) > 0 {
		for _, f := range findings {
			p.logger.Warn("possible secret in config", "file", path, "line", f.Line, "kind", f.PatternName)
		}
	}

	cfg, err := p.ParseString(ctx, string(data))
	if err != nil {
		return nil, err
	}
	p.logger.Debug("config loaded", "file", path, "targets", len(cfg.Targets()))
	return cfg, nil
}

// ParseString parses a Lua config from a string. Without a deadline on ctx
// DefaultTimeout applies.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if len(luaCode) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", len(luaCode), MaxConfigSize),
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{Message: "Lua error", Detail: err.Error()}
	}

	cfg, err := extractConfig(L)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: err.Error(), err: err}
	}
	return cfg, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
	err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// fieldError reports a field whose Lua type is wrong.
func fieldError(field string, want lua.LValueType, got lua.LValue) error {
	return &ParseError{
		Message: fmt.Sprintf("invalid value for %s", field),
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// extractConfig reads the global "tagrelay" table.
func extractConfig(L *lua.LState) (*Config, error) {
	root, ok := L.GetGlobal(luaGlobal).(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'tagrelay' table",
			Detail:  fmt.Sprintf("expected table, got %s", L.GetGlobal(luaGlobal).Type()),
		}
	}

	cfg := &Config{}
	r := tableReader{t: root}

	if t := r.table(luaFieldUpstream); t != nil {
		u := tableReader{t: t, prefix: luaFieldUpstream}
		cfg.Upstream.URL = u.str(luaFieldURL)
		if err := u.err; err != nil {
			return nil, err
		}
	} else {
		// upstream = "https://..." is accepted as shorthand
		cfg.Upstream.URL = r.str(luaFieldUpstream)
	}

	if t := r.table(luaFieldOrigin); t != nil {
		o := tableReader{t: t, prefix: luaFieldOrigin}
		cfg.Origin.Remote = o.str(luaFieldRemote)
		cfg.Origin.Repository = o.str(luaFieldRepository)
		if o.err != nil {
			return nil, o.err
		}
	}

	if t := r.table(luaFieldRelease); t != nil {
		rel := tableReader{t: t, prefix: luaFieldRelease}
		cfg.Release = ReleaseConfig{
			ArchivePrefix: rel.str(luaFieldPrefix),
			Binaries:      rel.stringList(luaFieldBinaries),
			OnExisting:    rel.str(luaFieldOnExisting),
			Draft:         rel.boolean(luaFieldDraft),
			Prerelease:    rel.boolean(luaFieldPrerelease),
			NameTemplate:  rel.str(luaFieldNameTemplate),
			Workflow:      rel.str(luaFieldWorkflow),
			Checksums:     rel.boolean(luaFieldChecksums),
			Parallelism:   rel.integer(luaFieldParallelism),
		}
		if rel.err != nil {
			return nil, rel.err
		}
	}

	if t := r.table(luaFieldBuild); t != nil {
		b := tableReader{t: t, prefix: luaFieldBuild}
		cfg.Build = BuildConfig{
			Command:   b.str(luaFieldCommand),
			OutputDir: b.str(luaFieldOutputDir),
			WorkDir:   b.str(luaFieldWorkDir),
			Env:       b.stringMap(luaFieldEnv),
		}
		if b.err != nil {
			return nil, b.err
		}
	}

	if t := r.table(luaFieldMatrix); t != nil {
		matrix, err := extractMatrix(t)
		if err != nil {
			return nil, err
		}
		cfg.Matrix = matrix
	}

	if t := r.table(luaFieldSigning); t != nil {
		s := tableReader{t: t, prefix: luaFieldSigning}
		cfg.Signing.Key = s.str(luaFieldKey)
		cfg.Signing.PublicKey = s.str(luaFieldPublicKey)
		if s.err != nil {
			return nil, s.err
		}
	}

	cfg.Schedule = r.str(luaFieldSchedule)
	cfg.CacheDir = r.str(luaFieldCacheDir)
	if r.err != nil {
		return nil, r.err
	}
	return cfg, nil
}

// extractMatrix reads an array of {triple=..., host=...} entries. Nil
// entries, from platform.when conditionals, are skipped.
func extractMatrix(t *lua.LTable) ([]release.Target, error) {
	var out []release.Target
	for i := 1; i <= t.MaxN(); i++ {
		v := t.RawGetInt(i)
		if v == lua.LNil {
			continue
		}
		entry, ok := v.(*lua.LTable)
		if !ok {
			return nil, fieldError(fmt.Sprintf("matrix[%d]", i), lua.LTTable, v)
		}

		e := tableReader{t: entry, prefix: fmt.Sprintf("matrix[%d]", i)}
		triple := e.str(luaFieldTriple)
		hostName := e.str(luaFieldHost)
		if e.err != nil {
			return nil, e.err
		}

		host, err := release.ParseHostOS(hostName)
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("invalid value for matrix[%d].host", i), Detail: err.Error()}
		}
		out = append(out, release.Target{Triple: triple, Host: host})
	}
	return out, nil
}

// tableReader reads typed fields from a Lua table and keeps the first
// type error.
type tableReader struct {
	t      *lua.LTable
	prefix string
	err    error
}

func (r *tableReader) name(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + "." + key
}

func (r *tableReader) fail(key string, want lua.LValueType, got lua.LValue) {
	if r.err == nil {
		r.err = fieldError(r.name(key), want, got)
	}
}

func (r *tableReader) table(key string) *lua.LTable {
	t, _ := r.t.RawGetString(key).(*lua.LTable)
	return t
}

func (r *tableReader) str(key string) string {
	switch v := r.t.RawGetString(key).(type) {
	case lua.LString:
		return strings.TrimSpace(string(v))
	case *lua.LNilType:
		return ""
	default:
		r.fail(key, lua.LTString, v)
		return ""
	}
}

func (r *tableReader) boolean(key string) bool {
	switch v := r.t.RawGetString(key).(type) {
	case lua.LBool:
		return bool(v)
	case *lua.LNilType:
		return false
	default:
		r.fail(key, lua.LTBool, v)
		return false
	}
}

func (r *tableReader) integer(key string) int {
	switch v := r.t.RawGetString(key).(type) {
	case lua.LNumber:
		return int(v)
	case *lua.LNilType:
		return 0
	default:
		r.fail(key, lua.LTNumber, v)
		return 0
	}
}

// stringList reads an array of strings, skipping nil holes.
func (r *tableReader) stringList(key string) []string {
	v := r.t.RawGetString(key)
	if v == lua.LNil {
		return nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		r.fail(key, lua.LTTable, v)
		return nil
	}

	var out []string
	for i := 1; i <= t.MaxN(); i++ {
		switch item := t.RawGetInt(i).(type) {
		case lua.LString:
			out = append(out, string(item))
		case *lua.LNilType:
		default:
			r.fail(fmt.Sprintf("%s[%d]", key, i), lua.LTString, item)
			return nil
		}
	}
	return out
}

func (r *tableReader) stringMap(key string) map[string]string {
	v := r.t.RawGetString(key)
	if v == lua.LNil {
		return nil
	}
	t, ok := v.(*lua.LTable)
	if !ok {
		r.fail(key, lua.LTTable, v)
		return nil
	}

	out := make(map[string]string)
	t.ForEach(func(k, v lua.LValue) {
		ks, kok := k.(lua.LString)
		if !kok {
			r.fail(key, lua.LTString, k)
			return
		}
		switch val := v.(type) {
		case lua.LString:
			out[string(ks)] = string(val)
		case lua.LNumber, lua.LBool:
			out[string(ks)] = val.String()
		default:
			r.fail(key+"."+string(ks), lua.LTString, v)
		}
	})
	return out
}

// FormatError formats an error for user display. In verbose mode the raw
// Lua detail is shown; otherwise the stack traceback is dropped.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}
	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}
	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}

// SortedEnv returns env as KEY=VALUE pairs in key order.
func SortedEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
