package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Generator renders a Config as tagrelay.lua source.
type Generator struct {
	indent string
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{indent: "  "}
}

// Generate renders cfg. Fields equal to their defaults are still written
// so the generated file documents every setting.
func (g *Generator) Generate(cfg *Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("nil config")
	}

	var buf bytes.Buffer
	buf.WriteString("-- tagrelay configuration\n")
	buf.WriteString("-- The read-only platform table describes the machine evaluating this file.\n\n")
	buf.WriteString(luaGlobal + " = {\n")

	g.section(&buf, luaFieldUpstream, func(w *tableWriter) {
		w.str(luaFieldURL, cfg.Upstream.URL)
	})

	g.section(&buf, luaFieldOrigin, func(w *tableWriter) {
		w.str(luaFieldRemote, cfg.Origin.Remote)
		w.str(luaFieldRepository, cfg.Origin.Repository)
	})

	g.section(&buf, luaFieldRelease, func(w *tableWriter) {
		w.str(luaFieldPrefix, cfg.Release.ArchivePrefix)
		w.list(luaFieldBinaries, cfg.Release.Binaries)
		w.str(luaFieldOnExisting, cfg.Release.OnExisting)
		w.boolean(luaFieldDraft, cfg.Release.Draft)
		w.boolean(luaFieldPrerelease, cfg.Release.Prerelease)
		w.str(luaFieldNameTemplate, cfg.Release.NameTemplate)
		w.str(luaFieldWorkflow, cfg.Release.Workflow)
		w.boolean(luaFieldChecksums, cfg.Release.Checksums)
		if cfg.Release.Parallelism > 0 {
			w.line(fmt.Sprintf("%s = %d,", luaFieldParallelism, cfg.Release.Parallelism))
		}
	})

	g.section(&buf, luaFieldBuild, func(w *tableWriter) {
		w.str(luaFieldCommand, cfg.Build.Command)
		w.str(luaFieldOutputDir, cfg.Build.OutputDir)
		w.str(luaFieldWorkDir, cfg.Build.WorkDir)
		if len(cfg.Build.Env) > 0 {
			keys := make([]string, 0, len(cfg.Build.Env))
			for k := range cfg.Build.Env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			w.line(luaFieldEnv + " = {")
			for _, k := range keys {
				w.line(g.indent + k + " = " + quoteLuaString(cfg.Build.Env[k]) + ",")
			}
			w.line("},")
		}
	})

	if len(cfg.Matrix) > 0 {
		g.section(&buf, luaFieldMatrix, func(w *tableWriter) {
			for _, t := range cfg.Matrix {
				w.line(fmt.Sprintf("{ %s = %s, %s = %s },",
					luaFieldTriple, quoteLuaString(t.Triple), luaFieldHost, quoteLuaString(string(t.Host))))
			}
		})
	}

	if cfg.Signing.Key != "" || cfg.Signing.PublicKey != "" {
		g.section(&buf, luaFieldSigning, func(w *tableWriter) {
			w.str(luaFieldKey, cfg.Signing.Key)
			w.str(luaFieldPublicKey, cfg.Signing.PublicKey)
		})
	}

	top := &tableWriter{buf: &buf, indent: g.indent}
	top.str(luaFieldSchedule, cfg.Schedule)
	top.str(luaFieldCacheDir, cfg.CacheDir)

	buf.WriteString("}\n")
	return buf.String(), nil
}

func (g *Generator) section(buf *bytes.Buffer, name string, body func(w *tableWriter)) {
	buf.WriteString(g.indent + name + " = {\n")
	body(&tableWriter{buf: buf, indent: g.indent + g.indent})
	buf.WriteString(g.indent + "},\n")
}

// tableWriter writes fields of one Lua table at a fixed indentation.
// Empty strings and false booleans are omitted.
type tableWriter struct {
	buf    *bytes.Buffer
	indent string
}

func (w *tableWriter) line(s string) {
	w.buf.WriteString(w.indent + s + "\n")
}

func (w *tableWriter) str(key, value string) {
	if value != "" {
		w.line(key + " = " + quoteLuaString(value) + ",")
	}
}

func (w *tableWriter) boolean(key string, value bool) {
	if value {
		w.line(key + " = true,")
	}
}

func (w *tableWriter) list(key string, values []string) {
	if len(values) == 0 {
		return
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLuaString(v)
	}
	w.line(key + " = { " + strings.Join(quoted, ", ") + " },")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func quoteLuaString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
