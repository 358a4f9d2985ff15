// Package config loads tagrelay.lua, the sandboxed Lua configuration of a
// tagrelay deployment.
//
// # Overview
//
// The config file is evaluated in a gopher-lua VM with the read-only
// "platform" table from the platform package injected, so a single file
// can describe different build commands per runner:
//
//	tagrelay = {
//	  upstream = { url = "https://github.com/astral-sh/uv.git" },
//	  origin = { remote = "origin", repository = "acme/uv" },
//	  release = {
//	    archive_prefix = "uv",
//	    binaries = { "uv", "uvx" },
//	    on_existing = "fail",       -- fail | skip | replace
//	    checksums = true,
//	  },
//	  build = {
//	    command = platform.is_windows and "cargo build --release --target {target}"
//	      or "cargo zigbuild --release --target {target}",
//	    output_dir = "target/{target}/release",
//	  },
//	  signing = { key = "release-key.asc", public_key = "release-pub.asc" },
//	  schedule = "10 */12 * * *",
//	}
//
// Key components:
//   - Parser: Lua → Config with platform detection, defaults and validation
//   - Generator: Config → Lua, used by "tagrelay init"
//   - Sandbox: restricted Lua VM
//   - DetectSensitiveData: warns about tokens committed to the file
//
// # Security Model
//
// User Lua code cannot execute commands, touch the filesystem, load code,
// or reach metatables. Evaluation is bounded:
//   - Config size: 1MB
//   - Evaluation time: 5 seconds unless ctx carries a deadline
//   - Call stack depth: 256 levels
//
// Secrets never come from the file. Tokens and the signing key passphrase
// are read from the environment by the command layer.
//
// # Error Types
//
//	type ParseError struct {
//	    Message string  // User-friendly message
//	    Detail  string  // Technical details
//	}
//
//	type ValidationError struct {
//	    Field   string  // e.g. "release.on_existing"
//	    Message string
//	}
//
// A ParseError produced by validation unwraps to its ValidationError.
package config
