package config

import "time"

// Lua schema field names and globals
const (
	luaGlobal = "tagrelay"

	luaFieldUpstream     = "upstream"
	luaFieldOrigin       = "origin"
	luaFieldRelease      = "release"
	luaFieldBuild        = "build"
	luaFieldMatrix       = "matrix"
	luaFieldSigning      = "signing"
	luaFieldSchedule     = "schedule"
	luaFieldCacheDir     = "cache_dir"
	luaFieldURL          = "url"
	luaFieldRemote       = "remote"
	luaFieldRepository   = "repository"
	luaFieldPrefix       = "archive_prefix"
	luaFieldBinaries     = "binaries"
	luaFieldOnExisting   = "on_existing"
	luaFieldDraft        = "draft"
	luaFieldPrerelease   = "prerelease"
	luaFieldNameTemplate = "name_template"
	luaFieldWorkflow     = "workflow"
	luaFieldChecksums    = "checksums"
	luaFieldParallelism  = "parallelism"
	luaFieldCommand      = "command"
	luaFieldOutputDir    = "output_dir"
	luaFieldWorkDir      = "workdir"
	luaFieldEnv          = "env"
	luaFieldTriple       = "triple"
	luaFieldHost         = "host"
	luaFieldKey          = "key"
	luaFieldPublicKey    = "public_key"
)

// Resource limits for user configs
const (
	MaxConfigSize   = 1 << 20
	MaxMatrixSize   = 64
	MaxBinaryCount  = 32
	MaxParallelism  = 32
	DefaultTimeout  = 5 * time.Second
	maxCallStack    = 256
	maxRegistrySize = 1024 * 8
)

// Defaults applied to fields the config leaves unset.
const (
	DefaultFileName     = "tagrelay.lua"
	DefaultOriginRemote = "origin"
	DefaultSchedule     = "10 */12 * * *"
	DefaultNameTemplate = "{tag}"
	DefaultWorkflow     = "release.yml"
)
