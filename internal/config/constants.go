package config

// Lua schema field names and globals
const (
	luaGlobalShellapp     = "shellapp"
	luaFieldVersion       = "version"
	luaFieldBuildDir      = "build_dir"
	luaFieldCacheDir      = "cache_dir"
	luaFieldAppDir        = "app_dir"
	luaFieldPlatforms     = "platforms"
	luaFieldForceCached   = "force_cached_version"
	luaFieldRefresh       = "refresh"
	luaFieldAuthorization = "authorization"
	luaFieldRuntime       = "runtime"
	luaFieldRepo          = "repo"
	luaFieldName          = "name"
	luaFieldAPIURL        = "api_url"
)

// Defaults for the runtime-shell distribution and local directories.
const (
	DefaultConfigFile  = "shellapp.lua"
	DefaultBuildDir    = "build"
	DefaultCacheDir    = "cache"
	DefaultAppDir      = "app"
	DefaultRuntimeRepo = "atom/atom-shell"
	DefaultRuntimeName = "atom-shell"
	DefaultAPIURL      = "https://api.github.com"

	// MaxPlatformCount bounds the platforms list; the supported set is tiny.
	MaxPlatformCount = 16
)
