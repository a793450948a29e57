package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
)

// BuildConfig is the resolved configuration of one build invocation.
type BuildConfig struct {
	// Version is the release tag to build; empty means latest stable.
	Version string `json:"version,omitempty"`

	// BuildDir is the output root; each platform gets <BuildDir>/<platform>.
	BuildDir string `json:"build_dir"`

	// CacheDir holds downloaded archives and cached release metadata.
	CacheDir string `json:"cache_dir"`

	// AppDir is the application payload: a directory or a packed .asar file.
	AppDir string `json:"app_dir"`

	// Platforms are the requested target ids, in build order.
	Platforms []string `json:"platforms"`

	// ForceCachedVersion trusts cached archives regardless of their size.
	ForceCachedVersion bool `json:"force_cached_version,omitempty"`

	// Refresh re-downloads archives even when the cache is valid.
	Refresh bool `json:"refresh,omitempty"`

	// Authorization is an optional API token sent as a bearer credential.
	Authorization string `json:"-"`

	// Runtime describes where the runtime-shell distribution is published.
	Runtime Runtime `json:"runtime"`
}

// Runtime identifies the runtime-shell distribution.
type Runtime struct {
	// Repo is the "owner/name" repository publishing releases.
	Repo string `json:"repo"`

	// Name prefixes release asset names and names the extracted directory.
	Name string `json:"name"`

	// APIURL is the release API base URL.
	APIURL string `json:"api_url"`
}

// Default returns the built-in configuration for the given host.
func Default(host *platform.Info) *BuildConfig {
	cfg := &BuildConfig{
		BuildDir: DefaultBuildDir,
		CacheDir: DefaultCacheDir,
		AppDir:   DefaultAppDir,
		Runtime: Runtime{
			Repo:   DefaultRuntimeRepo,
			Name:   DefaultRuntimeName,
			APIURL: DefaultAPIURL,
		},
	}
	if host != nil {
		cfg.Platforms = []string{host.HostTarget().String()}
	}
	return cfg
}

// Clone returns a deep copy, so callers can layer overrides without sharing
// the platforms slice.
func (c *BuildConfig) Clone() *BuildConfig {
	out := *c
	out.Platforms = slices.Clone(c.Platforms)
	return &out
}

// repoPattern matches "owner/name" repository identifiers.
var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// runtimeNamePattern keeps the runtime name usable as a path segment.
var runtimeNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Validate checks the configuration before any network or filesystem work.
func (c *BuildConfig) Validate() error {
	if c.BuildDir == "" {
		return &ValidationError{Field: luaFieldBuildDir, Message: "cannot be empty"}
	}
	if c.CacheDir == "" {
		return &ValidationError{Field: luaFieldCacheDir, Message: "cannot be empty"}
	}
	if c.AppDir == "" {
		return &ValidationError{Field: luaFieldAppDir, Message: "cannot be empty"}
	}

	if len(c.Platforms) == 0 {
		return &ValidationError{Field: luaFieldPlatforms, Message: "at least one platform is required"}
	}
	if len(c.Platforms) > MaxPlatformCount {
		return &ValidationError{
			Field:   luaFieldPlatforms,
			Message: fmt.Sprintf("too many platforms (%d), maximum is %d", len(c.Platforms), MaxPlatformCount),
		}
	}

	if !repoPattern.MatchString(c.Runtime.Repo) {
		return &ValidationError{
			Field:   "runtime.repo",
			Message: fmt.Sprintf("invalid repository %q (expected owner/name)", c.Runtime.Repo),
		}
	}
	if !runtimeNamePattern.MatchString(c.Runtime.Name) {
		return &ValidationError{
			Field:   "runtime.name",
			Message: fmt.Sprintf("invalid runtime name %q", c.Runtime.Name),
		}
	}
	u, err := url.Parse(c.Runtime.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{
			Field:   "runtime.api_url",
			Message: fmt.Sprintf("invalid API URL %q", c.Runtime.APIURL),
		}
	}

	return nil
}

// Targets validates the platform ids and returns the effective target set for
// host, plus warnings about targets that were dropped.
func (c *BuildConfig) Targets(host *platform.Info) ([]platform.Target, []string, error) {
	return platform.NormalizeTargets(c.Platforms, host)
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}
