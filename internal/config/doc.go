// Package config parses and validates the shellapp build configuration.
//
// # Overview
//
// Builds are described in a shellapp.lua file evaluated by gopher-lua, a pure
// Go Lua 5.1 VM. The file assigns a global "shellapp" table:
//
//	shellapp = {
//	    version   = "v0.19.5",          -- omit to build the latest stable release
//	    build_dir = "build",
//	    cache_dir = "cache",
//	    app_dir   = "app",              -- directory or packed app.asar file
//	    platforms = {
//	        "win32",
//	        platform.when(platform.is_unix, "linux64"),
//	    },
//	    force_cached_version = false,
//	    runtime = { repo = "atom/atom-shell", name = "atom-shell" },
//	}
//
// A read-only "platform" table describing the host is injected before the file
// runs, so platform lists can be conditional. nil entries are skipped.
//
// # Sandbox
//
// User Lua code runs without os, io, debug, require, dofile, loadfile, load and
// loadstring. string, table and math remain available.
//
// # Lifecycle
//
// A BuildConfig is assembled once per invocation (defaults, then the Lua file,
// then CLI/env overrides applied by the caller), validated with Validate, and
// treated as immutable afterwards.
package config
