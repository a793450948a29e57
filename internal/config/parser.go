package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates shellapp.lua files with host platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector disables the platform table and host-based defaults.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile reads and evaluates a shellapp.lua file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*BuildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return p.ParseString(ctx, string(data))
}

// ParseString evaluates Lua code and returns the default configuration with
// every field set by the "shellapp" table applied on top.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*BuildConfig, error) {
	L := newSandboxedVM()
	defer L.Close()

	var host *platform.Info
	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
		host = info
	}

	L.SetContext(ctx)
	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L, Default(host))
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig applies the global "shellapp" table onto cfg.
func extractConfig(L *lua.LState, cfg *BuildConfig) (*BuildConfig, error) {
	global := L.GetGlobal(luaGlobalShellapp)
	table, ok := global.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'shellapp' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	stringFields := []struct {
		name string
		dest *string
	}{
		{luaFieldVersion, &cfg.Version},
		{luaFieldBuildDir, &cfg.BuildDir},
		{luaFieldCacheDir, &cfg.CacheDir},
		{luaFieldAppDir, &cfg.AppDir},
		{luaFieldAuthorization, &cfg.Authorization},
	}
	for _, f := range stringFields {
		if err := readString(table, f.name, f.dest); err != nil {
			return nil, err
		}
	}

	if err := readBool(table, luaFieldForceCached, &cfg.ForceCachedVersion); err != nil {
		return nil, err
	}
	if err := readBool(table, luaFieldRefresh, &cfg.Refresh); err != nil {
		return nil, err
	}

	switch v := table.RawGetString(luaFieldPlatforms).(type) {
	case *lua.LTable:
		platforms, err := extractPlatforms(v)
		if err != nil {
			return nil, err
		}
		cfg.Platforms = platforms
	case lua.LString:
		cfg.Platforms = []string{string(v)}
	default:
		if v.Type() != lua.LTNil {
			return nil, fieldTypeError(luaFieldPlatforms, "table or string", v)
		}
	}

	switch v := table.RawGetString(luaFieldRuntime).(type) {
	case *lua.LTable:
		for _, f := range []struct {
			name string
			dest *string
		}{
			{luaFieldRepo, &cfg.Runtime.Repo},
			{luaFieldName, &cfg.Runtime.Name},
			{luaFieldAPIURL, &cfg.Runtime.APIURL},
		} {
			if err := readString(v, f.name, f.dest); err != nil {
				return nil, err
			}
		}
	default:
		if v.Type() != lua.LTNil {
			return nil, fieldTypeError(luaFieldRuntime, "table", v)
		}
	}

	return cfg, nil
}

// extractPlatforms reads the platforms array. nil holes left by
// platform.when(...) are skipped.
func extractPlatforms(table *lua.LTable) ([]string, error) {
	var platforms []string
	var bad lua.LValue

	maxIndex := table.MaxN()
	for i := 1; i <= maxIndex; i++ {
		value := table.RawGetInt(i)
		switch value.Type() {
		case lua.LTNil:
			continue
		case lua.LTString:
			platforms = append(platforms, strings.TrimSpace(value.String()))
		default:
			if bad == nil {
				bad = value
			}
		}
	}

	if bad != nil {
		return nil, fieldTypeError(luaFieldPlatforms+"[]", "string", bad)
	}
	return platforms, nil
}

func readString(table *lua.LTable, field string, dest *string) error {
	value := table.RawGetString(field)
	switch value.Type() {
	case lua.LTNil:
		return nil
	case lua.LTString:
		*dest = value.String()
		return nil
	default:
		return fieldTypeError(field, "string", value)
	}
}

func readBool(table *lua.LTable, field string, dest *bool) error {
	value := table.RawGetString(field)
	switch value.Type() {
	case lua.LTNil:
		return nil
	case lua.LTBool:
		*dest = lua.LVAsBool(value)
		return nil
	default:
		return fieldTypeError(field, "boolean", value)
	}
}

func fieldTypeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: "invalid field '" + field + "'",
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	if parseErr, ok := err.(*ParseError); ok {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
