package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/config"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/release"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Viper keys. Environment variables are SHELLAPP_<KEY>.
const (
	keyConfig        = "config"
	keyLogLevel      = "log_level"
	keyVersion       = "version"
	keyBuildDir      = "build_dir"
	keyCacheDir      = "cache_dir"
	keyAppDir        = "app_dir"
	keyPlatforms     = "platforms"
	keyForceCached   = "force_cached_version"
	keyRefresh       = "refresh"
	keyAuthorization = "authorization"
	keyMetricsFile   = "metrics_file"
)

// app carries the dependencies shared by every command.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	detector   platform.Detector
	httpClient *http.Client // nil uses the defaults
	v          *viper.Viper
	logger     *log.Logger
}

func newApp(stdout, stderr io.Writer, detector platform.Detector) *app {
	v := viper.New()
	v.SetEnvPrefix("SHELLAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv(keyAuthorization, "SHELLAPP_AUTHORIZATION", "GITHUB_TOKEN")

	return &app{
		stdout:   stdout,
		stderr:   stderr,
		detector: detector,
		v:        v,
		logger:   log.NewWithOptions(stderr, log.Options{Prefix: "shellapp"}),
	}
}

func newRootCmd() *cobra.Command {
	return newApp(os.Stdout, os.Stderr, platform.NewDetector()).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shellapp",
		Short:         "Package an application as a runtime-shell app for several platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogger()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "path to shellapp.lua (default ./"+config.DefaultConfigFile+" when present)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("cache-dir", "", "download cache directory")
	flags.String("authorization", "", "API token sent as a bearer credential (also GITHUB_TOKEN)")
	a.bind(keyConfig, flags.Lookup("config"))
	a.bind(keyLogLevel, flags.Lookup("log-level"))
	a.bind(keyCacheDir, flags.Lookup("cache-dir"))
	a.bind(keyAuthorization, flags.Lookup("authorization"))

	root.AddCommand(
		a.buildCmd(),
		a.releasesCmd(),
		a.cacheCmd(),
		a.versionCmd(),
	)
	return root
}

// bind ties a flag to a viper key. Lookup never returns nil for flags
// declared above.
func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func (a *app) setupLogger() error {
	level, err := log.ParseLevel(a.v.GetString(keyLogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", a.v.GetString(keyLogLevel), err)
	}
	a.logger.SetLevel(level)
	return nil
}

// loadConfig layers defaults, shellapp.lua, environment and flags, then
// validates the result.
func (a *app) loadConfig(ctx context.Context) (*config.BuildConfig, *platform.Info, error) {
	host, err := a.detector.Detect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("detect platform: %w", err)
	}
	a.logger.Debug("detected host", "os", host.OS, "arch", host.Arch, "distro", host.Distro)

	parser := config.NewParser(platform.StaticDetector{Info: host})
	path := a.v.GetString(keyConfig)
	if path == "" && fileExists(config.DefaultConfigFile) {
		path = config.DefaultConfigFile
	}

	var cfg *config.BuildConfig
	if path != "" {
		cfg, err = parser.ParseFile(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %s", path, config.FormatError(err, a.logger.GetLevel() <= log.DebugLevel))
		}
		a.logger.Debug("loaded config", "path", path)
	} else {
		cfg = config.Default(host)
	}

	applyOverrides(cfg, a.v)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, host, nil
}

// applyOverrides copies every key set through the environment or a flag.
func applyOverrides(cfg *config.BuildConfig, v *viper.Viper) {
	strs := []struct {
		key  string
		dest *string
	}{
		{keyVersion, &cfg.Version},
		{keyBuildDir, &cfg.BuildDir},
		{keyCacheDir, &cfg.CacheDir},
		{keyAppDir, &cfg.AppDir},
		{keyAuthorization, &cfg.Authorization},
	}
	for _, s := range strs {
		if v.IsSet(s.key) {
			*s.dest = v.GetString(s.key)
		}
	}

	if v.IsSet(keyPlatforms) {
		cfg.Platforms = splitList(v.GetStringSlice(keyPlatforms))
	}
	if v.IsSet(keyForceCached) {
		cfg.ForceCachedVersion = v.GetBool(keyForceCached)
	}
	if v.IsSet(keyRefresh) {
		cfg.Refresh = v.GetBool(keyRefresh)
	}
}

// splitList flattens comma separated entries, so SHELLAPP_PLATFORMS may be
// "linux64,win32".
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// releaseClient builds the index client for cfg.
func (a *app) releaseClient(cfg *config.BuildConfig, store release.MetadataStore) *release.Client {
	opts := []release.ClientOption{
		release.WithBaseURL(cfg.Runtime.APIURL),
		release.WithRepo(cfg.Runtime.Repo),
		release.WithToken(cfg.Authorization),
	}
	if store != nil {
		opts = append(opts, release.WithMetadataStore(store))
	}
	if a.httpClient != nil {
		opts = append(opts, release.WithHTTPClient(a.httpClient))
	}
	return release.NewClient(opts...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}
	return !info.IsDir()
}
