package main

import (
	"github.com/ZebulonRouseFrantzich/shellapp/internal/cache"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/download"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/extract"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/metrics"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/pipeline"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	"github.com/spf13/cobra"
)

func (a *app) buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch the runtime shell and add the application for each platform",
		Long: `Resolve the runtime-shell release, download and cache its archives,
extract one tree per platform into the build directory and place the
application payload inside each tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("version", "", "release tag to build (default latest stable)")
	flags.String("build-dir", "", "output directory")
	flags.String("app-dir", "", "application payload: a directory or an .asar file")
	flags.StringSlice("platform", nil, "target platform (darwin, win32, linux, linux32, linux64); repeatable")
	flags.Bool("force-cached-version", false, "use cached archives without checking their size")
	flags.Bool("refresh", false, "download archives even when cached")
	flags.String("metrics-file", "", "write Prometheus metrics to this file")
	a.bind(keyVersion, flags.Lookup("version"))
	a.bind(keyBuildDir, flags.Lookup("build-dir"))
	a.bind(keyAppDir, flags.Lookup("app-dir"))
	a.bind(keyPlatforms, flags.Lookup("platform"))
	a.bind(keyForceCached, flags.Lookup("force-cached-version"))
	a.bind(keyRefresh, flags.Lookup("refresh"))
	a.bind(keyMetricsFile, flags.Lookup("metrics-file"))

	return cmd
}

func (a *app) runBuild(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, host, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	targets, warnings, err := cfg.Targets(host)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		a.logger.Warn(w)
	}

	store := cache.New(cfg.CacheDir)
	lock, err := store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("could not release cache lock", "err", err)
		}
	}()

	dlOpts := []download.Option{download.WithToken(cfg.Authorization)}
	if a.httpClient != nil {
		dlOpts = append(dlOpts, download.WithHTTPClient(a.httpClient))
	}
	recorder := metrics.NewRecorder()
	progress := newProgressPrinter(a.stderr)

	p, err := pipeline.New(pipeline.Options{
		Config:     cfg,
		Targets:    targets,
		Host:       host,
		Releases:   a.releaseClient(cfg, store),
		Downloader: download.NewDownloader(dlOpts...),
		Extractor:  extract.NewExtractor(),
		Cache:      store,
		Keepalive:  lock,
		Logger:     a.logger,
		Metrics:    recorder,
		Progress: func(target platform.Target, transferred, total int64) {
			progress.Update(target, transferred, total)
		},
		OnStage: func(s pipeline.Stage) {
			progress.Finish()
			printStageHeading(a.stdout, s)
		},
	})
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx)
	progress.Finish()

	if path := a.v.GetString(keyMetricsFile); path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			a.logger.Warn("could not write metrics", "path", path, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(a.stdout, result)
	return nil
}
