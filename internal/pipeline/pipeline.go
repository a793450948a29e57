// Package pipeline runs the runtime-shell build as a linear state machine:
// resolve the version, verify it and fetch release metadata, download,
// extract, remove the default app, overlay the application and normalize
// permissions, one platform at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/cache"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/config"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/download"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/overlay"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/release"
)

// ReleaseSource resolves release metadata.
type ReleaseSource interface {
	LatestStable(ctx context.Context) (*release.Release, []release.Release, error)
	VerifyTag(ctx context.Context, tag string, prefetched []release.Release) (*release.Release, error)
}

// Fetcher downloads one asset to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, asset release.Asset, destPath string, progress download.ProgressFunc) error
}

// Extractor unpacks an archive into a fresh directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string, host *platform.Info, target platform.Target) error
}

// Keepalive is refreshed after each target's download and extraction so a
// long build keeps its cache lock fresh.
type Keepalive interface {
	Touch() error
}

// ProgressFunc receives download progress for one target.
type ProgressFunc func(target platform.Target, transferred, total int64)

// Options wires a Pipeline. Config, Host, Releases, Downloader, Extractor and
// Cache are required.
type Options struct {
	Config  *config.BuildConfig
	Targets []platform.Target // effective, already normalized
	Host    *platform.Info

	Releases   ReleaseSource
	Downloader Fetcher
	Extractor  Extractor
	Cache      *cache.Store

	Logger    Logger
	Metrics   Metrics
	Progress  ProgressFunc
	OnStage   func(Stage) // called when a stage starts
	Keepalive Keepalive
}

// Outcome is what happened to one target.
type Outcome struct {
	Target      platform.Target
	AssetName   string
	ArchivePath string
	Cached      bool
	Downloaded  int64
	TreeDir     string
	AppPath     string
	Err         error
}

// Context is the mutable state threaded through the stages of one run.
type Context struct {
	Tag        string
	Release    *release.Release
	Prefetched []release.Release
	Outcomes   []*Outcome
}

// Result summarizes a finished run.
type Result struct {
	State    Stage // StageDone or StageAborted
	Failed   Stage // stage that aborted the run, when State is StageAborted
	Tag      string
	Outcomes []Outcome
	Duration time.Duration
}

// Pipeline executes one build invocation.
type Pipeline struct {
	cfg      *config.BuildConfig
	targets  []platform.Target
	host     *platform.Info
	releases ReleaseSource
	fetcher  Fetcher
	extract  Extractor
	cache    *cache.Store
	log      Logger
	metrics  Metrics
	progress ProgressFunc
	onStage  func(Stage)
	lock     Keepalive
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("pipeline: config is required")
	case opts.Host == nil:
		return nil, errors.New("pipeline: host info is required")
	case opts.Releases == nil:
		return nil, errors.New("pipeline: release source is required")
	case opts.Downloader == nil:
		return nil, errors.New("pipeline: downloader is required")
	case opts.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case opts.Cache == nil:
		return nil, errors.New("pipeline: cache store is required")
	}

	p := &Pipeline{
		cfg:      opts.Config,
		targets:  opts.Targets,
		host:     opts.Host,
		releases: opts.Releases,
		fetcher:  opts.Downloader,
		extract:  opts.Extractor,
		cache:    opts.Cache,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		progress: opts.Progress,
		onStage:  opts.OnStage,
		lock:     opts.Keepalive,
	}
	if p.log == nil {
		p.log = noopLogger{}
	}
	if p.metrics == nil {
		p.metrics = noopMetrics{}
	}
	return p, nil
}

// Run executes every stage in order and stops at the first failing one.
// Completed work is not rolled back; the cache makes a rerun cheap.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	pc := &Context{Outcomes: make([]*Outcome, 0, len(p.targets))}
	for _, t := range p.targets {
		pc.Outcomes = append(pc.Outcomes, &Outcome{
			Target:  t,
			TreeDir: filepath.Join(p.cfg.BuildDir, t.String(), p.cfg.Runtime.Name),
		})
	}

	state := StageResolveVersion
	var runErr error
	for !state.IsTerminal() {
		if err := ctx.Err(); err != nil {
			runErr = &StageError{Stage: state, Err: err}
			break
		}

		p.log.Debug("entering stage", "stage", state)
		if p.onStage != nil {
			p.onStage(state)
		}
		stageStart := time.Now()
		err := p.runStage(ctx, state, pc)
		p.metrics.StageDuration(state.String(), time.Since(stageStart))

		if err != nil {
			runErr = &StageError{Stage: state, Err: err}
			break
		}
		state = state.next()
	}

	result := &Result{
		State:    StageDone,
		Tag:      pc.Tag,
		Outcomes: make([]Outcome, 0, len(pc.Outcomes)),
		Duration: time.Since(start),
	}
	for _, o := range pc.Outcomes {
		result.Outcomes = append(result.Outcomes, *o)
	}

	if runErr != nil {
		result.State = StageAborted
		result.Failed = state
		p.log.Error("build aborted", "stage", state, "err", runErr)
	} else {
		p.log.Info("build complete", "version", pc.Tag, "platforms", len(pc.Outcomes), "duration", result.Duration.Round(time.Millisecond))
	}
	p.metrics.BuildFinished(result.State.String())

	return result, runErr
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, pc *Context) error {
	switch s {
	case StageResolveVersion:
		return p.resolveVersion(ctx, pc)
	case StageVerifyMetadata:
		return p.verifyMetadata(ctx, pc)
	case StageDownload:
		return p.downloadAll(ctx, pc)
	case StageExtract:
		return p.extractAll(ctx, pc)
	case StageRemoveDefault:
		return p.eachTarget(pc, StageRemoveDefault, func(o *Outcome) error {
			return overlay.RemoveDefaultPayload(o.TreeDir, o.Target)
		})
	case StageOverlay:
		return p.eachTarget(pc, StageOverlay, func(o *Outcome) error {
			appPath, err := overlay.OverlayApplication(p.cfg.AppDir, o.TreeDir, o.Target)
			if err != nil {
				return err
			}
			o.AppPath = appPath
			p.log.Info("application added", "platform", o.Target, "path", appPath)
			return nil
		})
	case StageNormalizePermissions:
		return p.eachTarget(pc, StageNormalizePermissions, func(o *Outcome) error {
			return overlay.NormalizePermissions(o.TreeDir, o.Target, p.host)
		})
	default:
		return fmt.Errorf("unknown stage %d", int(s))
	}
}

// resolveVersion picks the configured tag or asks the index for the latest
// stable release, keeping the fetched list for verification.
func (p *Pipeline) resolveVersion(ctx context.Context, pc *Context) error {
	if p.cfg.Version != "" {
		pc.Tag = p.cfg.Version
		p.log.Info("using configured version", "version", pc.Tag)
		return nil
	}

	latest, list, err := p.releases.LatestStable(ctx)
	if err != nil {
		return err
	}
	pc.Tag = latest.TagName
	pc.Release = latest
	pc.Prefetched = list
	p.log.Info("resolved latest stable version", "version", pc.Tag)
	return nil
}

// verifyMetadata confirms the tag exists and persists its metadata so later
// runs can skip the lookup.
func (p *Pipeline) verifyMetadata(ctx context.Context, pc *Context) error {
	if pc.Release == nil {
		rel, err := p.releases.VerifyTag(ctx, pc.Tag, pc.Prefetched)
		if err != nil {
			return err
		}
		pc.Release = rel
	}
	pc.Tag = pc.Release.TagName

	if err := p.cache.SaveRelease(pc.Tag, pc.Release); err != nil {
		p.log.Warn("could not cache release metadata", "version", pc.Tag, "err", err)
	}
	p.log.Debug("release verified", "version", pc.Tag, "assets", len(pc.Release.Assets))
	return nil
}

// downloadAll fetches archives one target at a time and stops at the first
// failure.
func (p *Pipeline) downloadAll(ctx context.Context, pc *Context) error {
	if len(pc.Outcomes) == 0 {
		return nil
	}
	if err := p.cache.Ensure(); err != nil {
		return err
	}

	assets := pc.Release.AssetIndex()
	for _, o := range pc.Outcomes {
		if err := p.downloadOne(ctx, pc.Tag, assets, o); err != nil {
			o.Err = err
			p.metrics.PlatformFailure(o.Target.String(), StageDownload.String())
			return &PlatformError{Target: o.Target, Stage: StageDownload, Err: err}
		}
		p.touch()
	}
	return nil
}

func (p *Pipeline) downloadOne(ctx context.Context, tag string, assets *release.AssetIndex, o *Outcome) error {
	o.AssetName = o.Target.AssetName(p.cfg.Runtime.Name, tag, p.host)
	asset, err := assets.Lookup(o.AssetName)
	if err != nil {
		return err
	}
	o.ArchivePath = p.cache.PathFor(asset.Name)

	if !p.cfg.Refresh && cache.IsCached(o.ArchivePath, asset.Size, p.cfg.ForceCachedVersion) {
		if p.cfg.ForceCachedVersion {
			if err := cache.RequireArchive(o.ArchivePath); err != nil {
				return fmt.Errorf("force_cached_version is set: %w", err)
			}
		}
		o.Cached = true
		p.metrics.CacheHit(o.Target.String())
		p.log.Info("found cached download", "platform", o.Target, "asset", asset.Name)
		return nil
	}

	p.metrics.CacheMiss(o.Target.String())
	p.log.Info("downloading", "platform", o.Target, "asset", asset.Name, "bytes", asset.Size)

	var progress download.ProgressFunc
	if p.progress != nil {
		progress = func(transferred, total int64) {
			p.progress(o.Target, transferred, total)
		}
	}
	if err := p.fetcher.Fetch(ctx, asset, o.ArchivePath, progress); err != nil {
		return err
	}

	o.Downloaded = asset.Size
	p.metrics.BytesDownloaded(o.Target.String(), asset.Size)
	return nil
}

// extractAll attempts every target, then fails with all extraction errors
// joined if any target failed.
func (p *Pipeline) extractAll(ctx context.Context, pc *Context) error {
	var errs []error
	for _, o := range pc.Outcomes {
		p.log.Info("extracting", "platform", o.Target, "dest", o.TreeDir)
		if err := p.extract.Extract(ctx, o.ArchivePath, o.TreeDir, p.host, o.Target); err != nil {
			o.Err = err
			p.metrics.PlatformFailure(o.Target.String(), StageExtract.String())
			p.log.Error("extraction failed", "platform", o.Target, "err", err)
			errs = append(errs, &PlatformError{Target: o.Target, Stage: StageExtract, Err: err})
		}
		p.touch()
	}
	return errors.Join(errs...)
}

// eachTarget runs fn for every target in order and stops at the first error.
func (p *Pipeline) eachTarget(pc *Context, s Stage, fn func(o *Outcome) error) error {
	for _, o := range pc.Outcomes {
		if err := fn(o); err != nil {
			o.Err = err
			p.metrics.PlatformFailure(o.Target.String(), s.String())
			return &PlatformError{Target: o.Target, Stage: s, Err: err}
		}
	}
	return nil
}

func (p *Pipeline) touch() {
	if p.lock == nil {
		return
	}
	if err := p.lock.Touch(); err != nil {
		p.log.Warn("could not refresh cache lock", "err", err)
	}
}
