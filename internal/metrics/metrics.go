// Package metrics records build pipeline metrics in a Prometheus registry
// that can be exported in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shellapp"

// Recorder owns the pipeline collectors and their registry.
type Recorder struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	downloadedBytes  *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	platformFailures *prometheus.CounterVec
	builds           *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Archive cache lookups by platform and result",
			},
			[]string{"platform", "result"},
		),
		downloadedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Bytes downloaded per platform",
			},
			[]string{"platform"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		platformFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "platform_failures_total",
				Help:      "Per-platform failures by stage",
			},
			[]string{"platform", "stage"},
		),
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Pipeline runs by final state",
			},
			[]string{"state"},
		),
	}

	r.registry.MustRegister(r.cacheLookups, r.downloadedBytes, r.stageDuration, r.platformFailures, r.builds)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// CacheHit counts a valid cached archive.
func (r *Recorder) CacheHit(platform string) {
	r.cacheLookups.WithLabelValues(platform, "hit").Inc()
}

// CacheMiss counts an archive that had to be downloaded.
func (r *Recorder) CacheMiss(platform string) {
	r.cacheLookups.WithLabelValues(platform, "miss").Inc()
}

// BytesDownloaded adds n downloaded bytes for platform.
func (r *Recorder) BytesDownloaded(platform string, n int64) {
	if n > 0 {
		r.downloadedBytes.WithLabelValues(platform).Add(float64(n))
	}
}

// StageDuration observes how long a stage took.
func (r *Recorder) StageDuration(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// PlatformFailure counts a platform failing in stage.
func (r *Recorder) PlatformFailure(platform, stage string) {
	r.platformFailures.WithLabelValues(platform, stage).Inc()
}

// BuildFinished counts a completed run by its final state.
func (r *Recorder) BuildFinished(state string) {
	r.builds.WithLabelValues(state).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
