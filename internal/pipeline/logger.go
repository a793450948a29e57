package pipeline

import "time"

// Logger is the structured logger the pipeline reports to. It matches the
// charmbracelet/log Logger method set.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(msg interface{}, keyvals ...interface{}) {}
func (noopLogger) Info(msg interface{}, keyvals ...interface{})  {}
func (noopLogger) Warn(msg interface{}, keyvals ...interface{})  {}
func (noopLogger) Error(msg interface{}, keyvals ...interface{}) {}

// Metrics receives pipeline measurements.
type Metrics interface {
	CacheHit(platform string)
	CacheMiss(platform string)
	BytesDownloaded(platform string, n int64)
	StageDuration(stage string, d time.Duration)
	PlatformFailure(platform, stage string)
	BuildFinished(state string)
}

type noopMetrics struct{}

func (noopMetrics) CacheHit(string)                     {}
func (noopMetrics) CacheMiss(string)                    {}
func (noopMetrics) BytesDownloaded(string, int64)       {}
func (noopMetrics) StageDuration(string, time.Duration) {}
func (noopMetrics) PlatformFailure(string, string)      {}
func (noopMetrics) BuildFinished(string)                {}
