package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/pipeline"
	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))

	successIcon = successStyle.Render("✓")
	errorIcon   = errorStyle.Render("✗")
)

// stageHeadings are printed as each stage starts.
var stageHeadings = map[pipeline.Stage]string{
	pipeline.StageResolveVersion:       "Resolving version...",
	pipeline.StageVerifyMetadata:       "Verifying release...",
	pipeline.StageDownload:             "Downloading releases...",
	pipeline.StageExtract:              "Extracting releases...",
	pipeline.StageRemoveDefault:        "Removing default app...",
	pipeline.StageOverlay:              "Adding app to releases...",
	pipeline.StageNormalizePermissions: "Setting permissions...",
}

func printStageHeading(w io.Writer, s pipeline.Stage) {
	if heading, ok := stageHeadings[s]; ok {
		fmt.Fprintln(w, headingStyle.Render(heading))
	}
}

// printSummary lists where every platform build ended up.
func printSummary(w io.Writer, result *pipeline.Result) {
	if len(result.Outcomes) == 0 {
		fmt.Fprintf(w, "%s Nothing to build for %s\n", successIcon, result.Tag)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Built %s", result.Tag)))
	for _, o := range result.Outcomes {
		icon := successIcon
		if o.Err != nil {
			icon = errorIcon
		}
		note := humanize.Bytes(uint64(o.Downloaded)) + " downloaded"
		if o.Cached {
			note = "cached"
		}
		fmt.Fprintf(w, "  %s %-8s %s %s\n", icon, o.Target, pathStyle.Render(o.TreeDir), mutedStyle.Render("("+note+")"))
	}
	fmt.Fprintln(w, mutedStyle.Render("  finished in "+result.Duration.Round(time.Millisecond).String()))
}

// progressPrinter renders one download progress line per platform.
type progressPrinter struct {
	w       io.Writer
	current platform.Target
	lastPct int
	active  bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, lastPct: -1}
}

// Update redraws the line when the platform or the whole percentage changes.
func (p *progressPrinter) Update(target platform.Target, transferred, total int64) {
	pct := 0
	if total > 0 {
		pct = int(transferred * 100 / total)
	}
	if p.active && target == p.current && pct == p.lastPct {
		return
	}
	if p.active && target != p.current {
		fmt.Fprintln(p.w)
	}

	p.current, p.lastPct, p.active = target, pct, true
	if total > 0 {
		fmt.Fprintf(p.w, "\r  %-8s %3d%%  %s / %s", target, pct,
			humanize.Bytes(uint64(transferred)), humanize.Bytes(uint64(total)))
		return
	}
	fmt.Fprintf(p.w, "\r  %-8s %s", target, humanize.Bytes(uint64(transferred)))
}

// Finish ends the current progress line.
func (p *progressPrinter) Finish() {
	if p.active {
		fmt.Fprintln(p.w)
		p.active = false
		p.lastPct = -1
	}
}
