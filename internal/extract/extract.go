// Package extract unpacks runtime-shell archives into a per-platform build
// tree, either in-process or through the system unzip tool when the archive
// relies on symlinks.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	"github.com/klauspost/compress/zip"
)

// Strategy selects how an archive is extracted.
type Strategy int

const (
	// StrategyNative extracts in-process.
	StrategyNative Strategy = iota
	// StrategyExternal delegates to the unzip utility, which keeps symlinks
	// inside application bundles intact.
	StrategyExternal
	// StrategyUnsupported means the host cannot extract the target faithfully.
	StrategyUnsupported
)

func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyExternal:
		return "external"
	default:
		return "unsupported"
	}
}

// StrategyFor picks the extraction strategy for a host/target pair.
func StrategyFor(host *platform.Info, target platform.Target) Strategy {
	if !target.RequiresSymlinks() {
		return StrategyNative
	}
	if host != nil && host.IsWindows() {
		return StrategyUnsupported
	}
	return StrategyExternal
}

// ExtractionError is returned when an archive cannot be decoded or the
// external tool fails.
type ExtractionError struct {
	Archive  string
	Strategy Strategy
	Output   string // captured tool output, external strategy only
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s (%s): %v", filepath.Base(e.Archive), e.Strategy, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// CommandRunner runs a child process and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Extractor handles archive extraction
type Extractor struct {
	run      CommandRunner
	unzipBin string
}

// NewExtractor creates an extractor that uses ExecRunner and "unzip" from
// PATH for the external strategy.
func NewExtractor() *Extractor {
	return &Extractor{run: ExecRunner, unzipBin: "unzip"}
}

// WithRunner returns a copy of e that runs the external tool through run.
func (e *Extractor) WithRunner(run CommandRunner) *Extractor {
	out := *e
	out.run = run
	return &out
}

// Extract removes destDir, recreates it and unpacks archivePath into it
// using the strategy for host and target.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string, host *platform.Info, target platform.Target) error {
	strategy := StrategyFor(host, target)
	if strategy == StrategyUnsupported {
		return &ExtractionError{
			Archive:  archivePath,
			Strategy: strategy,
			Err:      fmt.Errorf("%s archives cannot be extracted on a %s host", target, host.OS),
		}
	}

	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("remove stale tree: %w", err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	if strategy == StrategyExternal {
		return e.extractExternal(ctx, archivePath, destDir)
	}
	if err := extractZip(archivePath, destDir, host == nil || host.IsUnix()); err != nil {
		return &ExtractionError{Archive: archivePath, Strategy: strategy, Err: err}
	}
	return nil
}

// extractExternal runs "unzip -qq -o archive -d dest"; the exit status
// decides success.
func (e *Extractor) extractExternal(ctx context.Context, archivePath, destDir string) error {
	out, err := e.run(ctx, e.unzipBin, "-qq", "-o", archivePath, "-d", destDir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ExtractionError{
			Archive:  archivePath,
			Strategy: StrategyExternal,
			Output:   string(out),
			Err:      err,
		}
	}
	return nil
}

// extractZip unpacks every entry of a zip archive below destDir. Symlinks
// are recreated when symlinks is set and written as plain files otherwise.
func extractZip(archivePath, destDir string, symlinks bool) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	root, err := filepath.EvalSymlinks(filepath.Clean(destDir))
	if err != nil {
		return fmt.Errorf("resolve dest dir: %w", err)
	}
	for _, f := range r.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			dir, err := resolveInRoot(root, target)
			if err != nil {
				return fmt.Errorf("illegal file path: %s: %w", f.Name, err)
			}
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", dir, err)
			}

		case mode&os.ModeSymlink != 0 && symlinks:
			if err := writeSymlink(root, target, f); err != nil {
				return err
			}

		default:
			if err := writeFile(root, target, f); err != nil {
				return err
			}
		}
	}

	return nil
}

// entryPath joins an archive entry name onto root, rejecting names that
// escape it.
func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// resolveInRoot follows the symlinks already on disk along path and rejects
// results outside root. Trailing components that do not exist yet are kept
// as written.
func resolveInRoot(root, path string) (string, error) {
	existing := path
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			existing = resolved
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return "", err
		}
		missing = append([]string{filepath.Base(existing)}, missing...)
		existing = parent
	}

	full := filepath.Join(append([]string{existing}, missing...)...)
	if !within(root, full) {
		return "", fmt.Errorf("%s resolves outside %s", path, root)
	}
	return full, nil
}

// resolveParent resolves the directory that will hold target and returns the
// path to write, with the final component unresolved.
func resolveParent(root, target, name string) (string, error) {
	parent, err := resolveInRoot(root, filepath.Dir(target))
	if err != nil {
		return "", fmt.Errorf("illegal file path: %s: %w", name, err)
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	return filepath.Join(parent, filepath.Base(target)), nil
}

// removeLink deletes path when it is a symlink, so the next write lands on a
// fresh file instead of following the link.
func removeLink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return os.Remove(path)
	}
	return nil
}

func writeFile(root, target string, f *zip.File) error {
	target, err := resolveParent(root, target, f.Name)
	if err != nil {
		return err
	}
	if err := removeLink(target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(outFile, rc); err != nil {
		_ = outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}

	// OpenFile honours the umask; apply the archived bits explicitly.
	return os.Chmod(target, perm)
}

// writeSymlink recreates a symlink entry. The link must resolve inside root
// when followed from its on-disk parent.
func writeSymlink(root, target string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	data, err := io.ReadAll(io.LimitReader(rc, 4096))
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("read link %s: %w", f.Name, err)
	}

	linkname := string(data)
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("illegal symlink %s -> %s", f.Name, linkname)
	}

	target, err = resolveParent(root, target, f.Name)
	if err != nil {
		return err
	}
	dest := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !within(root, dest) {
		return fmt.Errorf("illegal symlink %s -> %s", f.Name, linkname)
	}
	if _, err := resolveInRoot(root, dest); err != nil {
		return fmt.Errorf("illegal symlink %s -> %s: %w", f.Name, linkname, err)
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}
