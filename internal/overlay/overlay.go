// Package overlay deposits an application payload into an extracted
// runtime-shell tree, replacing the bundled default application.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
)

const (
	// ArchiveExt is the extension of a packed application payload.
	ArchiveExt = ".asar"
	// UnpackedSuffix names the directory of files kept out of the archive.
	UnpackedSuffix = ".unpacked"

	appName        = "app"
	defaultAppName = "default_app"

	// ExecMode is applied by NormalizePermissions.
	ExecMode os.FileMode = 0755
)

// Layout locates the well-known paths of one extracted tree.
type Layout struct {
	Root        string
	ResourceDir string
	App         string // directory payload destination
	DefaultApp  string
	Executable  string
}

// LayoutFor returns the layout of the tree extracted for target.
func LayoutFor(tree string, target platform.Target) Layout {
	res := filepath.Join(tree, target.ResourceDir())
	return Layout{
		Root:        tree,
		ResourceDir: res,
		App:         filepath.Join(res, appName),
		DefaultApp:  filepath.Join(res, defaultAppName),
		Executable:  filepath.Join(tree, target.Executable()),
	}
}

// PackedApp is the destination of a packed payload.
func (l Layout) PackedApp() string {
	return l.App + ArchiveExt
}

// UnpackedApp is the destination of the unpacked sibling of a packed payload.
func (l Layout) UnpackedApp() string {
	return l.App + ArchiveExt + UnpackedSuffix
}

// appVariants lists every path a payload may occupy.
func (l Layout) appVariants() []string {
	return []string{l.App, l.PackedApp(), l.UnpackedApp()}
}

// OverlayInputError is returned when the payload is neither a directory nor a
// packed archive file.
type OverlayInputError struct {
	Path   string
	Reason string
}

func (e *OverlayInputError) Error() string {
	return fmt.Sprintf("invalid application payload %s: %s", e.Path, e.Reason)
}

// RemoveDefaultPayload deletes the bundled default application. A missing
// default application is not an error.
func RemoveDefaultPayload(tree string, target platform.Target) error {
	if err := os.RemoveAll(LayoutFor(tree, target).DefaultApp); err != nil {
		return fmt.Errorf("remove default app: %w", err)
	}
	return nil
}

// OverlayApplication copies the payload at src into tree and returns the
// path it now occupies.
//
// A directory is copied recursively to the app path with timestamps kept,
// symlinks inlined and dot-files skipped. A *.asar file is copied to
// app.asar together with its "<src>.unpacked" sibling when one exists.
// Payloads from an earlier overlay are removed first.
func OverlayApplication(src, tree string, target platform.Target) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &OverlayInputError{Path: src, Reason: "does not exist"}
		}
		return "", fmt.Errorf("stat payload: %w", err)
	}

	l := LayoutFor(tree, target)
	switch {
	case info.IsDir():
		if err := clearPayload(l); err != nil {
			return "", err
		}
		if err := copyDir(src, l.App, true); err != nil {
			return "", fmt.Errorf("copy app dir: %w", err)
		}
		return l.App, nil

	case info.Mode().IsRegular() && strings.EqualFold(filepath.Ext(src), ArchiveExt):
		if err := clearPayload(l); err != nil {
			return "", err
		}
		if err := copyFile(src, l.PackedApp(), info); err != nil {
			return "", fmt.Errorf("copy app archive: %w", err)
		}

		unpacked := src + UnpackedSuffix
		if uinfo, err := os.Stat(unpacked); err == nil && uinfo.IsDir() {
			if err := copyDir(unpacked, l.UnpackedApp(), false); err != nil {
				return "", fmt.Errorf("copy unpacked app: %w", err)
			}
		}
		return l.PackedApp(), nil

	default:
		return "", &OverlayInputError{Path: src, Reason: "expected a directory or a " + ArchiveExt + " file"}
	}
}

func clearPayload(l Layout) error {
	for _, p := range l.appVariants() {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("remove previous app: %w", err)
		}
	}
	return os.MkdirAll(l.ResourceDir, 0755)
}

// NormalizePermissions sets ExecMode on the app paths that exist and on the
// runtime executable. It does nothing unless both host and target are
// unix-family.
func NormalizePermissions(tree string, target platform.Target, host *platform.Info) error {
	if !target.IsUnix() || host == nil || !host.IsUnix() {
		return nil
	}

	l := LayoutFor(tree, target)
	for _, p := range append(l.appVariants(), l.Executable) {
		if err := os.Chmod(p, ExecMode); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("set permissions on %s: %w", p, err)
		}
	}
	return nil
}

// isHidden reports whether name follows the unix hidden-file convention.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// copyDir copies src to dst recursively. Symlinks are followed and their
// targets copied, and modification times are kept. Hidden entries are skipped
// when skipHidden is set.
func copyDir(src, dst string, skipHidden bool) error {
	return copyDirVisited(src, dst, skipHidden, map[string]bool{})
}

func copyDirVisited(src, dst string, skipHidden bool, visited map[string]bool) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}
	if visited[resolved] {
		return fmt.Errorf("symlink cycle at %s", src)
	}
	visited[resolved] = true
	defer delete(visited, resolved)

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if skipHidden && isHidden(entry.Name()) {
			continue
		}
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		// Stat follows symlinks, so linked content is inlined.
		info, err := os.Stat(from)
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			if err := copyDirVisited(from, to, skipHidden, visited); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyFile(from, to, info); err != nil {
				return err
			}
		}
	}

	return os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime())
}

// copyFile copies one regular file, keeping its mode bits and mtime.
func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
