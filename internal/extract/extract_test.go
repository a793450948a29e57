package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
	"github.com/klauspost/compress/zip"
)

type zipEntry struct {
	name    string
	content string
	mode    os.FileMode
}

// createTestZip writes a zip archive with the given entries.
func createTestZip(t *testing.T, entries []zipEntry) string {
	t.Helper()

	archivePath := filepath.Join(t.TempDir(), "test.zip")
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = archiveFile.Close() }()

	zw := zip.NewWriter(archiveFile)
	for _, e := range entries {
		header := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		mode := e.mode
		if mode == 0 {
			mode = 0644
		}
		header.SetMode(mode)

		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to write header for %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.content)); err != nil {
			t.Fatalf("failed to write content for %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return archivePath
}

var (
	linuxHost   = &platform.Info{OS: "linux", Arch: "amd64"}
	darwinHost  = &platform.Info{OS: "darwin", Arch: "amd64"}
	windowsHost = &platform.Info{OS: "windows", Arch: "amd64"}
)

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		name   string
		host   *platform.Info
		target platform.Target
		want   Strategy
	}{
		{"darwin_on_darwin", darwinHost, platform.TargetDarwin, StrategyExternal},
		{"darwin_on_linux", linuxHost, platform.TargetDarwin, StrategyExternal},
		{"darwin_on_windows", windowsHost, platform.TargetDarwin, StrategyUnsupported},
		{"linux_on_darwin", darwinHost, platform.TargetLinux64, StrategyNative},
		{"win32_on_windows", windowsHost, platform.TargetWin32, StrategyNative},
		{"win32_on_linux", linuxHost, platform.TargetWin32, StrategyNative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrategyFor(tt.host, tt.target); got != tt.want {
				t.Errorf("StrategyFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractNative(t *testing.T) {
	archive := createTestZip(t, []zipEntry{
		{name: "resources/", mode: os.ModeDir | 0755},
		{name: "resources/default_app/index.html", content: "<html>"},
		{name: "atom", content: "#!/bin/sh\n", mode: 0755},
		{name: "LICENSE", content: "MIT"},
	})

	dest := filepath.Join(t.TempDir(), "linux64", "atom-shell")
	if err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dest, "resources", "default_app", "index.html"))
	if err != nil || string(content) != "<html>" {
		t.Errorf("index.html = %q, %v", content, err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, "atom"))
		if err != nil {
			t.Fatalf("stat atom: %v", err)
		}
		if info.Mode().Perm() != 0755 {
			t.Errorf("atom mode = %v, want 0755", info.Mode().Perm())
		}
	}
}

func TestExtractRemovesStaleTree(t *testing.T) {
	archive := createTestZip(t, []zipEntry{{name: "atom", content: "new"}})
	dest := filepath.Join(t.TempDir(), "atom-shell")

	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(dest, "stale.txt")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived extraction")
	}
}

func TestExtractPathTraversal(t *testing.T) {
	archive := createTestZip(t, []zipEntry{{name: "../evil.txt", content: "x"}})
	parent := t.TempDir()
	dest := filepath.Join(parent, "atom-shell")

	err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped destination")
	}
}

func TestExtractNativeSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require a unix host")
	}

	archive := createTestZip(t, []zipEntry{
		{name: "Versions/A/lib", content: "binary"},
		{name: "Versions/Current", content: "A", mode: os.ModeSymlink | 0777},
	})
	dest := filepath.Join(t.TempDir(), "tree")

	if err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	link, err := os.Readlink(filepath.Join(dest, "Versions", "Current"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if link != "A" {
		t.Errorf("link = %q, want A", link)
	}
}

func TestExtractRejectsEscapingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require a unix host")
	}

	archive := createTestZip(t, []zipEntry{{name: "link", content: "../../etc/passwd", mode: os.ModeSymlink | 0777}})
	err := NewExtractor().Extract(context.Background(), archive, filepath.Join(t.TempDir(), "tree"), linuxHost, platform.TargetLinux64)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtractRejectsSymlinkChainEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require a unix host")
	}

	// "a" points at the root, so "a/b/c -> ../.." reads as the root on paper
	// but lands on the parent of the tree on disk.
	archive := createTestZip(t, []zipEntry{
		{name: "a", content: ".", mode: os.ModeSymlink | 0777},
		{name: "b/", mode: os.ModeDir | 0755},
		{name: "a/b/c", content: "../..", mode: os.ModeSymlink | 0777},
		{name: "a/b/c/evil.txt", content: "x"},
	})
	parent := t.TempDir()
	dest := filepath.Join(parent, "tree")

	err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	for _, p := range []string{filepath.Join(parent, "evil.txt"), filepath.Join(filepath.Dir(parent), "evil.txt")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("entry escaped destination: %s", p)
		}
	}
}

func TestExtractRejectsWriteThroughEscapingParent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require a unix host")
	}

	// "d/x" resolves to the root, so "up -> d/x/.." is the root lexically
	// but the parent of the tree once followed.
	archive := createTestZip(t, []zipEntry{
		{name: "d/", mode: os.ModeDir | 0755},
		{name: "d/x", content: "..", mode: os.ModeSymlink | 0777},
		{name: "up", content: "d/x/..", mode: os.ModeSymlink | 0777},
		{name: "up/evil.txt", content: "x"},
	})
	parent := t.TempDir()
	dest := filepath.Join(parent, "tree")

	err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped destination")
	}
}

func TestExtractFileReplacesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require a unix host")
	}

	archive := createTestZip(t, []zipEntry{
		{name: "real", content: "original"},
		{name: "link", content: "real", mode: os.ModeSymlink | 0777},
		{name: "link", content: "replaced"},
	})
	dest := filepath.Join(t.TempDir(), "tree")

	if err := NewExtractor().Extract(context.Background(), archive, dest, linuxHost, platform.TargetLinux64); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if data, _ := os.ReadFile(filepath.Join(dest, "real")); string(data) != "original" {
		t.Errorf("real = %q, written through symlink", data)
	}
	info, err := os.Lstat(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		t.Error("link is still a symlink")
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "broken.zip")
	if err := os.WriteFile(archive, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	err := NewExtractor().Extract(context.Background(), archive, filepath.Join(t.TempDir(), "tree"), linuxHost, platform.TargetWin32)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractErr.Strategy != StrategyNative {
		t.Errorf("Strategy = %v", extractErr.Strategy)
	}
}

func TestExtractExternal(t *testing.T) {
	var gotName string
	var gotArgs []string
	ok := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	dest := filepath.Join(t.TempDir(), "darwin", "atom-shell")
	e := NewExtractor().WithRunner(ok)
	if err := e.Extract(context.Background(), "/cache/a.zip", dest, darwinHost, platform.TargetDarwin); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if gotName != "unzip" {
		t.Errorf("command = %q, want unzip", gotName)
	}
	wantArgs := []string{"-qq", "-o", "/cache/a.zip", "-d", dest}
	if !reflect.DeepEqual(gotArgs, wantArgs) {
		t.Errorf("args = %v, want %v", gotArgs, wantArgs)
	}
	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		t.Errorf("destination not created: %v", err)
	}
}

func TestExtractExternalFailure(t *testing.T) {
	fail := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("End-of-central-directory signature not found"), errors.New("exit status 9")
	}

	e := NewExtractor().WithRunner(fail)
	err := e.Extract(context.Background(), "/cache/a.zip", filepath.Join(t.TempDir(), "d"), darwinHost, platform.TargetDarwin)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractErr.Strategy != StrategyExternal || extractErr.Output == "" {
		t.Errorf("unexpected error fields: %+v", extractErr)
	}
}

func TestExtractUnsupported(t *testing.T) {
	called := false
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		called = true
		return nil, nil
	}

	e := NewExtractor().WithRunner(run)
	err := e.Extract(context.Background(), "/cache/a.zip", filepath.Join(t.TempDir(), "d"), windowsHost, platform.TargetDarwin)

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) || extractErr.Strategy != StrategyUnsupported {
		t.Fatalf("expected unsupported ExtractionError, got %v", err)
	}
	if called {
		t.Error("external tool should not run")
	}
}
