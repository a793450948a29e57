// Package cache manages the download cache: runtime-shell archives keyed by
// asset name and release metadata keyed by tag.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/release"
)

const (
	metadataPrefix = "package-info-"
	metadataSuffix = ".json"
)

// Store is a cache directory on disk.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// Ensure creates the cache directory if needed.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}

// PathFor returns the archive path for an asset. Asset names embed version
// and platform, so paths never collide.
func (s *Store) PathFor(assetName string) string {
	return filepath.Join(s.Dir, filepath.Base(assetName))
}

// IsCached reports whether path holds a valid copy of an asset of the given
// size: it must exist as a regular file of exactly that size. force makes
// every entry valid.
func IsCached(path string, size int64, force bool) bool {
	if force {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == size
}

// ErrArchiveMissing reports a forced cache hit with no archive on disk.
var ErrArchiveMissing = errors.New("cached archive missing")

// RequireArchive checks that path holds a regular file. Forced cache hits skip
// the size check but still need something to extract.
func RequireArchive(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrArchiveMissing)
	}
	return nil
}

// metadataPath returns the metadata file for tag.
func (s *Store) metadataPath(tag string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(tag)
	return filepath.Join(s.Dir, metadataPrefix+safe+metadataSuffix)
}

// SaveRelease persists release metadata under tag.
func (s *Store) SaveRelease(tag string, rel *release.Release) error {
	if rel == nil {
		return errors.New("save release: release is nil")
	}
	if err := s.Ensure(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rel, "", "  ")
	if err != nil {
		return fmt.Errorf("encode release metadata: %w", err)
	}

	path := s.metadataPath(tag)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write release metadata: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename release metadata: %w", err)
	}
	return nil
}

// LoadRelease returns the metadata cached for tag. Missing, unreadable and
// corrupt entries all report absent.
func (s *Store) LoadRelease(tag string) (*release.Release, bool) {
	data, err := os.ReadFile(s.metadataPath(tag))
	if err != nil {
		return nil, false
	}

	var rel release.Release
	if err := json.Unmarshal(data, &rel); err != nil || rel.TagName == "" {
		return nil, false
	}
	return &rel, true
}

// Clean removes the cache directory and everything in it.
func (s *Store) Clean() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	return nil
}
