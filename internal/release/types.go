// Package release queries a GitHub-style release index for runtime-shell
// distribution releases and resolves tags and per-platform assets.
package release

import (
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

type (
	// Release is one tagged publication of the runtime-shell distribution.
	// It is immutable once fetched. The JSON form is what gets cached on disk.
	Release struct {
		TagName    string  `json:"tag_name"`
		Name       string  `json:"name,omitempty"`
		Prerelease bool    `json:"prerelease"`
		Draft      bool    `json:"draft,omitempty"`
		Assets     []Asset `json:"assets"`
	}

	// Asset is a downloadable file attached to a release.
	Asset struct {
		Name string `json:"name"`
		URL  string `json:"url"`
		Size int64  `json:"size"`
	}

	// apiRelease is the JSON wire format of the release listing endpoint.
	apiRelease struct {
		TagName    string     `json:"tag_name"`
		Name       string     `json:"name"`
		Prerelease bool       `json:"prerelease"`
		Draft      bool       `json:"draft"`
		Assets     []apiAsset `json:"assets"`
	}

	// apiAsset is the JSON wire format of a release asset.
	apiAsset struct {
		Name               string `json:"name"`
		URL                string `json:"url"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}
)

// toRelease converts the wire type. The API asset URL is preferred; it serves
// the binary when requested with an octet-stream Accept header.
func toRelease(ar apiRelease) Release {
	assets := make([]Asset, 0, len(ar.Assets))
	for _, aa := range ar.Assets {
		u := aa.URL
		if u == "" {
			u = aa.BrowserDownloadURL
		}
		assets = append(assets, Asset{Name: aa.Name, URL: u, Size: aa.Size})
	}

	return Release{
		TagName:    ar.TagName,
		Name:       ar.Name,
		Prerelease: ar.Prerelease,
		Draft:      ar.Draft,
		Assets:     assets,
	}
}

// IsStable reports whether the release is neither a prerelease nor a draft.
func (r *Release) IsStable() bool {
	return !r.Prerelease && !r.Draft
}

// TotalSize sums the sizes of all assets.
func (r *Release) TotalSize() int64 {
	var total int64
	for _, a := range r.Assets {
		total += a.Size
	}
	return total
}

// AssetIndex is a by-name lookup over one release's assets.
type AssetIndex struct {
	tag    string
	byName map[string]Asset
	names  []string
}

// AssetIndex builds the by-name lookup for r. Build it once and reuse it.
func (r *Release) AssetIndex() *AssetIndex {
	idx := &AssetIndex{
		tag:    r.TagName,
		byName: make(map[string]Asset, len(r.Assets)),
		names:  make([]string, 0, len(r.Assets)),
	}
	for _, a := range r.Assets {
		if _, dup := idx.byName[a.Name]; dup {
			continue
		}
		idx.byName[a.Name] = a
		idx.names = append(idx.names, a.Name)
	}
	return idx
}

// Lookup returns the asset with exactly this name. The NotFoundError lists
// every available asset name.
func (ai *AssetIndex) Lookup(name string) (Asset, error) {
	if a, ok := ai.byName[name]; ok {
		return a, nil
	}
	return Asset{}, &NotFoundError{
		Kind:      KindAsset,
		Name:      name,
		Release:   ai.tag,
		Available: slices.Clone(ai.names),
	}
}

// Index is a by-tag lookup over a fetched release list, in API order.
type Index struct {
	releases []Release
	byTag    map[string]int
}

// NewIndex builds the lookup once per fetched list.
func NewIndex(releases []Release) *Index {
	idx := &Index{
		releases: releases,
		byTag:    make(map[string]int, len(releases)),
	}
	for i, r := range releases {
		if _, dup := idx.byTag[r.TagName]; !dup {
			idx.byTag[r.TagName] = i
		}
	}
	return idx
}

// Releases returns the indexed list in API order.
func (idx *Index) Releases() []Release {
	return idx.releases
}

// Lookup finds a release by tag, trying the tag candidates in order.
func (idx *Index) Lookup(tag string) (*Release, bool) {
	for _, candidate := range TagCandidates(tag) {
		if i, ok := idx.byTag[candidate]; ok {
			return &idx.releases[i], true
		}
	}
	return nil, false
}

// LatestStable returns the first stable release in list order.
func (idx *Index) LatestStable() (*Release, error) {
	for i := range idx.releases {
		if idx.releases[i].IsStable() {
			return &idx.releases[i], nil
		}
	}
	return nil, &NotFoundError{Kind: KindStable}
}

// TagCandidates lists the tags a requested version may be published under:
// the exact string first, then the "v"-prefixed form when that is valid
// semver ("0.19.5" also matches "v0.19.5").
func TagCandidates(tag string) []string {
	tag = strings.TrimSpace(tag)
	candidates := []string{tag}
	if !strings.HasPrefix(tag, "v") && semver.IsValid("v"+tag) {
		candidates = append(candidates, "v"+tag)
	}
	return candidates
}
