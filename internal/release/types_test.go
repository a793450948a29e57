package release

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestTagCandidates(t *testing.T) {
	tests := []struct {
		tag  string
		want []string
	}{
		{"v0.19.5", []string{"v0.19.5"}},
		{"0.19.5", []string{"0.19.5", "v0.19.5"}},
		{" 0.19.5 ", []string{"0.19.5", "v0.19.5"}},
		{"nightly", []string{"nightly"}},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := TagCandidates(tt.tag); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TagCandidates(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestIndexLookupPrefersExactTag(t *testing.T) {
	idx := NewIndex([]Release{{TagName: "v1.0.0", Name: "prefixed"}, {TagName: "1.0.0", Name: "exact"}})

	r, ok := idx.Lookup("1.0.0")
	if !ok || r.Name != "exact" {
		t.Fatalf("Lookup(1.0.0) = %+v, %v", r, ok)
	}
	if _, ok := idx.Lookup("2.0.0"); ok {
		t.Error("Lookup(2.0.0) should miss")
	}
}

func TestAssetIndexLookup(t *testing.T) {
	rel := &Release{
		TagName: "v0.19.5",
		Assets: []Asset{
			{Name: "atom-shell-v0.19.5-linux-x64.zip", Size: 1},
			{Name: "atom-shell-v0.19.5-win32-ia32.zip", Size: 2},
		},
	}
	idx := rel.AssetIndex()

	a, err := idx.Lookup("atom-shell-v0.19.5-win32-ia32.zip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Size != 2 {
		t.Errorf("Size = %d", a.Size)
	}

	const missing = "atom-shell-v0.19.5-darwin-x64.zip"
	_, err = idx.Lookup(missing)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{missing, "atom-shell-v0.19.5-linux-x64.zip", "atom-shell-v0.19.5-win32-ia32.zip"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not contain %q", msg, want)
		}
	}
}

func TestReleaseTotalSize(t *testing.T) {
	rel := Release{Assets: []Asset{{Size: 3}, {Size: 4}}}
	if got := rel.TotalSize(); got != 7 {
		t.Errorf("TotalSize() = %d, want 7", got)
	}
}
