package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/release"
)

func TestDownloaderFetch(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		size       int64
		wantErr    bool
	}{
		{name: "successful_download", statusCode: http.StatusOK, body: "test archive content", size: 20},
		{name: "unknown_size", statusCode: http.StatusOK, body: "abc", size: 0},
		{name: "404_not_found", statusCode: http.StatusNotFound, body: "not found", size: 9, wantErr: true},
		{name: "500_server_error", statusCode: http.StatusInternalServerError, body: "server error", size: 12, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") != DefaultUserAgent {
					t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
				}
				if r.Header.Get("Accept") != "application/octet-stream" {
					t.Errorf("unexpected Accept: %s", r.Header.Get("Accept"))
				}
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.body)); err != nil {
					t.Errorf("failed to write response: %v", err)
				}
			}))
			defer server.Close()

			destPath := filepath.Join(t.TempDir(), "nested", "asset.zip")
			asset := release.Asset{Name: "asset.zip", URL: server.URL + "/asset", Size: tt.size}
			err := NewDownloader().Fetch(context.Background(), asset, destPath, nil)

			if tt.wantErr {
				var remote *release.RemoteServiceError
				if !errors.As(err, &remote) {
					t.Fatalf("expected RemoteServiceError, got %v", err)
				}
				if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
					t.Error("destination should not exist after failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			content, err := os.ReadFile(destPath)
			if err != nil {
				t.Fatalf("failed to read downloaded file: %v", err)
			}
			if string(content) != tt.body {
				t.Errorf("content = %q, want %q", content, tt.body)
			}
			if _, err := os.Stat(destPath + ".tmp"); !os.IsNotExist(err) {
				t.Error("temp file left behind")
			}
		})
	}
}

func TestDownloaderFetchSizeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("short"))
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "asset.zip")
	asset := release.Asset{Name: "asset.zip", URL: server.URL, Size: 100}
	err := NewDownloader().Fetch(context.Background(), asset, destPath, nil)

	var transfer *TransferError
	if !errors.As(err, &transfer) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if !errors.Is(err, errSizeMismatch) {
		t.Errorf("expected size mismatch cause, got %v", err)
	}
	if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
		t.Error("destination should not exist after failure")
	}
}

func TestDownloaderFetchNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewDownloader().Fetch(context.Background(), release.Asset{Name: "a.zip", URL: url}, filepath.Join(t.TempDir(), "a.zip"), nil)

	var transfer *TransferError
	if !errors.As(err, &transfer) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if !strings.Contains(err.Error(), "a.zip") {
		t.Errorf("error does not name asset: %v", err)
	}
}

func TestDownloaderFetchProgress(t *testing.T) {
	body := strings.Repeat("x", copyBufferSize*3+17)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	var last, total int64
	calls := 0
	progress := func(transferred, expected int64) {
		if transferred < last {
			t.Errorf("progress went backwards: %d < %d", transferred, last)
		}
		last, total = transferred, expected
		calls++
	}

	asset := release.Asset{Name: "a.zip", URL: server.URL, Size: int64(len(body))}
	if err := NewDownloader().Fetch(context.Background(), asset, filepath.Join(t.TempDir(), "a.zip"), progress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls == 0 {
		t.Fatal("progress never called")
	}
	if last != int64(len(body)) || total != int64(len(body)) {
		t.Errorf("final progress = %d/%d, want %d", last, total, len(body))
	}
}

func TestDownloaderFetchPanickingProgress(t *testing.T) {
	body := strings.Repeat("y", copyBufferSize*2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	calls := 0
	progress := func(int64, int64) {
		calls++
		panic("sink failure")
	}

	destPath := filepath.Join(t.TempDir(), "a.zip")
	asset := release.Asset{Name: "a.zip", URL: server.URL, Size: int64(len(body))}
	if err := NewDownloader().Fetch(context.Background(), asset, destPath, progress); err != nil {
		t.Fatalf("panicking sink aborted transfer: %v", err)
	}
	if calls != 1 {
		t.Errorf("sink called %d times after panicking, want 1", calls)
	}
	if info, err := os.Stat(destPath); err != nil || info.Size() != int64(len(body)) {
		t.Errorf("incomplete file: %v", err)
	}
}

func TestDownloaderFetchAuthorization(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	d := NewDownloader(WithToken("tok"))
	if err := d.Fetch(context.Background(), release.Asset{Name: "a", URL: server.URL}, filepath.Join(t.TempDir(), "a"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
