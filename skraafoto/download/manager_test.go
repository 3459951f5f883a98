package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/example/go-skraafoto/skraafoto/fetch"
	"github.com/example/go-skraafoto/skraafoto/model"
)

func testConfig() Config {
	return Config{
		Token:  "secret",
		Retry:  fetch.Policy{MaxAttempts: 1, Delay: 0},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDownloadItemSavesAssets(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if got := r.Header.Get("token"); got != "secret" {
			t.Errorf("expected token header, got %q", got)
		}
		fmt.Fprintf(w, "payload for %s", r.URL.Path)
	}))
	defer server.Close()

	dir := t.TempDir()
	manager := NewManager(testConfig())
	item := model.Item{
		ID: "2023_83_29_2_0019_00003995",
		Assets: model.Assets{
			Data:      model.Asset{Href: server.URL + "/2023_83_29_2_0019_00003995.tif"},
			Thumbnail: model.Asset{Href: server.URL + "/2023_83_29_2_0019_00003995.jpg"},
		},
	}
	if err := manager.DownloadItem(context.Background(), server.Client(), item, dir); err != nil {
		t.Fatalf("DownloadItem returned error: %v", err)
	}

	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	for _, name := range []string{"2023_83_29_2_0019_00003995.tif", "2023_83_29_2_0019_00003995.jpg"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		want := "payload for /" + name
		if string(data) != want {
			t.Fatalf("expected %q, got %q", want, data)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".part" {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestDownloadURLsDeduplicates(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, "data")
	}))
	defer server.Close()

	manager := NewManager(testConfig())
	urls := []string{server.URL + "/a.tif", server.URL + "/a.tif", "", server.URL + "/a.tif"}
	if err := manager.DownloadURLs(context.Background(), server.Client(), "item", urls, t.TempDir()); err != nil {
		t.Fatalf("DownloadURLs returned error: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestDownloadReportsProgress(t *testing.T) {
	payload := make([]byte, 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	var mu sync.Mutex
	var last FileProgress
	cfg := testConfig()
	cfg.Progress = func(p FileProgress) {
		mu.Lock()
		last = p
		mu.Unlock()
	}

	manager := NewManager(cfg)
	if err := manager.DownloadURLs(context.Background(), server.Client(), "item", []string{server.URL + "/big.tif"}, t.TempDir()); err != nil {
		t.Fatalf("DownloadURLs returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if last.FileName != "big.tif" || last.ItemID != "item" {
		t.Fatalf("unexpected progress metadata: %+v", last)
	}
	if last.Downloaded != int64(len(payload)) {
		t.Fatalf("expected %d bytes reported, got %d", len(payload), last.Downloaded)
	}
	if last.Total != int64(len(payload)) {
		t.Fatalf("expected total %d, got %d", len(payload), last.Total)
	}
}

func TestDownloadFailureDoesNotLeavePartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	manager := NewManager(testConfig())
	err := manager.DownloadURLs(context.Background(), server.Client(), "item", []string{server.URL + "/missing.tif"}, dir)
	if err == nil {
		t.Fatal("expected an error for a missing asset")
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatalf("read dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected an empty directory, found %v", entries)
	}
}

func TestDownloadS3WithoutCredentialsURL(t *testing.T) {
	manager := NewManager(testConfig())
	err := manager.DownloadURLs(context.Background(), http.DefaultClient, "item", []string{"s3://bucket/key.tif"}, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for an s3 URL without a credentials endpoint")
	}
}
