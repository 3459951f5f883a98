// Package download saves catalog item assets (full images and thumbnails)
// to local storage, with bounded concurrency and progress reporting.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-skraafoto/skraafoto/fetch"
	"github.com/example/go-skraafoto/skraafoto/model"
)

// ProgressFunc is invoked as bytes are written for an individual file.
type ProgressFunc func(FileProgress)

// FileProgress reports download progress for a single file.
type FileProgress struct {
	ItemID     string
	FileName   string
	URL        string
	Downloaded int64
	Total      int64
}

// Config controls how downloads are executed.
type Config struct {
	Concurrency      int
	Progress         ProgressFunc
	Token            string
	S3CredentialsURL string
	Retry            fetch.Policy
	Logger           *slog.Logger
}

// Manager is responsible for downloading item assets.
type Manager struct {
	cfg Config
	s3  *s3Fetcher
}

// NewManager constructs a download manager with the provided configuration.
func NewManager(cfg Config) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fetch.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Manager{cfg: cfg}
	if cfg.S3CredentialsURL != "" {
		m.s3 = newS3Fetcher(cfg.S3CredentialsURL, cfg.Token)
	}
	return m
}

// DownloadItem saves an item's data asset, and its thumbnail when present,
// into destDir.
func (m *Manager) DownloadItem(ctx context.Context, client *http.Client, item model.Item, destDir string) error {
	var urls []string
	if item.Assets.Data.Href != "" {
		urls = append(urls, item.Assets.Data.Href)
	}
	if item.Assets.Thumbnail.Href != "" {
		urls = append(urls, item.Assets.Thumbnail.Href)
	}
	if len(urls) == 0 {
		return fmt.Errorf("download: item %s has no downloadable assets", item.ID)
	}
	return m.DownloadURLs(ctx, client, item.ID, urls, destDir)
}

// DownloadURLs downloads the provided URLs into destDir using up to
// Concurrency workers. Failures are collected; one failed URL does not stop
// the rest.
func (m *Manager) DownloadURLs(ctx context.Context, client *http.Client, itemID string, urls []string, destDir string) error {
	if client == nil {
		return errors.New("download: http client is required")
	}
	if destDir == "" {
		return errors.New("download: destination directory is required")
	}
	if len(urls) == 0 {
		return errors.New("download: no URLs supplied")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("download: create destination directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		if raw == "" {
			continue
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		g.Go(func() error {
			if err := m.downloadOne(ctx, client, itemID, raw, destDir); err != nil {
				return fmt.Errorf("%s: %w", raw, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) downloadOne(ctx context.Context, client *http.Client, itemID, rawURL, destDir string) error {
	name, err := fileName(rawURL)
	if err != nil {
		return err
	}
	destPath := filepath.Join(destDir, name)

	if strings.HasPrefix(strings.ToLower(rawURL), "s3://") {
		if m.s3 == nil {
			return errors.New("download: s3 URL requires a credentials URL")
		}
		return m.s3.download(ctx, client, rawURL, destPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if m.cfg.Token != "" {
		req.Header.Set("token", m.cfg.Token)
	}

	resp, err := fetch.DoRequest(ctx, client, req, m.cfg.Retry, m.cfg.Logger)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return m.writeFile(resp, itemID, name, rawURL, destPath)
}

// writeFile streams the body to destPath via a temp file, renamed only on
// success so partial downloads never masquerade as complete assets.
func (m *Manager) writeFile(resp *http.Response, itemID, name, rawURL, destPath string) (err error) {
	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	writer := newProgressWriter(out, m.cfg.Progress, FileProgress{
		ItemID:   itemID,
		FileName: name,
		URL:      rawURL,
		Total:    resp.ContentLength,
	})

	if _, err = io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	base := filepath.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return fmt.Sprintf("download-%d", time.Now().UnixNano()), nil
	}
	return base, nil
}

type progressWriter struct {
	dst      io.Writer
	progress ProgressFunc
	meta     FileProgress
}

func newProgressWriter(dst io.Writer, fn ProgressFunc, meta FileProgress) *progressWriter {
	return &progressWriter{dst: dst, progress: fn, meta: meta}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.meta.Downloaded += int64(n)
		if w.progress != nil {
			w.progress(w.meta)
		}
	}
	return n, err
}
