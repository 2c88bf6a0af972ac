package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podsnip/internal/config"
	"podsnip/internal/services"
)

const downloadUserAgent = "podsnip/0.1"

// Downloader caches original episode audio on disk. Downloads are written
// to a temp file and renamed so a partial fetch never looks like a cached
// original.
type Downloader struct {
	client    *http.Client
	userAgent string
}

// NewDownloader builds a Downloader with the configured timeout.
func NewDownloader(cfg *config.Config) *Downloader {
	timeout := time.Duration(cfg.Workflow.DownloadTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Downloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: downloadUserAgent,
	}
}

// Download fetches url into dest unless a cached copy already exists.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	if strings.TrimSpace(url) == "" {
		return services.Wrap(services.ErrFetch, "download", "request", "enclosure url is empty", nil)
	}
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrStore, "download", "mkdir", "creating episode directory", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrFetch, "download", "request", "building download request", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrFetch, "download", "get", "downloading episode audio", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrFetch, "download", "get",
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, url), nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return services.Wrap(services.ErrStore, "download", "tempfile", "creating download temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return services.Wrap(services.ErrFetch, "download", "copy", "streaming episode audio", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return services.Wrap(services.ErrStore, "download", "close", "flushing download", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return services.Wrap(services.ErrStore, "download", "rename", "placing downloaded audio", err)
	}
	return nil
}
