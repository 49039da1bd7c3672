package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

const maxImageBytes = 20 << 20

// FileSink writes each delivered result set to <dir>/<job id>.<format>.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Deliver(ctx context.Context, meta Meta, records []models.ProductRecord) error {
	if meta.Format == "" {
		meta.Format = FormatCSV
	}
	if err := meta.Format.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(s.dir, meta.JobID+"."+string(meta.Format))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := NewWriter(f).Deliver(ctx, meta, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write report: %w", err)
	}
	return os.Rename(tmp, path)
}

// DirImages downloads images into a directory as <asin>.<ext>.
type DirImages struct {
	dir    string
	client *http.Client
}

func NewDirImages(dir string, timeout time.Duration) *DirImages {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DirImages{dir: dir, client: &http.Client{Timeout: timeout}}
}

func (d *DirImages) SaveImage(ctx context.Context, ref ImageRef) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create image dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", ref.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", ref.URL, resp.StatusCode)
	}

	path := filepath.Join(d.dir, ref.ASIN+"."+ref.Ext())
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to save image: %w", err)
	}
	return f.Close()
}
