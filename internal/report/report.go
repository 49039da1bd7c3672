package report

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/maltedev/amazon-product-tracker/internal/filter"
	"github.com/maltedev/amazon-product-tracker/internal/models"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
	FormatTXT  Format = "txt"
)

// ParseFormat accepts a format tag case-insensitively. An empty tag selects csv.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatCSV, nil
	}
	if err := f.Validate(); err != nil {
		return "", err
	}
	return f, nil
}

func (f Format) Validate() error {
	switch f {
	case FormatCSV, FormatJSON, FormatXLSX, FormatHTML, FormatTXT:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Meta describes the run that produced a set of records.
type Meta struct {
	JobID      string      `json:"job_id"`
	Currency   string      `json:"currency"`
	Filter     filter.Spec `json:"filter"`
	BaseURL    string      `json:"base_url"`
	Format     Format      `json:"format"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Sink receives the final ordered result set of a finished job.
type Sink interface {
	Deliver(ctx context.Context, meta Meta, records []models.ProductRecord) error
}

type SinkFunc func(ctx context.Context, meta Meta, records []models.ProductRecord) error

func (f SinkFunc) Deliver(ctx context.Context, meta Meta, records []models.ProductRecord) error {
	return f(ctx, meta, records)
}

// Multi delivers to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, meta Meta, records []models.ProductRecord) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Deliver(ctx, meta, records); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// ImageRef pairs a product id with the image to persist for it.
type ImageRef struct {
	ASIN string `json:"asin"`
	URL  string `json:"url"`
}

// Ext guesses a file extension from the URL path, falling back to jpg.
func (r ImageRef) Ext() string {
	p := r.URL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" || len(ext) > 5 || strings.Contains(ext, "/") {
		return "jpg"
	}
	return strings.ToLower(ext)
}

// ImageSink persists image bytes for a reference.
type ImageSink interface {
	SaveImage(ctx context.Context, ref ImageRef) error
}

// ImageRefs returns the main image of every record that has both an id and
// an image, in record order.
func ImageRefs(records []models.ProductRecord) []ImageRef {
	refs := make([]ImageRef, 0, len(records))
	for i := range records {
		img := records[i].MainImage()
		asin := records[i].ASIN
		if img == "" || asin == "" || asin == models.UnknownASIN {
			continue
		}
		refs = append(refs, ImageRef{ASIN: asin, URL: img})
	}
	return refs
}
