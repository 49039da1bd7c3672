package jobs

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/amazon-product-tracker/internal/filter"
	"github.com/maltedev/amazon-product-tracker/internal/report"
)

var (
	ErrInvalidJob  = errors.New("invalid job")
	ErrJobActive   = errors.New("a job is already running")
	ErrJobNotFound = errors.New("job not found")
)

type Mode string

const (
	ModeASIN   Mode = "asin"
	ModeSearch Mode = "search"
)

const (
	DefaultBaseURL       = "https://www.amazon.com"
	DefaultPagesPerProxy = 2
)

// Job describes one scrape run. A job either tracks a fixed list of ASINs
// or discovers products through paginated search.
type Job struct {
	ID            string        `json:"id" yaml:"id"`
	Mode          Mode          `json:"mode" yaml:"mode"`
	ASINs         []string      `json:"asins,omitempty" yaml:"asins"`
	SearchTerm    string        `json:"search_term,omitempty" yaml:"search_term"`
	StartPage     int           `json:"start_page" yaml:"start_page"`
	MaxPages      int           `json:"max_pages" yaml:"max_pages"`
	MaxProducts   int           `json:"max_products" yaml:"max_products"`
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	Currency      string        `json:"currency,omitempty" yaml:"currency"`
	Filter        filter.Spec   `json:"filter" yaml:"filter"`
	PagesPerProxy int           `json:"pages_per_proxy" yaml:"pages_per_proxy"`
	Format        report.Format `json:"format,omitempty" yaml:"format"`
}

// LoadJobFile reads a job definition from a YAML file.
func LoadJobFile(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("failed to read job file: %w", err)
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}
	return job, nil
}

// Normalize fills defaults and validates the job. The mode is inferred
// from the presence of ASINs when not given.
func (j *Job) Normalize() error {
	j.SearchTerm = strings.TrimSpace(j.SearchTerm)
	j.BaseURL = strings.TrimSpace(j.BaseURL)
	j.ASINs = normalizeASINs(j.ASINs)

	if j.Mode == "" {
		if len(j.ASINs) > 0 {
			j.Mode = ModeASIN
		} else {
			j.Mode = ModeSearch
		}
	}
	if j.BaseURL == "" {
		j.BaseURL = DefaultBaseURL
	}
	if j.StartPage < 1 {
		j.StartPage = 1
	}
	if j.MaxPages < 1 {
		j.MaxPages = 1
	}
	if j.MaxProducts < 0 {
		j.MaxProducts = 0
	}
	if j.PagesPerProxy < 1 {
		j.PagesPerProxy = DefaultPagesPerProxy
	}
	j.Filter.CategoryNode = strings.TrimSpace(j.Filter.CategoryNode)

	switch j.Mode {
	case ModeASIN:
		if len(j.ASINs) == 0 {
			return fmt.Errorf("%w: asin mode needs at least one asin", ErrInvalidJob)
		}
	case ModeSearch:
		if j.SearchTerm == "" {
			return fmt.Errorf("%w: search mode needs a search term", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidJob, j.Mode)
	}

	if j.Format != "" {
		f, err := report.ParseFormat(string(j.Format))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJob, err)
		}
		j.Format = f
	}
	return nil
}

func normalizeASINs(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
