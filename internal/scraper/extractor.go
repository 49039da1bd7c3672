package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maltedev/amazon-product-tracker/internal/browser"
	"github.com/maltedev/amazon-product-tracker/internal/marketplace"
)

// Document is a loaded page that can be queried.
type Document interface {
	QueryAll(selector string) ([]browser.Element, error)
	Source() (string, error)
}

// Session is a Document that can be pointed at a new URL.
type Session interface {
	Document
	Navigate(ctx context.Context, url string) bool
}

type Options struct {
	// Currency is copied onto every record. Defaults to the marketplace currency.
	Currency     string
	CategoryNode string
}

// Extractor reads listings and product details out of loaded pages. Field
// level failures degrade to empty values and never abort an extraction.
type Extractor struct {
	market marketplace.Marketplace
	opts   Options
	logger *slog.Logger
}

func NewExtractor(market marketplace.Marketplace, opts Options, logger *slog.Logger) *Extractor {
	if opts.Currency == "" {
		opts.Currency = market.DefaultCurrency()
	}
	return &Extractor{
		market: market,
		opts:   opts,
		logger: logger.With("component", "extractor"),
	}
}

func (e *Extractor) query(d Document, selector string) []browser.Element {
	els, err := d.QueryAll(selector)
	if err != nil {
		e.logger.Debug("selector query failed", "selector", selector, "error", err)
		return nil
	}
	return els
}

func (e *Extractor) text(el browser.Element) string {
	t, err := el.Text()
	if err != nil {
		e.logger.Debug("failed to read element text", "error", err)
		return ""
	}
	return strings.TrimSpace(t)
}

func (e *Extractor) attr(el browser.Element, name string) string {
	v, err := el.Attribute(name)
	if err != nil {
		e.logger.Debug("failed to read attribute", "attribute", name, "error", err)
		return ""
	}
	return strings.TrimSpace(v)
}

// firstText returns the first non-empty text of the first selector that
// yields one.
func (e *Extractor) firstText(d Document, selectors ...string) string {
	for _, sel := range selectors {
		for _, el := range e.query(d, sel) {
			if t := e.text(el); t != "" {
				return t
			}
		}
	}
	return ""
}

func (e *Extractor) firstAttr(d Document, selector string, names ...string) string {
	for _, el := range e.query(d, selector) {
		for _, name := range names {
			if v := e.attr(el, name); v != "" {
				return v
			}
		}
	}
	return ""
}

func (e *Extractor) exists(d Document, selectors ...string) bool {
	for _, sel := range selectors {
		if len(e.query(d, sel)) > 0 {
			return true
		}
	}
	return false
}

// elementScope lets element-relative lookups reuse the Document helpers.
type elementScope struct {
	el browser.Element
}

func (s elementScope) QueryAll(selector string) ([]browser.Element, error) {
	return s.el.QueryAll(selector)
}

func (s elementScope) Source() (string, error) {
	return "", nil
}
