package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher returns the HTML served at a URL for the given session options.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (string, error)
}

type FetcherFunc func(ctx context.Context, url string, opts Options) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	return f(ctx, url, opts)
}

// StaticProvider serves sessions that parse fetched HTML with goquery
// instead of rendering it. Script-built content is not available.
type StaticProvider struct {
	fetcher Fetcher
}

func NewStaticProvider(fetcher Fetcher) *StaticProvider {
	return &StaticProvider{fetcher: fetcher}
}

func (p *StaticProvider) Create(ctx context.Context, opts Options) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticPage{fetcher: p.fetcher, opts: opts}, nil
}

type staticPage struct {
	mu      sync.Mutex
	fetcher Fetcher
	opts    Options
	doc     *goquery.Document
	source  string
	closed  bool
}

func (p *staticPage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPageClosed
	}

	html, err := p.fetcher.Fetch(ctx, url, p.opts)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if IsBotProtection(html) {
		return ErrBotProtection
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	p.mu.Lock()
	p.doc = doc
	p.source = html
	p.mu.Unlock()
	return nil
}

func (p *staticPage) QueryAll(selector string) ([]Element, error) {
	p.mu.Lock()
	doc := p.doc
	p.mu.Unlock()
	if doc == nil {
		return nil, nil
	}
	return wrapSelection(doc.Find(selector)), nil
}

func (p *staticPage) Source() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrPageClosed
	}
	return p.source, nil
}

func (p *staticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.doc = nil
	p.source = ""
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{sel: s})
	})
	return out
}

func (e *staticElement) Text() (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e *staticElement) Attribute(name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *staticElement) QueryAll(selector string) ([]Element, error) {
	return wrapSelection(e.sel.Find(selector)), nil
}
