package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-product-tracker/internal/browser"
	"github.com/maltedev/amazon-product-tracker/internal/events"
	"github.com/maltedev/amazon-product-tracker/internal/parser"
	"github.com/maltedev/amazon-product-tracker/internal/proxy"
	"github.com/maltedev/amazon-product-tracker/internal/session"
)

// fakeSite serves generated search and product pages and records every
// fetch.
type fakeSite struct {
	mu sync.Mutex

	listingsPerPage int
	failAll         bool
	failPages       map[int]bool
	failSearches    int
	onDetail        func(n int)
	block           chan struct{}
	started         chan struct{}
	startOnce       sync.Once

	searchFetches int
	detailFetches int
	searchProxies []string
	fetchProxies  []string
}

func (s *fakeSite) Fetch(ctx context.Context, rawURL string, opts browser.Options) (string, error) {
	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	s.fetchProxies = append(s.fetchProxies, opts.Proxy)
	if s.failAll {
		s.mu.Unlock()
		return "", errors.New("connection reset")
	}

	if strings.Contains(rawURL, "/s?") {
		page := pageOf(rawURL)
		s.searchFetches++
		s.searchProxies = append(s.searchProxies, opts.Proxy)
		fail := s.failPages[page] || s.searchFetches <= s.failSearches
		s.mu.Unlock()
		if fail {
			return "", errors.New("timeout")
		}
		return searchPage(page, s.listingsPerPage), nil
	}

	s.detailFetches++
	n := s.detailFetches
	hook := s.onDetail
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return detailPage(parser.ExtractASIN(rawURL)), nil
}

func (s *fakeSite) counts() (search, detail int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchFetches, s.detailFetches
}

func pageOf(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	if p, err := strconv.Atoi(u.Query().Get("page")); err == nil {
		return p
	}
	return 1
}

func asinFor(page, i int) string {
	return fmt.Sprintf("B%09d", page*100+i)
}

// priceOf derives a stable price from the last two digits of an ASIN.
func priceOf(asin string) float64 {
	n, _ := strconv.Atoi(asin[len(asin)-2:])
	return float64(10+n) + 0.99
}

func searchPage(page, n int) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"s-main-slot\">")
	for i := 0; i < n; i++ {
		asin := asinFor(page, i)
		fmt.Fprintf(&b, `<div data-component-type="s-search-result" data-asin="%s">`+
			`<h2><a class="a-link-normal" href="/Item/dp/%s/ref=sr_1_%d"><span>Item %s</span></a></h2>`+
			`<span class="a-price"><span class="a-offscreen">$%.2f</span></span></div>`,
			asin, asin, i, asin, priceOf(asin))
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func detailPage(asin string) string {
	price := priceOf(asin)
	whole := int(price)
	return fmt.Sprintf(`<html><head><meta name="description" content="Item %[1]s"></head><body>
<span id="productTitle"> Item %[1]s </span>
<a id="bylineInfo">Brand: Acme</a>
<img id="landingImage" src="https://m.media-amazon.com/images/I/%[1]s.jpg">
<div id="corePrice_feature_div"><span class="a-price"><span class="a-price-whole">%[2]d.</span><span class="a-price-fraction">99</span></span></div>
<span id="acrPopover" title="4.5 out of 5 stars"></span>
<span id="acrCustomerReviewText">1,000 ratings</span>
<div id="availability"><span>In Stock</span></div>
<div id="merchant-info">Ships from and sold by Amazon.com.</div>
</body></html>`, asin, whole)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	onEmit func(events.Event)
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	hook := r.onEmit
	r.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (r *recorder) Handle(ctx context.Context, e events.Event) error {
	r.Emit(e)
	return nil
}

func (r *recorder) ofType(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) terminal() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSessionOptions() session.Options {
	return session.Options{Browser: browser.DefaultOptions()}
}

func newTestRunner(t *testing.T, job Job, site *fakeSite, pool *proxy.Pool, emitter events.Emitter) *Runner {
	t.Helper()
	sessions := session.NewManager(browser.NewStaticProvider(site), pool, testSessionOptions(), discard(), nil)
	r, err := NewRunner(job, sessions, Pacing{}, emitter, discard(), nil)
	require.NoError(t, err)
	return r
}

func newPool(t *testing.T, n int) *proxy.Pool {
	t.Helper()
	descriptors := make([]string, n)
	for i := range descriptors {
		descriptors[i] = fmt.Sprintf("10.0.0.%d:8080", i+1)
	}
	pool, err := proxy.NewPool(descriptors)
	require.NoError(t, err)
	return pool
}
