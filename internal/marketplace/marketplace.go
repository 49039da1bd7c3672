package marketplace

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-product-tracker/internal/filter"
)

type PriceStyle int

const (
	// LowHighPrice appends &low-price=<int>&high-price=<int>.
	LowHighPrice PriceStyle = iota
	// RefinementPrice appends &rh=p_36:<min*100>-<max*100>.
	RefinementPrice
)

type Locale struct {
	Suffix   string
	Country  string
	Currency string
	Style    PriceStyle
}

// Ordered longest suffix first so ".com.au" wins over ".au".
var locales = []Locale{
	{Suffix: ".com.au", Country: "AU", Currency: "AUD", Style: LowHighPrice},
	{Suffix: ".com.br", Country: "BR", Currency: "BRL", Style: LowHighPrice},
	{Suffix: ".com.mx", Country: "MX", Currency: "MXN", Style: LowHighPrice},
	{Suffix: ".co.uk", Country: "GB", Currency: "GBP", Style: LowHighPrice},
	{Suffix: ".co.jp", Country: "JP", Currency: "JPY", Style: LowHighPrice},
	{Suffix: ".com", Country: "US", Currency: "USD", Style: LowHighPrice},
	{Suffix: ".ca", Country: "CA", Currency: "CAD", Style: LowHighPrice},
	{Suffix: ".de", Country: "DE", Currency: "EUR", Style: RefinementPrice},
	{Suffix: ".fr", Country: "FR", Currency: "EUR", Style: RefinementPrice},
	{Suffix: ".it", Country: "IT", Currency: "EUR", Style: RefinementPrice},
	{Suffix: ".es", Country: "ES", Currency: "EUR", Style: RefinementPrice},
	{Suffix: ".nl", Country: "NL", Currency: "EUR", Style: RefinementPrice},
	{Suffix: ".se", Country: "SE", Currency: "SEK", Style: RefinementPrice},
	{Suffix: ".pl", Country: "PL", Currency: "PLN", Style: RefinementPrice},
}

// Marketplace is one regional storefront identified by its base URL.
type Marketplace struct {
	base   string
	host   string
	locale Locale
}

func New(baseURL string) (Marketplace, error) {
	raw := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if raw == "" {
		return Marketplace{}, fmt.Errorf("base URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Marketplace{}, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return Marketplace{}, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	host := strings.ToLower(u.Hostname())
	return Marketplace{
		base:   u.Scheme + "://" + u.Host,
		host:   host,
		locale: localeFor(host),
	}, nil
}

func MustNew(baseURL string) Marketplace {
	m, err := New(baseURL)
	if err != nil {
		panic(err)
	}
	return m
}

func localeFor(host string) Locale {
	for _, l := range locales {
		if strings.HasSuffix(host, l.Suffix) {
			return l
		}
	}

	label := host
	if i := strings.LastIndex(host, "."); i >= 0 {
		label = host[i+1:]
	}
	return Locale{Suffix: "." + label, Country: strings.ToUpper(label), Style: LowHighPrice}
}

func (m Marketplace) BaseURL() string { return m.base }

func (m Marketplace) Host() string { return m.host }

func (m Marketplace) Country() string { return m.locale.Country }

// DefaultCurrency is empty for hosts outside the known table.
func (m Marketplace) DefaultCurrency() string { return m.locale.Currency }

func (m Marketplace) PriceStyle() PriceStyle { return m.locale.Style }

// SearchURL builds the search results URL for the given page. The filter
// contributes the price range and category node.
func (m Marketplace) SearchURL(term string, page int, spec filter.Spec) string {
	var b strings.Builder
	b.WriteString(m.base)
	b.WriteString("/s?k=")
	b.WriteString(url.QueryEscape(strings.Join(strings.Fields(term), " ")))
	b.WriteString(m.priceFragment(spec.Price))
	if page > 1 {
		b.WriteString("&page=")
		b.WriteString(strconv.Itoa(page))
	}
	if node := strings.TrimSpace(spec.CategoryNode); node != "" {
		b.WriteString("&i=")
		b.WriteString(url.QueryEscape(node))
	}
	return b.String()
}

func (m Marketplace) ProductURL(asin string) string {
	return m.base + "/dp/" + url.PathEscape(strings.ToUpper(strings.TrimSpace(asin)))
}

// ResolveURL turns a relative href into an absolute URL on this marketplace.
func (m Marketplace) ResolveURL(href string) string {
	base, _ := url.Parse(m.base + "/")
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func (m Marketplace) priceFragment(r filter.Range) string {
	min, hasMin := r.Min.Get()
	max, hasMax := r.Max.Get()
	if !hasMin && !hasMax {
		return ""
	}
	if (hasMin && !validPrice(min)) || (hasMax && !validPrice(max)) {
		return ""
	}

	if m.locale.Style == RefinementPrice {
		return fmt.Sprintf("&rh=p_36:%d-%d", minorUnits(min, hasMin), minorUnits(max, hasMax))
	}

	var frag string
	if hasMin {
		frag += "&low-price=" + strconv.Itoa(int(min))
	}
	if hasMax {
		frag += "&high-price=" + strconv.Itoa(int(max))
	}
	return frag
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func minorUnits(v float64, set bool) int64 {
	if !set {
		return 0
	}
	return int64(math.Round(v * 100))
}
