package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrBotProtection = errors.New("bot protection page served")
	ErrPageClosed    = errors.New("page is closed")
)

// Provider creates isolated page sessions. Each session owns its own
// cookies, proxy and user agent.
type Provider interface {
	Create(ctx context.Context, opts Options) (Page, error)
}

// Page is a single live automation context.
type Page interface {
	Navigate(ctx context.Context, url string) error
	QueryAll(selector string) ([]Element, error)
	Source() (string, error)
	Close() error
}

type Element interface {
	Text() (string, error)
	// Attribute returns "" when the attribute is missing.
	Attribute(name string) (string, error)
	QueryAll(selector string) ([]Element, error)
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	Proxy          string
	Locale         string
	AcceptLanguage string
	ViewportWidth  int
	ViewportHeight int
	ExtraHeaders   map[string]string
}

func DefaultOptions() Options {
	return Options{
		Headless:       true,
		Timeout:        12 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Locale:         "en-US",
		AcceptLanguage: "en-US,en;q=0.9",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

var botMarkers = []string{
	"Enter the characters you see below",
	"/errors/validateCaptcha",
	"Type the characters you see in this image",
	"Klicke auf die Schaltfläche unten",
	"Geben Sie die Zeichen unten ein",
}

// IsBotProtection reports whether the markup is a captcha or robot check
// interstitial rather than a real page.
func IsBotProtection(content string) bool {
	for _, m := range botMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
