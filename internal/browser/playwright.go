package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightProvider launches one Chromium instance per session so that
// every session can use its own proxy.
type PlaywrightProvider struct {
	mu     sync.Mutex
	pw     *playwright.Playwright
	logger *slog.Logger
}

func NewPlaywrightProvider(logger *slog.Logger) (*PlaywrightProvider, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	return &PlaywrightProvider{
		pw:     pw,
		logger: logger.With("component", "browser"),
	}, nil
}

func (p *PlaywrightProvider) Create(ctx context.Context, opts Options) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	pw := p.pw
	p.mu.Unlock()
	if pw == nil {
		return nil, errors.New("playwright provider is closed")
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--incognito",
			"--ignore-certificate-errors",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--lang=" + opts.Locale,
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}
	if opts.Proxy != "" {
		proxy, err := playwrightProxy(opts.Proxy)
		if err != nil {
			return nil, err
		}
		launchOpts.Proxy = proxy
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		Locale:            playwright.String(opts.Locale),
		IgnoreHttpsErrors: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers(opts),
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	timeout := float64(opts.Timeout.Milliseconds())
	page.SetDefaultTimeout(timeout)
	page.SetDefaultNavigationTimeout(timeout)

	return &playwrightPage{
		browser: browser,
		context: bctx,
		page:    page,
		timeout: opts.Timeout,
		logger:  p.logger,
	}, nil
}

// Close stops the playwright driver. Sessions must be closed first.
func (p *PlaywrightProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw == nil {
		return nil
	}
	err := p.pw.Stop()
	p.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func playwrightProxy(endpoint string) (*playwright.Proxy, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", endpoint, err)
	}
	proxy := &playwright.Proxy{Server: u.Scheme + "://" + u.Host}
	if u.User != nil {
		proxy.Username = playwright.String(u.User.Username())
		if pass, ok := u.User.Password(); ok {
			proxy.Password = playwright.String(pass)
		}
	}
	return proxy, nil
}

func headers(opts Options) map[string]string {
	h := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		h[k] = v
	}
	if opts.AcceptLanguage != "" {
		h["Accept-Language"] = opts.AcceptLanguage
	}
	return h
}

type playwrightPage struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout time.Duration
	logger  *slog.Logger
}

func (p *playwrightPage) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := p.page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(p.timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}
	if resp != nil && resp.Status() >= 500 {
		return fmt.Errorf("failed to navigate to %s: status %d", rawURL, resp.Status())
	}

	if _, err := p.page.WaitForSelector("body", playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(p.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("page body did not load: %w", err)
	}

	return p.checkBotProtection()
}

// checkBotProtection clicks through the "continue shopping" interstitial
// when one is served and fails on captcha pages.
func (p *playwrightPage) checkBotProtection() error {
	content, err := p.page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}
	if !IsBotProtection(content) {
		return nil
	}

	p.logger.Info("bot protection detected, attempting bypass")

	buttonSelectors := []string{
		`button:has-text("Continue shopping")`,
		`button:has-text("Weiter shoppen")`,
		`input[type="submit"][value*="Continue"]`,
		`.a-button-primary`,
	}

	for _, selector := range buttonSelectors {
		button := p.page.Locator(selector).First()
		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := button.Click(); err != nil {
			p.logger.Debug("failed to click bypass button", "selector", selector, "error", err)
			continue
		}
		p.page.WaitForLoadState()

		content, _ = p.page.Content()
		if !IsBotProtection(content) {
			p.logger.Info("bot protection bypassed")
			return nil
		}
	}

	return ErrBotProtection
}

func (p *playwrightPage) QueryAll(selector string) ([]Element, error) {
	handles, err := p.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles), nil
}

func (p *playwrightPage) Source() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Close() error {
	var errs []error

	if p.context != nil {
		if err := p.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	return errors.Join(errs...)
}

type playwrightElement struct {
	handle playwright.ElementHandle
}

func wrapHandles(handles []playwright.ElementHandle) []Element {
	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &playwrightElement{handle: h})
	}
	return out
}

// Text prefers the rendered text and falls back to the raw text content for
// visually hidden nodes such as a-offscreen prices.
func (e *playwrightElement) Text() (string, error) {
	text, err := e.handle.InnerText()
	if err == nil && text != "" {
		return text, nil
	}
	return e.handle.TextContent()
}

func (e *playwrightElement) Attribute(name string) (string, error) {
	return e.handle.GetAttribute(name)
}

func (e *playwrightElement) QueryAll(selector string) ([]Element, error) {
	handles, err := e.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	return wrapHandles(handles), nil
}
