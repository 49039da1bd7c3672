package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-product-tracker/internal/browser"
	"github.com/maltedev/amazon-product-tracker/internal/metrics"
	"github.com/maltedev/amazon-product-tracker/internal/proxy"
	"github.com/maltedev/amazon-product-tracker/internal/ratelimit"
)

var (
	ErrSessionCreation     = errors.New("session creation failed")
	ErrNavigation          = errors.New("navigation failed")
	ErrAllProxiesExhausted = errors.New("all proxies exhausted")
	ErrNoSession           = errors.New("no active session")
)

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	}
}

type Options struct {
	Browser    browser.Options
	UserAgents []string
	WarmupMin  time.Duration
	WarmupMax  time.Duration
}

func DefaultOptions() Options {
	return Options{
		Browser:    browser.DefaultOptions(),
		UserAgents: DefaultUserAgents(),
		WarmupMin:  800 * time.Millisecond,
		WarmupMax:  1600 * time.Millisecond,
	}
}

// Session is one live page bound to a single proxy and user agent.
type Session struct {
	ID        string
	Proxy     string
	UserAgent string
	CreatedAt time.Time
	page      browser.Page
}

// Manager owns at most one live session at a time.
type Manager struct {
	provider browser.Provider
	pool     *proxy.Pool
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	current *Session
	rng     *rand.Rand
}

func NewManager(provider browser.Provider, pool *proxy.Pool, opts Options, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = DefaultUserAgents()
	}
	return &Manager{
		provider: provider,
		pool:     pool,
		opts:     opts,
		logger:   logger.With("component", "session"),
		metrics:  m,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Acquire replaces the current session with a fresh one on the given proxy.
// An empty proxy means a direct connection.
func (m *Manager) Acquire(ctx context.Context, proxyEndpoint string) (*Session, error) {
	m.Release()

	m.mu.Lock()
	ua := m.opts.UserAgents[m.rng.Intn(len(m.opts.UserAgents))]
	m.mu.Unlock()

	opts := m.opts.Browser
	opts.UserAgent = ua
	opts.Proxy = proxyEndpoint

	page, err := m.provider.Create(ctx, opts)
	if err != nil {
		m.metrics.Session(false)
		return nil, fmt.Errorf("%w (proxy %s): %v", ErrSessionCreation, proxy.Redact(proxyEndpoint), err)
	}
	m.metrics.Session(true)

	s := &Session{
		ID:        uuid.New().String(),
		Proxy:     proxyEndpoint,
		UserAgent: ua,
		CreatedAt: time.Now(),
		page:      page,
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", s.ID, "proxy", proxy.Redact(proxyEndpoint))

	if err := ratelimit.Sleep(ctx, m.opts.WarmupMin, m.opts.WarmupMax); err != nil {
		m.Release()
		return nil, err
	}
	return s, nil
}

// Rotate acquires a session on the next proxy of the pool. A failed
// creation is retried once on the proxy after it.
func (m *Manager) Rotate(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		endpoint, _ := m.pool.Next()
		s, err := m.Acquire(ctx, endpoint)
		if err == nil {
			return s, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		m.logger.Warn("session creation failed", "attempt", attempt+1, "proxy", proxy.Redact(endpoint), "error", err)
	}
	return nil, lastErr
}

// Release closes the current session. Close failures are logged only.
func (m *Manager) Release() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.page.Close(); err != nil {
		m.logger.Warn("failed to close session", "session_id", s.ID, "error", err)
		return
	}
	m.logger.Debug("session released", "session_id", s.ID)
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Visit loads url in the current session.
func (m *Manager) Visit(ctx context.Context, url string) error {
	s := m.Current()
	if s == nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, ErrNoSession)
	}

	start := time.Now()
	err := s.page.Navigate(ctx, url)
	m.metrics.Navigation(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNavigation, url, err)
	}
	return nil
}

// Navigate is Visit reduced to success or failure; failures are logged.
func (m *Manager) Navigate(ctx context.Context, url string) bool {
	if err := m.Visit(ctx, url); err != nil {
		m.logger.Warn("navigation failed", "url", url, "error", err)
		return false
	}
	return true
}

func (m *Manager) QueryAll(selector string) ([]browser.Element, error) {
	s := m.Current()
	if s == nil {
		return nil, ErrNoSession
	}
	return s.page.QueryAll(selector)
}

func (m *Manager) Source() (string, error) {
	s := m.Current()
	if s == nil {
		return "", ErrNoSession
	}
	return s.page.Source()
}

func (m *Manager) PoolSize() int {
	return m.pool.Len()
}
