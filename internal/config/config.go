package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/amazon-product-tracker/internal/browser"
	"github.com/maltedev/amazon-product-tracker/internal/database"
	"github.com/maltedev/amazon-product-tracker/internal/session"
)

const (
	EnginePlaywright = "playwright"
	EngineHTTP       = "http"
)

type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type BrowserConfig struct {
	Engine         string
	Headless       bool
	Timeout        time.Duration
	Locale         string
	AcceptLanguage string
	ViewportWidth  int
	ViewportHeight int
}

type ScraperConfig struct {
	UserAgents     []string
	Proxies        []string
	ProxyFile      string
	PagesPerProxy  int
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
	DetailDelayMin time.Duration
	DetailDelayMax time.Duration
	WarmupMin      time.Duration
	WarmupMax      time.Duration
	Adaptive       bool
	ImagesDir      string
	// ReportDir receives one report file per completed job when set.
	ReportDir string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	Migrate  bool
}

type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	EventStream   string
	StreamMaxLen  int64
	SkipProgress  bool
	RelayInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			CORSOrigins:     getStringSliceOrDefault("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Browser: BrowserConfig{
			Engine:         strings.ToLower(getEnvOrDefault("BROWSER_ENGINE", EnginePlaywright)),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 12*time.Second),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
		},
		Scraper: ScraperConfig{
			UserAgents:     getStringSliceOrDefault("SCRAPER_USER_AGENTS", session.DefaultUserAgents()),
			Proxies:        getStringSliceOrDefault("SCRAPER_PROXIES", nil),
			ProxyFile:      getEnvOrDefault("SCRAPER_PROXY_FILE", ""),
			PagesPerProxy:  getIntOrDefault("SCRAPER_PAGES_PER_PROXY", 2),
			PageDelayMin:   getDurationOrDefault("SCRAPER_PAGE_DELAY_MIN", 2*time.Second),
			PageDelayMax:   getDurationOrDefault("SCRAPER_PAGE_DELAY_MAX", 5*time.Second),
			DetailDelayMin: getDurationOrDefault("SCRAPER_DETAIL_DELAY_MIN", time.Second),
			DetailDelayMax: getDurationOrDefault("SCRAPER_DETAIL_DELAY_MAX", 3*time.Second),
			WarmupMin:      getDurationOrDefault("SCRAPER_WARMUP_MIN", 800*time.Millisecond),
			WarmupMax:      getDurationOrDefault("SCRAPER_WARMUP_MAX", 1600*time.Millisecond),
			Adaptive:       getBoolOrDefault("SCRAPER_ADAPTIVE", true),
			ImagesDir:      getEnvOrDefault("SCRAPER_IMAGES_DIR", ""),
			ReportDir:      getEnvOrDefault("SCRAPER_REPORT_DIR", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "product_tracker"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
			Migrate:  getBoolOrDefault("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Enabled:       getBoolOrDefault("REDIS_ENABLED", false),
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			EventStream:   getEnvOrDefault("REDIS_EVENT_STREAM", "stream:tracker:events"),
			StreamMaxLen:  int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
			SkipProgress:  getBoolOrDefault("REDIS_SKIP_PROGRESS", false),
			RelayInterval: getDurationOrDefault("REDIS_RELAY_INTERVAL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Browser.Engine != EnginePlaywright && c.Browser.Engine != EngineHTTP {
		errs = append(errs, fmt.Errorf("BROWSER_ENGINE must be %q or %q, got %q", EnginePlaywright, EngineHTTP, c.Browser.Engine))
	}
	if c.Browser.Timeout <= 0 {
		errs = append(errs, errors.New("BROWSER_TIMEOUT must be positive"))
	}
	if c.Scraper.PagesPerProxy < 1 {
		errs = append(errs, errors.New("SCRAPER_PAGES_PER_PROXY must be at least 1"))
	}
	if c.Scraper.PageDelayMin > c.Scraper.PageDelayMax {
		errs = append(errs, errors.New("SCRAPER_PAGE_DELAY_MIN cannot be greater than SCRAPER_PAGE_DELAY_MAX"))
	}
	if c.Scraper.DetailDelayMin > c.Scraper.DetailDelayMax {
		errs = append(errs, errors.New("SCRAPER_DETAIL_DELAY_MIN cannot be greater than SCRAPER_DETAIL_DELAY_MAX"))
	}
	if c.Scraper.WarmupMin > c.Scraper.WarmupMax {
		errs = append(errs, errors.New("SCRAPER_WARMUP_MIN cannot be greater than SCRAPER_WARMUP_MAX"))
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database host is required"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database name is required"))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when redis is enabled"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// BrowserOptions maps the browser settings onto session defaults.
func (c *Config) BrowserOptions() browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Browser.Timeout
	opts.Locale = c.Browser.Locale
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	return opts
}

func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Browser:    c.BrowserOptions(),
		UserAgents: c.Scraper.UserAgents,
		WarmupMin:  c.Scraper.WarmupMin,
		WarmupMax:  c.Scraper.WarmupMax,
	}
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.Name,
		SSLMode:  c.Database.SSLMode,
		MaxConns: int32(c.Database.MaxConns),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getStringSliceOrDefault splits a comma separated list and drops blanks.
func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
