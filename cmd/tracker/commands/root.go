package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-product-tracker/internal/config"
	"github.com/maltedev/amazon-product-tracker/internal/logger"
)

var (
	cfg    *config.Config
	appLog *slog.Logger

	flagEngine    string
	flagProxyFile string
	flagProxies   []string
	flagLogLevel  string
	flagLogFormat string
	flagHeadless  bool
)

var rootCmd = &cobra.Command{
	Use:           "tracker",
	Short:         "tracker scrapes marketplace search results and product pages.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		applyGlobalFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		l, err := logger.Init(os.Stderr, loaded.Logging.Level, loaded.Logging.Format)
		if err != nil {
			return err
		}
		cfg, appLog = loaded, l
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagEngine, "engine", "", "Page engine: playwright or http (default from BROWSER_ENGINE).")
	pf.StringVar(&flagProxyFile, "proxy-file", "", "File with one proxy per line.")
	pf.StringSliceVar(&flagProxies, "proxy", nil, "Proxy descriptor, repeatable (host:port or user:pass@host:port).")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error.")
	pf.StringVar(&flagLogFormat, "log-format", "", "json or text.")
	pf.BoolVar(&flagHeadless, "headless", true, "Run the browser headless.")
}

// applyGlobalFlags overlays explicitly set flags on the environment config.
func applyGlobalFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("engine") {
		c.Browser.Engine = flagEngine
	}
	if flags.Changed("proxy-file") {
		c.Scraper.ProxyFile = flagProxyFile
	}
	if flags.Changed("proxy") {
		c.Scraper.Proxies = flagProxies
	}
	if flags.Changed("log-level") {
		c.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		c.Logging.Format = flagLogFormat
	}
	if flags.Changed("headless") {
		c.Browser.Headless = flagHeadless
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
