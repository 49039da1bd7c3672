package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-product-tracker/internal/api"
)

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default SERVER_PORT).")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for scrape jobs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		b, err := openBackends(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		provider, closeProvider, err := newProvider()
		if err != nil {
			return err
		}
		defer closeProvider()

		pool, err := loadProxies()
		if err != nil {
			return err
		}

		mgr := newManager(b, managerDeps{provider: provider, proxies: pool})

		if relay := b.relay(); relay != nil {
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					appLog.Error("relay stopped", "error", err)
				}
			}()
		}

		handlers := api.NewHandlers(mgr, appLog, b.healthChecks()...)
		router := api.NewRouter(handlers, api.RouterConfig{
			CORSOrigins: cfg.Server.CORSOrigins,
			Metrics:     promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}),
		})

		server := &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			appLog.Info("server starting", "addr", server.Addr, "engine", cfg.Browser.Engine, "proxies", pool.Len())
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}

		appLog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			appLog.Error("server shutdown failed", "error", err)
		}
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			appLog.Error("job manager shutdown incomplete", "error", err)
		}
		appLog.Info("server stopped")
		return nil
	},
}
