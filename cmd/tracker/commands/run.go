package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-product-tracker/internal/jobs"
	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/report"
)

// jobFlags are shared by the search and track commands.
type jobFlags struct {
	jobFile       string
	baseURL       string
	currency      string
	maxProducts   int
	pagesPerProxy int
	format        string
	output        string
	imagesDir     string
	reportDir     string
	flushOnStop   bool
}

func (f *jobFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.jobFile, "job-file", "", "YAML job definition. Flags override its values.")
	fl.StringVar(&f.baseURL, "base-url", jobs.DefaultBaseURL, "Marketplace base URL.")
	fl.StringVar(&f.currency, "currency", "", "Currency code for the report (default from the marketplace).")
	fl.IntVar(&f.maxProducts, "max-products", 0, "Stop after this many accepted products (0 = no limit).")
	fl.IntVar(&f.pagesPerProxy, "pages-per-proxy", 0, "Rotate the proxy after this many pages (default SCRAPER_PAGES_PER_PROXY).")
	fl.StringVarP(&f.format, "format", "f", "", "Output format: csv, json, html or txt.")
	fl.StringVarP(&f.output, "output", "o", "", "Write the report to this file instead of stdout.")
	fl.StringVar(&f.imagesDir, "images-dir", "", "Download the main image of every product into this directory.")
	fl.StringVar(&f.reportDir, "report-dir", "", "Also save the report of a completed job as <dir>/<job id>.<format>.")
	fl.BoolVar(&f.flushOnStop, "flush-on-stop", false, "Write the records accepted so far when the job is interrupted.")
}

// baseJob loads the job file if one was given.
func (f *jobFlags) baseJob() (jobs.Job, error) {
	if f.jobFile == "" {
		return jobs.Job{}, nil
	}
	return jobs.LoadJobFile(f.jobFile)
}

func (f *jobFlags) apply(cmd *cobra.Command, job *jobs.Job) error {
	fl := cmd.Flags()
	if fl.Changed("base-url") || job.BaseURL == "" {
		job.BaseURL = f.baseURL
	}
	if fl.Changed("currency") {
		job.Currency = f.currency
	}
	if fl.Changed("max-products") {
		job.MaxProducts = f.maxProducts
	}
	if fl.Changed("pages-per-proxy") {
		job.PagesPerProxy = f.pagesPerProxy
	}
	if job.PagesPerProxy == 0 {
		job.PagesPerProxy = cfg.Scraper.PagesPerProxy
	}
	if fl.Changed("format") {
		format, err := report.ParseFormat(f.format)
		if err != nil {
			return err
		}
		job.Format = format
	}
	if f.imagesDir != "" {
		cfg.Scraper.ImagesDir = f.imagesDir
	}
	if f.reportDir != "" {
		cfg.Scraper.ReportDir = f.reportDir
	}
	return nil
}

// runJob executes job to completion and renders its records. An interrupt
// stops the job; its records are dropped unless --flush-on-stop is set.
func runJob(ctx context.Context, job jobs.Job, flags *jobFlags) error {
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

	out, closeOut, err := openOutput(flags.output)
	if err != nil {
		return err
	}
	defer closeOut()

	writer := report.NewWriter(out)
	mgr := newManager(b, managerDeps{
		provider: provider,
		proxies:  pool,
		sinks:    []report.Sink{writer},
	})

	status, err := mgr.Start(job)
	if err != nil {
		return err
	}
	appLog.Info("job started", "id", status.ID, "mode", status.Mode, "proxies", pool.Len())

	waitCtx, cancelWait := context.WithCancel(context.Background())
	defer cancelWait()
	go func() {
		select {
		case <-ctx.Done():
			appLog.Warn("interrupt received, stopping job", "id", status.ID)
			mgr.Stop(status.ID)
		case <-waitCtx.Done():
		}
	}()

	final, err := mgr.Wait(waitCtx, status.ID)
	if err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("job manager shutdown incomplete", "error", err)
	}

	switch final.State {
	case jobs.StateStopped:
		records, _ := mgr.Records(final.ID)
		return reportStopped(context.Background(), writer, final, records, flags.flushOnStop)
	case jobs.StateFailed:
		return fmt.Errorf("job %s failed: %s", final.ID, final.Error)
	}

	appLog.Info("job completed", "id", final.ID, "accepted", final.Accepted, "pages", final.Pages)
	return nil
}

// reportStopped logs a stopped job and hands its accepted records to sink
// only when flush is set.
func reportStopped(ctx context.Context, sink report.Sink, final jobs.Status, records []models.ProductRecord, flush bool) error {
	if !flush {
		appLog.Info("job stopped, records dropped", "id", final.ID, "accepted", len(records))
		return nil
	}
	appLog.Info("job stopped, writing accepted records", "id", final.ID, "accepted", len(records))
	meta := report.Meta{JobID: final.ID, Format: final.Job.Format, BaseURL: final.Job.BaseURL, Currency: final.Job.Currency}
	return sink.Deliver(ctx, meta, records)
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			appLog.Warn("failed to close output", "path", path, "error", err)
		}
	}, nil
}
