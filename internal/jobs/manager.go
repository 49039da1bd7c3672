package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-product-tracker/internal/browser"
	"github.com/maltedev/amazon-product-tracker/internal/events"
	"github.com/maltedev/amazon-product-tracker/internal/metrics"
	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/proxy"
	"github.com/maltedev/amazon-product-tracker/internal/ratelimit"
	"github.com/maltedev/amazon-product-tracker/internal/report"
	"github.com/maltedev/amazon-product-tracker/internal/session"
)

// Config wires the collaborators every job of a Manager shares.
type Config struct {
	Provider       browser.Provider
	Proxies        *proxy.Pool
	Session        session.Options
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
	DetailDelayMin time.Duration
	DetailDelayMax time.Duration
	// Adaptive slows page pacing down after repeated navigation failures.
	Adaptive    bool
	EventBuffer int
	// Handlers receive every event of every job on the dispatch goroutine.
	Handlers []events.Handler
	// Sink receives the result set of completed jobs. Stopped and failed
	// jobs are never delivered.
	Sink   report.Sink
	Images report.ImageSink
	// Retain bounds the number of finished jobs kept for inspection.
	Retain int
}

type entry struct {
	runner *Runner
	done   chan struct{}
}

// Manager runs jobs in the background, one at a time, and keeps their
// status for later inspection.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*entry
	order  []string
	active string
}

func NewManager(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "job_manager"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*entry),
	}
}

// Start validates job and runs it on a background goroutine. Only one job
// may run at a time.
func (m *Manager) Start(job Job) (Status, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return Status{}, fmt.Errorf("job manager is shut down")
	}
	if m.active != "" {
		return Status{}, fmt.Errorf("%w: %s", ErrJobActive, m.active)
	}
	if _, exists := m.jobs[job.ID]; exists {
		return Status{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidJob, job.ID)
	}

	stream := events.NewStream(m.cfg.EventBuffer)
	sessions := session.NewManager(m.cfg.Provider, m.cfg.Proxies, m.cfg.Session, m.logger, m.metrics)
	runner, err := NewRunner(job, sessions, m.pacing(), stream, m.logger, m.metrics)
	if err != nil {
		return Status{}, err
	}

	e := &entry{runner: runner, done: make(chan struct{})}
	m.jobs[runner.ID()] = e
	m.order = append(m.order, runner.ID())
	m.active = runner.ID()
	m.prune()

	handlers := append([]events.Handler{m.archiveHandler(runner)}, m.cfg.Handlers...)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		events.Dispatch(m.ctx, stream.Events(), m.logger, handlers...)
		close(e.done)
	}()
	go func() {
		defer m.wg.Done()
		defer stream.Close()
		runner.Run(m.ctx)

		m.mu.Lock()
		if m.active == runner.ID() {
			m.active = ""
		}
		m.mu.Unlock()
	}()

	m.logger.Info("job created", "id", runner.ID(), "mode", runner.Job().Mode)
	return runner.Status(), nil
}

func (m *Manager) pacing() Pacing {
	var page ratelimit.RateLimiter
	if m.cfg.Adaptive {
		page = ratelimit.NewAdaptiveRateLimiter(m.cfg.PageDelayMin, m.cfg.PageDelayMax)
	} else {
		page = ratelimit.NewSimpleRateLimiter(m.cfg.PageDelayMin, m.cfg.PageDelayMax)
	}
	return Pacing{
		Page:   page,
		Detail: ratelimit.NewSimpleRateLimiter(m.cfg.DetailDelayMin, m.cfg.DetailDelayMax),
	}
}

// archiveHandler hands the result set of a completed job to the report and
// image sinks.
func (m *Manager) archiveHandler(r *Runner) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		if e.Type != events.TypeFinished {
			return nil
		}
		job := r.Job()
		if m.cfg.Sink != nil {
			meta := report.Meta{
				JobID:      job.ID,
				Currency:   job.Currency,
				Filter:     job.Filter,
				BaseURL:    job.BaseURL,
				Format:     job.Format,
				FinishedAt: e.Time,
			}
			if err := m.cfg.Sink.Deliver(ctx, meta, e.Records); err != nil {
				return fmt.Errorf("failed to deliver report: %w", err)
			}
		}
		if m.cfg.Images != nil {
			for _, ref := range report.ImageRefs(e.Records) {
				if err := m.cfg.Images.SaveImage(ctx, ref); err != nil {
					m.logger.Warn("failed to save image", "asin", ref.ASIN, "error", err)
				}
			}
		}
		return nil
	})
}

// prune drops the oldest finished jobs beyond the retention limit. Callers
// hold m.mu.
func (m *Manager) prune() {
	for len(m.order) > m.cfg.Retain {
		dropped := false
		for i, id := range m.order {
			if id == m.active {
				continue
			}
			delete(m.jobs, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			dropped = true
			break
		}
		if !dropped {
			return
		}
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return e, nil
}

// Stop requests cancellation of a job. Stopping a finished job is a no-op.
func (m *Manager) Stop(id string) (Status, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	if e.runner.Stop() {
		m.logger.Info("stop requested", "id", id)
	}
	return e.runner.Status(), nil
}

func (m *Manager) Get(id string) (Status, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return e.runner.Status(), nil
}

// List returns all retained jobs, newest first.
func (m *Manager) List() []Status {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.jobs))
	for _, e := range m.jobs {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.runner.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) Records(id string) ([]models.ProductRecord, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.runner.Records(), nil
}

// Wait blocks until the job reached a terminal state and all of its events
// were handled.
func (m *Manager) Wait(ctx context.Context, id string) (Status, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	select {
	case <-e.done:
		return e.runner.Status(), nil
	case <-ctx.Done():
		return e.runner.Status(), ctx.Err()
	}
}

// Shutdown stops the active job and waits for background work to finish or
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, e := range m.jobs {
		e.runner.Stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}
