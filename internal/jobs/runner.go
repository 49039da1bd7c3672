package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-product-tracker/internal/cancel"
	"github.com/maltedev/amazon-product-tracker/internal/events"
	"github.com/maltedev/amazon-product-tracker/internal/marketplace"
	"github.com/maltedev/amazon-product-tracker/internal/metrics"
	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/ratelimit"
	"github.com/maltedev/amazon-product-tracker/internal/scraper"
	"github.com/maltedev/amazon-product-tracker/internal/session"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped || s == StateFailed
}

var errStopped = errors.New("stop requested")

// Pacing holds the delays inserted before page loads and detail visits. A
// nil limiter does not wait.
type Pacing struct {
	Page   ratelimit.RateLimiter
	Detail ratelimit.RateLimiter
}

// Status is a point-in-time snapshot of a runner.
type Status struct {
	ID         string     `json:"id"`
	Mode       Mode       `json:"mode"`
	State      State      `json:"state"`
	Progress   int        `json:"progress"`
	Accepted   int        `json:"accepted"`
	Pages      int        `json:"pages"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Job        Job        `json:"job"`
}

// Runner executes a single job on the calling goroutine. Navigation,
// extraction and filtering happen strictly in sequence on one session.
type Runner struct {
	job       Job
	market    marketplace.Marketplace
	sessions  *session.Manager
	extractor *scraper.Extractor
	pacing    Pacing
	emitter   events.Emitter
	flag      *cancel.Flag
	logger    *slog.Logger
	metrics   *metrics.Metrics

	pagesOnSession int

	mu         sync.Mutex
	state      State
	progress   int
	pages      int
	accepted   []models.ProductRecord
	err        error
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

func NewRunner(job Job, sessions *session.Manager, pacing Pacing, emitter events.Emitter, logger *slog.Logger, m *metrics.Metrics) (*Runner, error) {
	if err := job.Normalize(); err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	market, err := marketplace.New(job.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if emitter == nil {
		emitter = events.EmitterFunc(func(events.Event) {})
	}

	logger = logger.With("component", "runner", "job_id", job.ID)
	opts := scraper.Options{Currency: job.Currency, CategoryNode: job.Filter.CategoryNode}

	return &Runner{
		job:       job,
		market:    market,
		sessions:  sessions,
		extractor: scraper.NewExtractor(market, opts, logger),
		pacing:    pacing,
		emitter:   emitter,
		flag:      cancel.New(),
		logger:    logger,
		metrics:   m,
		state:     StateIdle,
		createdAt: time.Now(),
	}, nil
}

func (r *Runner) ID() string { return r.job.ID }

func (r *Runner) Job() Job { return r.job }

// Stop requests cooperative cancellation. It returns false if a stop was
// already requested.
func (r *Runner) Stop() bool {
	return r.flag.Request()
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		ID:        r.job.ID,
		Mode:      r.job.Mode,
		State:     r.state,
		Progress:  r.progress,
		Accepted:  len(r.accepted),
		Pages:     r.pages,
		CreatedAt: r.createdAt,
		Job:       r.job,
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		st.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		st.FinishedAt = &t
	}
	return st
}

// Records returns the records emitted as partial events so far.
func (r *Runner) Records() []models.ProductRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProductRecord, len(r.accepted))
	copy(out, r.accepted)
	return out
}

// Run executes the job to a terminal state and emits exactly one terminal
// event. A runner runs at most once.
func (r *Runner) Run(ctx context.Context) (state State) {
	r.mu.Lock()
	if r.state != StateIdle {
		state = r.state
		r.mu.Unlock()
		return state
	}
	r.state = StateRunning
	r.startedAt = time.Now()
	r.mu.Unlock()

	r.metrics.JobStarted()
	r.log(slog.LevelInfo, "job started", "mode", r.job.Mode, "marketplace", r.market.Host())

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("job panicked", "panic", p, "stack", string(debug.Stack()))
			r.finish(nil, fmt.Errorf("internal error: %v", p))
		}
		state = r.State()
		r.metrics.JobFinished(string(state))
	}()

	var (
		records []models.ProductRecord
		err     error
	)
	switch r.job.Mode {
	case ModeASIN:
		records, err = r.runASINs(ctx)
	default:
		records, err = r.runSearch(ctx)
	}
	r.finish(records, err)
	return r.State()
}

func (r *Runner) finish(records []models.ProductRecord, err error) {
	r.sessions.Release()

	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return
	}
	r.finishedAt = time.Now()
	switch {
	case errors.Is(err, errStopped):
		r.state = StateStopped
	case err != nil:
		r.state = StateFailed
		r.err = err
	default:
		r.state = StateCompleted
		r.progress = 100
	}
	state := r.state
	r.mu.Unlock()

	switch state {
	case StateStopped:
		r.logger.Info("job stopped")
		r.emitter.Emit(events.Stopped(r.job.ID))
	case StateFailed:
		r.logger.Error("job failed", "error", err)
		r.emitter.Emit(events.Failed(r.job.ID, err))
	default:
		r.logger.Info("job completed", "records", len(records))
		r.emitter.Emit(events.Finished(r.job.ID, records))
	}
}

func (r *Runner) runASINs(ctx context.Context) ([]models.ProductRecord, error) {
	records := make([]models.ProductRecord, 0, len(r.job.ASINs))

	for i, asin := range r.job.ASINs {
		if r.stopRequested(ctx) {
			return nil, errStopped
		}
		if err := r.ensureSession(ctx); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := wait(ctx, r.pacing.Detail); err != nil {
				return nil, errStopped
			}
		}

		url := r.market.ProductURL(asin)
		rec := r.extractor.ExtractProductDetail(ctx, r.sessions, url, r.flag)
		r.pagesOnSession++
		if rec == nil {
			if r.stopRequested(ctx) {
				return nil, errStopped
			}
			r.metrics.Product("discarded", "")
			r.log(slog.LevelWarn, "no product data", "asin", asin)
			continue
		}

		if r.stopRequested(ctx) {
			return nil, errStopped
		}
		records = append(records, *rec)
		r.accept(*rec)
		r.setProgress(percent(i+1, len(r.job.ASINs)))
	}
	return records, nil
}

func (r *Runner) runSearch(ctx context.Context) ([]models.ProductRecord, error) {
	var records []models.ProductRecord

	for i := 0; i < r.job.MaxPages; i++ {
		page := r.job.StartPage + i
		if r.stopRequested(ctx) {
			return nil, errStopped
		}
		if err := r.ensureSession(ctx); err != nil {
			return nil, err
		}
		if err := wait(ctx, r.pacing.Page); err != nil {
			return nil, errStopped
		}

		url := r.market.SearchURL(r.job.SearchTerm, page, r.job.Filter)
		if err := r.loadPage(ctx, url); err != nil {
			if errors.Is(err, errStopped) || errors.Is(err, session.ErrAllProxiesExhausted) || errors.Is(err, session.ErrSessionCreation) {
				return nil, err
			}
			r.log(slog.LevelWarn, "skipping page", "page", page, "error", err)
			r.pageDone()
			continue
		}

		listings := r.extractor.ExtractListingPage(r.sessions)
		r.log(slog.LevelInfo, "page loaded", "page", page, "listings", len(listings))
		if len(listings) == 0 {
			r.pageDone()
			break
		}

		for _, l := range listings {
			if r.stopRequested(ctx) {
				return nil, errStopped
			}
			if err := wait(ctx, r.pacing.Detail); err != nil {
				return nil, errStopped
			}

			rec := r.extractor.ExtractProductDetail(ctx, r.sessions, l.URL, r.flag)
			if rec == nil {
				if r.stopRequested(ctx) {
					return nil, errStopped
				}
				r.metrics.Product("discarded", "")
				r.logger.Debug("listing discarded", "asin", l.ASIN)
				continue
			}

			if ok, reason := r.job.Filter.Evaluate(rec); !ok {
				r.metrics.Product("rejected", string(reason))
				r.logger.Debug("listing rejected", "asin", rec.ASIN, "reason", reason)
				continue
			}

			if r.stopRequested(ctx) {
				return nil, errStopped
			}
			records = append(records, *rec)
			r.accept(*rec)
			if r.job.MaxProducts > 0 {
				r.setProgress(percent(len(records), r.job.MaxProducts))
				if len(records) >= r.job.MaxProducts {
					r.log(slog.LevelInfo, "product limit reached", "limit", r.job.MaxProducts)
					return records, nil
				}
			}
		}
		r.pageDone()
	}
	return records, nil
}

// ensureSession creates a session when none is live and rotates to the
// next proxy once the current one has served its share of pages.
func (r *Runner) ensureSession(ctx context.Context) error {
	rotate := r.sessions.Current() == nil ||
		(r.sessions.PoolSize() > 0 && r.pagesOnSession >= r.job.PagesPerProxy)
	if !rotate {
		return nil
	}
	return r.rotate(ctx)
}

func (r *Runner) rotate(ctx context.Context) error {
	s, err := r.sessions.Rotate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errStopped
		}
		return err
	}
	r.pagesOnSession = 0
	r.logger.Debug("session rotated", "session_id", s.ID)
	return nil
}

// loadPage navigates the current session to a search page. With a proxy
// pool a failed load is retried once on every other proxy before the job
// gives up. Without one the page is skipped.
func (r *Runner) loadPage(ctx context.Context, url string) error {
	err := r.visit(ctx, url)
	if err == nil {
		return nil
	}

	proxies := r.sessions.PoolSize()
	if proxies == 0 {
		return err
	}
	for attempt := 1; attempt < proxies; attempt++ {
		if r.stopRequested(ctx) {
			return errStopped
		}
		r.log(slog.LevelWarn, "page load failed, switching proxy", "attempt", attempt, "error", err)
		if rerr := r.rotate(ctx); rerr != nil {
			return rerr
		}
		if err = r.visit(ctx, url); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %w", session.ErrAllProxiesExhausted, url, err)
}

func (r *Runner) visit(ctx context.Context, url string) error {
	err := r.sessions.Visit(ctx, url)
	r.metrics.Page("search", err == nil)
	if fb, ok := r.pacing.Page.(ratelimit.Feedback); ok {
		if err != nil {
			fb.RecordError()
		} else {
			fb.RecordSuccess()
		}
	}
	if err == nil {
		r.pagesOnSession++
	}
	return err
}

func (r *Runner) stopRequested(ctx context.Context) bool {
	return r.flag.Requested() || ctx.Err() != nil
}

func (r *Runner) accept(rec models.ProductRecord) {
	r.mu.Lock()
	r.accepted = append(r.accepted, rec)
	r.mu.Unlock()

	r.metrics.Product("accepted", "")
	r.emitter.Emit(events.Partial(r.job.ID, rec))
}

func (r *Runner) pageDone() {
	r.mu.Lock()
	r.pages++
	pages := r.pages
	r.mu.Unlock()

	if r.job.MaxProducts == 0 {
		r.setProgress(percent(pages, r.job.MaxPages))
	}
}

// setProgress emits a progress event when the value grows.
func (r *Runner) setProgress(p int) {
	r.mu.Lock()
	if p <= r.progress {
		r.mu.Unlock()
		return
	}
	r.progress = p
	r.mu.Unlock()

	r.emitter.Emit(events.Progress(r.job.ID, p))
}

// log writes a structured log line and mirrors it as a log event.
func (r *Runner) log(level slog.Level, msg string, args ...any) {
	r.logger.Log(context.Background(), level, msg, args...)
	r.emitter.Emit(events.Log(r.job.ID, strings.ToLower(level.String()), formatLog(msg, args)))
}

func formatLog(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

func wait(ctx context.Context, l ratelimit.RateLimiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}
