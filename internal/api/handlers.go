package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/amazon-product-tracker/internal/jobs"
	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/report"
)

// JobService is the job manager surface exposed over HTTP.
type JobService interface {
	Start(job jobs.Job) (jobs.Status, error)
	Stop(id string) (jobs.Status, error)
	Get(id string) (jobs.Status, error)
	List() []jobs.Status
	Records(id string) ([]models.ProductRecord, error)
}

// HealthCheck reports the state of one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	jobs   JobService
	checks []HealthCheck
	logger *slog.Logger
}

func NewHandlers(svc JobService, logger *slog.Logger, checks ...HealthCheck) *Handlers {
	return &Handlers{
		jobs:   svc,
		checks: checks,
		logger: logger.With("component", "api"),
	}
}

// CreateJob accepts a job description and starts it in the background.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var job jobs.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := h.jobs.Start(job)
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, status)
}

type listResponse struct {
	Jobs  []jobs.Status `json:"jobs"`
	Count int           `json:"count"`
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list := h.jobs.List()
	if list == nil {
		list = []jobs.Status{}
	}
	h.respondJSON(w, http.StatusOK, listResponse{Jobs: list, Count: len(list)})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

func (h *Handlers) StopJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobs.Stop(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondJobError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, status)
}

// GetRecords returns the records accepted so far. ?format= renders them as
// csv, html or txt instead of JSON.
func (h *Handlers) GetRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	records, err := h.jobs.Records(id)
	if err != nil {
		h.respondJobError(w, err)
		return
	}

	format := report.FormatJSON
	if raw := r.URL.Query().Get("format"); raw != "" {
		format, err = report.ParseFormat(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if format == report.FormatJSON {
		if records == nil {
			records = []models.ProductRecord{}
		}
		h.respondJSON(w, http.StatusOK, records)
		return
	}

	var buf bytes.Buffer
	meta := report.Meta{JobID: id, Format: format}
	if err := report.NewWriter(&buf).Deliver(r.Context(), meta, records); err != nil {
		if errors.Is(err, report.ErrUnsupportedFormat) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to render records", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to render records")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	for _, c := range h.checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(h.checks))
		}
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("health check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = err.Error()
			resp.Status = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	h.respondJSON(w, status, resp)
}

func (h *Handlers) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidJob):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrJobNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobActive):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("job request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
