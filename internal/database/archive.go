package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/report"
)

const (
	DefaultRunStream = "stream:tracker:runs"

	AggregateRun     = "tracker_run"
	EventRunArchived = "RUN_ARCHIVED"
)

// Transactor runs fn in a database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// ArchiveRepository stores the result sets of completed jobs. It satisfies
// report.Sink.
type ArchiveRepository struct {
	db     Transactor
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewArchiveRepository(db Transactor, outbox *OutboxRepository, logger *slog.Logger) *ArchiveRepository {
	return &ArchiveRepository{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "archive"),
	}
}

var _ report.Sink = (*ArchiveRepository)(nil)

type runArchived struct {
	RunID      string    `json:"run_id"`
	BaseURL    string    `json:"base_url"`
	Currency   string    `json:"currency,omitempty"`
	Products   int       `json:"products"`
	ASINs      []string  `json:"asins"`
	FinishedAt time.Time `json:"finished_at"`
}

// Deliver writes the run, its products and a RUN_ARCHIVED outbox event in
// one transaction. Delivering the same run again replaces its products.
func (r *ArchiveRepository) Deliver(ctx context.Context, meta report.Meta, records []models.ProductRecord) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		return r.save(ctx, tx, meta, records)
	})
	if err != nil {
		return fmt.Errorf("failed to archive run %s: %w", meta.JobID, err)
	}
	r.logger.Info("run archived", "run_id", meta.JobID, "products", len(records))
	return nil
}

func (r *ArchiveRepository) save(ctx context.Context, exec Execer, meta report.Meta, records []models.ProductRecord) error {
	filterJSON, err := json.Marshal(meta.Filter)
	if err != nil {
		return fmt.Errorf("failed to marshal filter: %w", err)
	}

	_, err = exec.Exec(ctx, `
		INSERT INTO tracker_run (id, base_url, currency, format, filter, product_count, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			product_count = EXCLUDED.product_count,
			finished_at = EXCLUDED.finished_at`,
		meta.JobID, meta.BaseURL, meta.Currency, string(meta.Format), filterJSON, len(records), meta.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := exec.Exec(ctx, `DELETE FROM tracker_product WHERE run_id = $1`, meta.JobID); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	asins := make([]string, 0, len(records))
	for i := range records {
		rec := &records[i]
		if err := insertProduct(ctx, exec, meta.JobID, i, rec); err != nil {
			return err
		}
		asins = append(asins, rec.ASIN)
	}

	payload, err := json.Marshal(runArchived{
		RunID:      meta.JobID,
		BaseURL:    meta.BaseURL,
		Currency:   meta.Currency,
		Products:   len(records),
		ASINs:      asins,
		FinishedAt: meta.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return r.outbox.Insert(ctx, exec, &OutboxEvent{
		AggregateType: AggregateRun,
		AggregateID:   meta.JobID,
		EventType:     EventRunArchived,
		Payload:       payload,
	})
}

func insertProduct(ctx context.Context, exec Execer, runID string, position int, rec *models.ProductRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal product %s: %w", rec.ASIN, err)
	}

	_, err = exec.Exec(ctx, `
		INSERT INTO tracker_product (
			run_id, position, asin, url, title, price, currency, rating,
			review_count, best_seller_rank, brand, seller_type, prime, discount,
			country, record, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		runID, position, rec.ASIN, rec.URL, rec.Title, rec.Price, rec.Currency, rec.Rating,
		rec.ReviewCount, rec.BestSellerRank, rec.Brand, string(rec.SellerType), rec.Prime, rec.Discount,
		rec.Country, raw, rec.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product %s: %w", rec.ASIN, err)
	}
	return nil
}
