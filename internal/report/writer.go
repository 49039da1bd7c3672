package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

// Writer renders a result set to an io.Writer. Tabular formats are rendered
// with go-pretty; xlsx needs a dedicated spreadsheet sink.
type Writer struct {
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Deliver(ctx context.Context, meta Meta, records []models.ProductRecord) error {
	if meta.Format == "" {
		meta.Format = FormatTXT
	}
	if err := meta.Format.Validate(); err != nil {
		return err
	}

	switch meta.Format {
	case FormatJSON:
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode records: %w", err)
		}
		return nil
	case FormatXLSX:
		return fmt.Errorf("%w: xlsx requires a spreadsheet sink", ErrUnsupportedFormat)
	}

	t := NewTable(records)
	t.SetOutputMirror(w.out)
	switch meta.Format {
	case FormatCSV:
		t.RenderCSV()
	case FormatHTML:
		t.RenderHTML()
	default:
		t.SetStyle(table.StyleRounded)
		t.Render()
	}
	return nil
}

// NewTable lays out one row per record.
func NewTable(records []models.ProductRecord) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ASIN", "Title", "Price", "Currency", "Rating", "Reviews", "Rank", "Seller", "Brand", "Prime", "URL"})
	for i := range records {
		r := &records[i]
		t.AppendRow(table.Row{
			r.ASIN,
			truncate(r.Title, 60),
			formatFloat(r.Price, 2),
			r.Currency,
			formatFloat(r.Rating, 1),
			formatInt(r.ReviewCount),
			formatInt(r.BestSellerRank),
			string(r.SellerType),
			r.Brand,
			r.Prime,
			r.URL,
		})
	}
	t.AppendFooter(table.Row{"", "Total", len(records)})
	return t
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
