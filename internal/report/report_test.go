package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

func sampleRecords() []models.ProductRecord {
	price := 19.99
	rating := 4.5
	reviews := 120
	return []models.ProductRecord{
		{
			ASIN:        "B000000001",
			Title:       "Wireless Mouse",
			Price:       &price,
			Currency:    "USD",
			Rating:      &rating,
			ReviewCount: &reviews,
			Images:      []string{"https://m.media-amazon.com/images/I/1.jpg", "https://m.media-amazon.com/images/I/2.jpg"},
			URL:         "https://www.amazon.com/dp/B000000001",
		},
		{
			ASIN:   models.UnknownASIN,
			Title:  "No id",
			Images: []string{"https://m.media-amazon.com/images/I/3.jpg"},
		},
		{
			ASIN:  "B000000003",
			Title: "No image",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"csv", FormatCSV, false},
		{"JSON", FormatJSON, false},
		{" xlsx ", FormatXLSX, false},
		{"html", FormatHTML, false},
		{"txt", FormatTXT, false},
		{"", FormatCSV, false},
		{"pdf", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestImageRefs(t *testing.T) {
	refs := ImageRefs(sampleRecords())
	require.Len(t, refs, 1)
	assert.Equal(t, ImageRef{ASIN: "B000000001", URL: "https://m.media-amazon.com/images/I/1.jpg"}, refs[0])
}

func TestImageRefExt(t *testing.T) {
	assert.Equal(t, "jpg", ImageRef{URL: "https://x/a.jpg"}.Ext())
	assert.Equal(t, "png", ImageRef{URL: "https://x/a.PNG?x=1"}.Ext())
	assert.Equal(t, "jpg", ImageRef{URL: "https://x/image"}.Ext())
	assert.Equal(t, "jpg", ImageRef{URL: "https://x/a.toolongext"}.Ext())
}

func TestWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).Deliver(context.Background(), Meta{Format: FormatJSON}, sampleRecords())
	require.NoError(t, err)

	var decoded []models.ProductRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "B000000001", decoded[0].ASIN)
	require.NotNil(t, decoded[0].Price)
	assert.InDelta(t, 19.99, *decoded[0].Price, 0.001)
}

func TestWriterTabularFormats(t *testing.T) {
	tests := []struct {
		format   Format
		contains string
	}{
		{FormatCSV, "B000000001"},
		{FormatHTML, "<table"},
		{FormatTXT, "Wireless Mouse"},
		{"", "19.99"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			err := NewWriter(&buf).Deliver(context.Background(), Meta{Format: tt.format}, sampleRecords())
			require.NoError(t, err)
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestWriterRejectsUnsupported(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	err := w.Deliver(context.Background(), Meta{Format: FormatXLSX}, sampleRecords())
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	err = w.Deliver(context.Background(), Meta{Format: "pdf"}, sampleRecords())
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Empty(t, buf.String())
}

func TestMulti(t *testing.T) {
	var calls int
	ok := SinkFunc(func(ctx context.Context, meta Meta, records []models.ProductRecord) error {
		calls++
		return nil
	})
	failing := SinkFunc(func(ctx context.Context, meta Meta, records []models.ProductRecord) error {
		calls++
		return errors.New("disk full")
	})

	err := Multi(failing, ok).Deliver(context.Background(), Meta{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2, calls)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
