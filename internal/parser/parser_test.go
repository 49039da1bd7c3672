package parser

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{"German format with euro", "1.234,56 €", 1234.56, true},
		{"US dollars", "$19.99", 19.99, true},
		{"Comma and dot drops the dot", "$1,234.56", 1.23456, true},
		{"Comma and dot in US display", "$1,049.00", 1.049, true},
		{"Comma decimal", "19,99 €", 19.99, true},
		{"Pound sign", "£7.50", 7.50, true},
		{"Non-breaking space", "12,00 €", 12.00, true},
		{"Integer", "42", 42, true},
		{"Not a number", "abc", 0, false},
		{"Empty", "", 0, false},
		{"Only currency", "€", 0, false},
		{"Lone dash", "-", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ParsePrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.expected, v, 0.0001)
			}
		})
	}
}

func TestParsePriceRoundTrip(t *testing.T) {
	for _, x := range []float64{0, 0.5, 1, 19.99, 1234.56, 99999.01} {
		v, ok := ParsePrice(strconv.FormatFloat(x, 'f', -1, 64))
		require.True(t, ok, "value %v", x)
		assert.Equal(t, x, v)
	}
}

func TestJoinPriceParts(t *testing.T) {
	assert.Equal(t, "1299.99", JoinPriceParts("1.299,", "99"))
	assert.Equal(t, "19.99", JoinPriceParts("19.", "99"))
	assert.Equal(t, "19", JoinPriceParts("19", ""))
	assert.Equal(t, "", JoinPriceParts("", "99"))
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		ok       bool
	}{
		{"4.5 out of 5 stars", 4.5, true},
		{"4,3 von 5 Sternen", 4.3, true},
		{"3 out of 5", 3, true},
		{"4,1 sur 5 étoiles", 4.1, true},
		{"no rating here", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, ok := ParseRating(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.expected, v, 0.0001)
		})
	}
}

func TestParseReviewCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		ok       bool
	}{
		{"1,234 ratings", 1234, true},
		{"1.234 Sternebewertungen", 1234, true},
		{"(87)", 87, true},
		{"12 345 évaluations", 12345, true},
		{"no reviews", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, ok := ParseReviewCount(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestParseBestSellerRank(t *testing.T) {
	v, ok := ParseBestSellerRank("Best Sellers Rank #12,345 in Electronics")
	require.True(t, ok)
	assert.Equal(t, 12345, v)

	v, ok = ParseBestSellerRank("best sellers rank: #7 in Toys")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = ParseBestSellerRank("Customer Reviews")
	assert.False(t, ok)
}

func TestParseBestSellerRankSource(t *testing.T) {
	html := `<tr><th>Best Sellers Rank</th><td><span>#3,210 in Kitchen</span></td></tr>`
	v, ok := ParseBestSellerRankSource(html)
	require.True(t, ok)
	assert.Equal(t, 3210, v)

	_, ok = ParseBestSellerRankSource("<html><body>nothing</body></html>")
	assert.False(t, ok)
}

func TestExtractASIN(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://x.com/dp/B000123456/ref=abc", "B000123456"},
		{"https://www.amazon.de/Some-Product/dp/B08N5WRWNW?th=1", "B08N5WRWNW"},
		{"https://www.amazon.com/gp/product/B07XJ8C8F5", "B07XJ8C8F5"},
		{"https://www.amazon.com/something/B0ABCDEF12?ref=x", "B0ABCDEF12"},
		{"https://x.com/no-id-here", "UNKNOWN"},
		{"", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractASIN(tt.url))
		})
	}
}
