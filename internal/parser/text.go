package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

var (
	ratingPattern     = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s+(?:out of|von|sur|su)\s+\d`)
	reviewPattern     = regexp.MustCompile(`\d[\d,.\s\x{00a0}\x{202f}]*`)
	rankPattern       = regexp.MustCompile(`(?i)Best\s*Sellers\s*Rank[:\s]*#?\s*(\d[\d,.]*)`)
	rankSourcePattern = regexp.MustCompile(`(?is)Best\s*Sellers\s*Rank.{0,200}?#\s*(\d[\d,.]*)`)
	separatorPattern  = regexp.MustCompile(`[,.\s\x{00a0}\x{202f}]`)

	asinPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/dp/([A-Z0-9]{10})(?:[/?#]|$)`),
		regexp.MustCompile(`(?i)/gp/product/([A-Z0-9]{10})(?:[/?#]|$)`),
		regexp.MustCompile(`/([A-Z0-9]{10})(?:[/?#]|$)`),
	}
)

// ParseRating reads the leading star value of texts such as
// "4.5 out of 5 stars" or "4,5 von 5 Sternen".
func ParseRating(raw string) (float64, bool) {
	m := ratingPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || v < 0 || v > 5 {
		return 0, false
	}
	return v, true
}

// ParseReviewCount returns the first digit group of the text with thousands
// separators removed.
func ParseReviewCount(raw string) (int, bool) {
	m := reviewPattern.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(separatorPattern.ReplaceAllString(m, ""))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseBestSellerRank reads "Best Sellers Rank #12,345" style texts.
func ParseBestSellerRank(raw string) (int, bool) {
	return parseRank(rankPattern, raw)
}

// ParseBestSellerRankSource scans raw page markup, where tags may sit between
// the label and the rank number.
func ParseBestSellerRankSource(source string) (int, bool) {
	if rank, ok := parseRank(rankPattern, source); ok {
		return rank, true
	}
	return parseRank(rankSourcePattern, source)
}

func parseRank(re *regexp.Regexp, raw string) (int, bool) {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(separatorPattern.ReplaceAllString(m[1], ""))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ExtractASIN finds the product id in a product URL, trying /dp/ first,
// then /gp/product/, then any 10 character uppercase path segment.
func ExtractASIN(rawURL string) string {
	for _, re := range asinPatterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return models.UnknownASIN
}

func IntPtr(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return &v
}

func FloatPtr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
