package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencySymbols = strings.NewReplacer("€", "", "$", "", "£", "", "¥", "", "\u00a0", " ", "\u202f", " ")
	priceJunk       = regexp.MustCompile(`[^0-9.\-]`)
	digitsOnly      = regexp.MustCompile(`[^0-9]`)
)

// ParsePrice converts a locale-formatted price display into a float.
// When both '.' and ',' occur every '.' is dropped as thousands separator and
// the ',' becomes the decimal point. A lone comma is a decimal separator too.
func ParsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(currencySymbols.Replace(raw))
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, ",", ".")

	s = priceJunk.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// JoinPriceParts composes the "whole" and "fraction" halves of a split price
// display. Separators inside the whole part are dropped since it is always an
// integer amount.
func JoinPriceParts(whole, fraction string) string {
	w := digitsOnly.ReplaceAllString(whole, "")
	if w == "" {
		return ""
	}
	f := digitsOnly.ReplaceAllString(fraction, "")
	if f == "" {
		return w
	}
	return w + "." + f
}

// PricePtr is a convenience for callers that store optional prices.
func PricePtr(raw string) *float64 {
	v, ok := ParsePrice(raw)
	if !ok {
		return nil
	}
	return &v
}
