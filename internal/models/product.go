package models

import (
	"strings"
	"time"
)

const UnknownASIN = "UNKNOWN"

const MaxImages = 8

type SellerType string

const (
	SellerAmazon  SellerType = "amazon"
	SellerFBA     SellerType = "fba"
	SellerFBM     SellerType = "fbm"
	SellerUnknown SellerType = ""
)

func ParseSellerType(s string) SellerType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "amazon":
		return SellerAmazon
	case "fba":
		return SellerFBA
	case "fbm":
		return SellerFBM
	default:
		return SellerUnknown
	}
}

// ProductRecord is the complete extraction result of a product detail page.
type ProductRecord struct {
	ASIN             string     `json:"asin"`
	URL              string     `json:"url"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Price            *float64   `json:"price,omitempty"`
	Currency         string     `json:"currency"`
	Rating           *float64   `json:"rating,omitempty"`
	ReviewCount      *int       `json:"review_count,omitempty"`
	Images           []string   `json:"images"`
	AvailabilityText string     `json:"availability,omitempty"`
	SellerInfoText   string     `json:"seller_info,omitempty"`
	SellerType       SellerType `json:"seller_type,omitempty"`
	BestSellerRank   *int       `json:"best_seller_rank,omitempty"`
	Brand            string     `json:"brand,omitempty"`
	Condition        string     `json:"condition,omitempty"`
	Discount         bool       `json:"discount"`
	Prime            bool       `json:"prime"`
	CategoryNode     string     `json:"category_node,omitempty"`
	Country          string     `json:"country"`
	ScrapedAt        time.Time  `json:"scraped_at"`
}

// Listing is the partial record read from a search result card.
type Listing struct {
	ASIN  string   `json:"asin"`
	Title string   `json:"title"`
	URL   string   `json:"url"`
	Price *float64 `json:"price,omitempty"`
	Image string   `json:"image,omitempty"`
}

func NewProductRecord(url string) *ProductRecord {
	return &ProductRecord{
		ASIN:      UnknownASIN,
		URL:       url,
		Images:    make([]string, 0),
		ScrapedAt: time.Now(),
	}
}

// Normalize trims every free-text field. Records are normalized before they
// leave the extraction engine.
func (p *ProductRecord) Normalize() {
	p.ASIN = strings.TrimSpace(p.ASIN)
	p.URL = strings.TrimSpace(p.URL)
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Currency = strings.TrimSpace(p.Currency)
	p.AvailabilityText = strings.TrimSpace(p.AvailabilityText)
	p.SellerInfoText = strings.TrimSpace(p.SellerInfoText)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Condition = strings.TrimSpace(p.Condition)
	p.CategoryNode = strings.TrimSpace(p.CategoryNode)
	p.Country = strings.TrimSpace(p.Country)
	if p.ASIN == "" {
		p.ASIN = UnknownASIN
	}
}

// HasIdentity reports whether the record carries a title or a price.
func (p *ProductRecord) HasIdentity() bool {
	return p.Title != "" || p.Price != nil
}

func (p *ProductRecord) MainImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
