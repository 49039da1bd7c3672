package filter

import (
	"strings"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

// Reason names the first predicate a record failed.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonPrice    Reason = "price"
	ReasonRating   Reason = "rating"
	ReasonReviews  Reason = "reviews"
	ReasonPrime    Reason = "prime"
	ReasonStock    Reason = "stock"
	ReasonBrand    Reason = "brand"
	ReasonInclude  Reason = "include_keyword"
	ReasonExclude  Reason = "exclude_keyword"
	ReasonRank     Reason = "best_seller_rank"
	ReasonSeller   Reason = "seller_type"
	ReasonDiscount Reason = "discount"
)

var defaultRating = Between(0, 5)

var (
	inStockMarkers    = []string{"in stock", "available", "usually ships", "auf lager", "en stock", "disponibile", "disponible"}
	outOfStockMarkers = []string{"unavailable", "out of stock", "nicht verfügbar", "indisponible", "non disponibile", "no disponible"}
)

// Spec is the user supplied filter configuration. Unset bounds do not
// constrain anything.
type Spec struct {
	Price           Range             `json:"price" yaml:"price"`
	Rating          Range             `json:"rating" yaml:"rating"`
	Reviews         Range             `json:"reviews" yaml:"reviews"`
	BestSellerRank  Range             `json:"best_seller_rank" yaml:"best_seller_rank"`
	Brand           string            `json:"brand,omitempty" yaml:"brand"`
	Brands          []string          `json:"brands,omitempty" yaml:"brands"`
	IncludeKeywords []string          `json:"include_keywords,omitempty" yaml:"include_keywords"`
	ExcludeKeywords []string          `json:"exclude_keywords,omitempty" yaml:"exclude_keywords"`
	SellerType      models.SellerType `json:"seller_type,omitempty" yaml:"seller_type"`
	PrimeOnly       bool              `json:"prime_only" yaml:"prime_only"`
	InStockOnly     bool              `json:"in_stock_only" yaml:"in_stock_only"`
	DiscountOnly    bool              `json:"discount_only" yaml:"discount_only"`
	CategoryNode    string            `json:"category_node,omitempty" yaml:"category_node"`
}

func (s Spec) Passes(r *models.ProductRecord) bool {
	ok, _ := s.Evaluate(r)
	return ok
}

// Evaluate runs the predicates in a fixed order and stops at the first
// failure.
func (s Spec) Evaluate(r *models.ProductRecord) (bool, Reason) {
	if r == nil {
		return false, ReasonNone
	}

	if r.Price != nil && !s.Price.Contains(*r.Price) {
		return false, ReasonPrice
	}

	rating := 0.0
	if r.Rating != nil {
		rating = *r.Rating
	}
	if !s.ratingRange().Contains(rating) {
		return false, ReasonRating
	}

	reviews := 0
	if r.ReviewCount != nil {
		reviews = *r.ReviewCount
	}
	if !s.Reviews.Contains(float64(reviews)) {
		return false, ReasonReviews
	}

	if s.PrimeOnly && !r.Prime {
		return false, ReasonPrime
	}

	if s.InStockOnly && !InStock(r.AvailabilityText) {
		return false, ReasonStock
	}

	title := strings.ToLower(r.Title)
	brand := strings.ToLower(r.Brand)
	if b := strings.ToLower(strings.TrimSpace(s.Brand)); b != "" {
		if !strings.Contains(title, b) && !strings.Contains(brand, b) {
			return false, ReasonBrand
		}
	}
	if len(s.Brands) > 0 && !matchesAnyBrand(s.Brands, title, brand) {
		return false, ReasonBrand
	}

	for _, kw := range s.IncludeKeywords {
		if !strings.Contains(title, strings.ToLower(kw)) {
			return false, ReasonInclude
		}
	}
	for _, kw := range s.ExcludeKeywords {
		if kw = strings.ToLower(kw); kw != "" && strings.Contains(title, kw) {
			return false, ReasonExclude
		}
	}

	if r.BestSellerRank != nil && *r.BestSellerRank > 0 {
		if !s.BestSellerRank.Contains(float64(*r.BestSellerRank)) {
			return false, ReasonRank
		}
	}

	if want := models.ParseSellerType(string(s.SellerType)); want != models.SellerUnknown && !sellerMatches(want, r.SellerType) {
		return false, ReasonSeller
	}

	if s.DiscountOnly && !r.Discount {
		return false, ReasonDiscount
	}

	return true, ReasonNone
}

func (s Spec) ratingRange() Range {
	rr := s.Rating
	if !rr.Min.IsSet() {
		rr.Min = defaultRating.Min
	}
	if !rr.Max.IsSet() {
		rr.Max = defaultRating.Max
	}
	return rr
}

// InStock reports whether an availability text signals stock. Negative
// phrases win over positive ones ("Currently unavailable").
func InStock(availability string) bool {
	av := strings.ToLower(availability)
	for _, m := range outOfStockMarkers {
		if strings.Contains(av, m) {
			return false
		}
	}
	for _, m := range inStockMarkers {
		if strings.Contains(av, m) {
			return true
		}
	}
	return false
}

func matchesAnyBrand(brands []string, title, brand string) bool {
	constrained := false
	for _, b := range brands {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		constrained = true
		if strings.Contains(title, b) || strings.Contains(brand, b) {
			return true
		}
	}
	return !constrained
}

// An "amazon" constraint accepts any listing sold or fulfilled by the
// marketplace itself.
func sellerMatches(want, got models.SellerType) bool {
	if want == models.SellerAmazon {
		return got == models.SellerAmazon || got == models.SellerFBA
	}
	return want == got
}
