package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/maltedev/amazon-product-tracker/internal/models"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func baseRecord() *models.ProductRecord {
	return &models.ProductRecord{
		ASIN:             "B000123456",
		Title:            "Logitech Wireless Mouse M185",
		Brand:            "Logitech",
		Price:            fp(19.99),
		Rating:           fp(4.5),
		ReviewCount:      ip(1200),
		AvailabilityText: "In Stock",
		SellerInfoText:   "Ships from and sold by Amazon.com",
		SellerType:       models.SellerAmazon,
		BestSellerRank:   ip(150),
		Prime:            true,
		Discount:         true,
	}
}

func TestEmptySpecPassesEverything(t *testing.T) {
	assert.True(t, Spec{}.Passes(baseRecord()))
	assert.True(t, Spec{}.Passes(&models.ProductRecord{Title: "bare"}))
	assert.False(t, Spec{}.Passes(nil))
}

func TestEvaluateReasons(t *testing.T) {
	tests := []struct {
		name   string
		spec   Spec
		mutate func(r *models.ProductRecord)
		ok     bool
		reason Reason
	}{
		{name: "price in range", spec: Spec{Price: Between(10, 20)}, ok: true},
		{name: "price above max", spec: Spec{Price: Range{Max: Value(15)}}, reason: ReasonPrice},
		{name: "missing price skips check", spec: Spec{Price: Between(100, 200)}, mutate: func(r *models.ProductRecord) { r.Price = nil }, ok: true},
		{name: "rating below min", spec: Spec{Rating: Range{Min: Value(4.8)}}, reason: ReasonRating},
		{name: "missing rating counts as zero", spec: Spec{Rating: Range{Min: Value(1)}}, mutate: func(r *models.ProductRecord) { r.Rating = nil }, reason: ReasonRating},
		{name: "reviews above max", spec: Spec{Reviews: Range{Max: Value(100)}}, reason: ReasonReviews},
		{name: "prime required", spec: Spec{PrimeOnly: true}, mutate: func(r *models.ProductRecord) { r.Prime = false }, reason: ReasonPrime},
		{name: "unavailable is not in stock", spec: Spec{InStockOnly: true}, mutate: func(r *models.ProductRecord) { r.AvailabilityText = "Currently unavailable." }, reason: ReasonStock},
		{name: "usually ships counts as stock", spec: Spec{InStockOnly: true}, mutate: func(r *models.ProductRecord) { r.AvailabilityText = "Usually ships within 2 days" }, ok: true},
		{name: "brand matches title", spec: Spec{Brand: "logitech"}, mutate: func(r *models.ProductRecord) { r.Brand = "" }, ok: true},
		{name: "brand mismatch", spec: Spec{Brand: "Razer"}, reason: ReasonBrand},
		{name: "any of brands", spec: Spec{Brands: []string{"Razer", "LOGITECH"}}, ok: true},
		{name: "none of brands", spec: Spec{Brands: []string{"Razer", "Corsair"}}, reason: ReasonBrand},
		{name: "include all keywords", spec: Spec{IncludeKeywords: []string{"wireless", "mouse"}}, ok: true},
		{name: "include missing keyword", spec: Spec{IncludeKeywords: []string{"wireless", "keyboard"}}, reason: ReasonInclude},
		{name: "exclude keyword", spec: Spec{ExcludeKeywords: []string{"M185"}}, reason: ReasonExclude},
		{name: "rank out of range", spec: Spec{BestSellerRank: Range{Max: Value(100)}}, reason: ReasonRank},
		{name: "absent rank never fails", spec: Spec{BestSellerRank: Range{Max: Value(100)}}, mutate: func(r *models.ProductRecord) { r.BestSellerRank = nil }, ok: true},
		{name: "zero rank never fails", spec: Spec{BestSellerRank: Range{Min: Value(1000)}}, mutate: func(r *models.ProductRecord) { r.BestSellerRank = ip(0) }, ok: true},
		{name: "seller fba required", spec: Spec{SellerType: models.SellerFBA}, reason: ReasonSeller},
		{name: "amazon accepts fba", spec: Spec{SellerType: models.SellerAmazon}, mutate: func(r *models.ProductRecord) { r.SellerType = models.SellerFBA }, ok: true},
		{name: "any seller is unconstrained", spec: Spec{SellerType: "any"}, ok: true},
		{name: "discount required", spec: Spec{DiscountOnly: true}, mutate: func(r *models.ProductRecord) { r.Discount = false }, reason: ReasonDiscount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRecord()
			if tt.mutate != nil {
				tt.mutate(r)
			}
			ok, reason := tt.spec.Evaluate(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, ok, tt.spec.Passes(r))
		})
	}
}

func TestEvaluateOrder(t *testing.T) {
	spec := Spec{Price: Range{Max: Value(1)}, Brand: "Razer", DiscountOnly: true}
	r := baseRecord()
	r.Discount = false

	_, reason := spec.Evaluate(r)
	assert.Equal(t, ReasonPrice, reason)
}

func TestBoundZeroIsNotUnset(t *testing.T) {
	spec := Spec{Price: Range{Max: Value(0)}}
	assert.False(t, spec.Passes(baseRecord()))
	assert.True(t, Spec{}.Passes(baseRecord()))
}

func TestParseBound(t *testing.T) {
	v, ok := ParseBound(" 12,5 ").Get()
	assert.True(t, ok)
	assert.Equal(t, 12.5, v)

	assert.False(t, ParseBound("").IsSet())
	assert.False(t, ParseBound("cheap").IsSet())
	assert.True(t, ParseBound("0").IsSet())
}

func TestSpecDecoding(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var spec Spec
		err := json.Unmarshal([]byte(`{"price":{"min":"10","max":20},"rating":{"min":null},"reviews":{"min":"lots"},"seller_type":"fba"}`), &spec)
		require.NoError(t, err)

		min, ok := spec.Price.Min.Get()
		assert.True(t, ok)
		assert.Equal(t, 10.0, min)
		max, ok := spec.Price.Max.Get()
		assert.True(t, ok)
		assert.Equal(t, 20.0, max)
		assert.False(t, spec.Rating.Min.IsSet())
		assert.False(t, spec.Reviews.Min.IsSet())
		assert.Equal(t, models.SellerFBA, spec.SellerType)
	})

	t.Run("yaml", func(t *testing.T) {
		var spec Spec
		err := yaml.Unmarshal([]byte("price:\n  min: 5\n  max: ''\nbrands: [Anker, Ugreen]\nprime_only: true\n"), &spec)
		require.NoError(t, err)

		assert.True(t, spec.Price.Min.IsSet())
		assert.False(t, spec.Price.Max.IsSet())
		assert.Equal(t, []string{"Anker", "Ugreen"}, spec.Brands)
		assert.True(t, spec.PrimeOnly)
	})

	t.Run("json round trip keeps unset", func(t *testing.T) {
		data, err := json.Marshal(Spec{Price: Range{Min: Value(3)}})
		require.NoError(t, err)

		var back Spec
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.Price.Min.IsSet())
		assert.False(t, back.Price.Max.IsSet())
	})
}
