package scraper

import (
	"context"
	"strings"

	"github.com/maltedev/amazon-product-tracker/internal/cancel"
	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/parser"
)

type priceStrategy struct {
	whole    string
	fraction string
	currency bool
}

var corePriceStrategies = []priceStrategy{
	{whole: "#corePrice_feature_div .a-price-whole", fraction: "#corePrice_feature_div .a-price-fraction"},
	{whole: "#corePriceDisplay_desktop_feature_div .a-price-whole", fraction: "#corePriceDisplay_desktop_feature_div .a-price-fraction"},
	{whole: "#priceblock_dealprice"},
	{whole: "#priceblock_ourprice"},
	{whole: "span.a-offscreen", currency: true},
}

const fallbackPriceSelector = "span.a-price span.a-offscreen"

var imageSelectors = []struct {
	selector string
	attrs    []string
}{
	{"#landingImage", []string{"data-old-hires", "src"}},
	{"#imgTagWrapperId img", []string{"data-old-hires", "src"}},
	{"#altImages img", []string{"src"}},
	{"img.s-image", []string{"src"}},
}

var thumbnailReplacer = strings.NewReplacer(
	"_AC_US40_", "_AC_SL1500_",
	"_AC_SR38,50_", "_AC_SL1500_",
	"_AC_US100_", "_AC_SL1500_",
)

var discountPhrases = []string{
	"you save", "was $", "was €", "was £", "save",
	"sie sparen", "statt:", "économisez", "risparmi", "ahorras",
}

var fbaMarkers = []string{"fulfilled by amazon", "fulfillment by amazon", "fba", "versand durch amazon", "expédié par amazon"}

var amazonMarkers = []string{"sold by amazon", "amazon.com", "verkauf durch amazon", "vendu par amazon", "vendido por amazon", "venduto da amazon"}

var brandPrefixes = []string{"Brand: ", "Marke: ", "Marque : ", "Marca: ", "Visit the ", "Besuche den ", "Besuchen Sie den "}

var brandSuffixes = []string{" Store", "-Store", " Shop"}

// ExtractProductDetail loads a product page and reads the full record.
// It returns nil when navigation fails, when a stop was requested before
// the page was read, or when the page has neither title nor price.
func (e *Extractor) ExtractProductDetail(ctx context.Context, s Session, url string, flag *cancel.Flag) *models.ProductRecord {
	if flag.Requested() {
		return nil
	}
	if !s.Navigate(ctx, url) {
		return nil
	}
	if flag.Requested() {
		return nil
	}

	rec := models.NewProductRecord(url)
	rec.ASIN = parser.ExtractASIN(url)
	rec.Title = e.firstText(s, "#productTitle", "#title")
	rec.Price = e.detailPrice(s)
	rec.Rating = e.detailRating(s)
	if n, ok := parser.ParseReviewCount(e.firstText(s, "#acrCustomerReviewText")); ok {
		rec.ReviewCount = &n
	}

	source, err := s.Source()
	if err != nil {
		e.logger.Debug("failed to read page source", "url", url, "error", err)
	}

	rec.BestSellerRank = e.detailRank(s, source)
	rec.Images = e.detailImages(s)

	rec.AvailabilityText = e.firstText(s, "#availability", "#availability .a-color-state")
	rec.SellerInfoText = e.firstText(s, "#merchant-info", "#sellerProfileTriggerId", "#tabular-buybox .tabular-buybox-text")
	rec.SellerType = ClassifySeller(rec.SellerInfoText)

	rec.Description = e.firstText(s, "#productDescription")
	if rec.Description == "" {
		rec.Description = e.firstAttr(s, `meta[name="description"]`, "content")
	}

	rec.Brand = CleanBrand(e.firstText(s, "#bylineInfo"))
	rec.Condition = e.firstText(s, "#condition")
	rec.Prime = e.exists(s, "i.a-icon-prime", ".a-icon-prime", "#prime-badge")
	rec.Discount = HasDiscount(source)

	rec.Currency = e.opts.Currency
	rec.Country = e.market.Country()
	rec.CategoryNode = e.opts.CategoryNode

	rec.Normalize()
	if !rec.HasIdentity() {
		e.logger.Debug("discarding record without title or price", "url", url)
		return nil
	}
	return rec
}

func (e *Extractor) detailPrice(d Document) *float64 {
	for _, st := range corePriceStrategies {
		for _, el := range e.query(d, st.whole) {
			raw := e.text(el)
			if raw == "" {
				continue
			}
			if st.currency && !strings.ContainsAny(raw, "$€£") {
				continue
			}
			if st.fraction != "" {
				raw = parser.JoinPriceParts(raw, e.firstText(d, st.fraction))
			}
			if p := parser.PricePtr(raw); p != nil {
				return p
			}
		}
	}
	return parser.PricePtr(e.firstText(d, fallbackPriceSelector))
}

func (e *Extractor) detailRating(d Document) *float64 {
	if v, ok := parser.ParseRating(e.firstAttr(d, "#acrPopover", "title")); ok {
		return &v
	}
	for _, el := range e.query(d, "span.a-icon-alt") {
		if v, ok := parser.ParseRating(e.text(el)); ok {
			return &v
		}
	}
	return nil
}

func (e *Extractor) detailRank(d Document, source string) *int {
	for _, sel := range []string{"#productDetails_detailBullets_sections1", "#detailBulletsWrapper_feature_div", "#prodDetails"} {
		for _, el := range e.query(d, sel) {
			if v, ok := parser.ParseBestSellerRank(e.text(el)); ok {
				return &v
			}
		}
	}
	if v, ok := parser.ParseBestSellerRankSource(source); ok {
		return &v
	}
	return nil
}

func (e *Extractor) detailImages(d Document) []string {
	seen := make(map[string]bool)
	images := make([]string, 0, models.MaxImages)

	for _, is := range imageSelectors {
		for _, el := range e.query(d, is.selector) {
			for _, name := range is.attrs {
				src := e.attr(el, name)
				if !usableImage(src) {
					continue
				}
				src = thumbnailReplacer.Replace(src)
				if seen[src] {
					break
				}
				seen[src] = true
				images = append(images, src)
				if len(images) == models.MaxImages {
					return images
				}
				break
			}
		}
	}
	return images
}

func usableImage(src string) bool {
	if !strings.HasPrefix(src, "http") {
		return false
	}
	lower := strings.ToLower(src)
	return !strings.Contains(lower, "sprite") && !strings.HasPrefix(lower, "data:image")
}

// ClassifySeller derives the seller type from the merchant info text.
func ClassifySeller(text string) models.SellerType {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return models.SellerUnknown
	}
	for _, m := range fbaMarkers {
		if strings.Contains(t, m) {
			return models.SellerFBA
		}
	}
	for _, m := range amazonMarkers {
		if strings.Contains(t, m) {
			return models.SellerAmazon
		}
	}
	return models.SellerFBM
}

// HasDiscount looks for savings wording anywhere in the page source.
func HasDiscount(source string) bool {
	s := strings.ToLower(source)
	for _, p := range discountPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func CleanBrand(byline string) string {
	b := strings.TrimSpace(byline)
	for _, p := range brandPrefixes {
		if strings.HasPrefix(b, p) {
			b = strings.TrimPrefix(b, p)
			for _, s := range brandSuffixes {
				b = strings.TrimSuffix(b, s)
			}
			break
		}
	}
	return strings.TrimSpace(b)
}
