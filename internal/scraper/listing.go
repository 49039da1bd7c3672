package scraper

import (
	"net/url"

	"github.com/maltedev/amazon-product-tracker/internal/models"
	"github.com/maltedev/amazon-product-tracker/internal/parser"
)

const searchResultSelector = `div[data-component-type="s-search-result"]`

// ExtractListingPage reads the product cards of a loaded search results
// page. Cards without a product id are skipped.
func (e *Extractor) ExtractListingPage(d Document) []models.Listing {
	cards := e.query(d, searchResultSelector)
	listings := make([]models.Listing, 0, len(cards))

	for _, card := range cards {
		asin := e.attr(card, "data-asin")
		if asin == "" {
			continue
		}
		scope := elementScope{el: card}

		listing := models.Listing{
			ASIN:  asin,
			Title: e.firstText(scope, "h2 span", "h2 a span", "h2"),
			Image: e.firstAttr(scope, "img", "src", "data-src"),
		}

		href := e.firstAttr(scope, "a.a-link-normal.s-no-outline", "href")
		if href == "" {
			href = e.firstAttr(scope, "h2 a", "href")
		}
		listing.URL = e.cleanLink(href)
		if listing.URL == "" {
			listing.URL = e.market.ProductURL(asin)
		}

		if whole := e.firstText(scope, ".a-price-whole"); whole != "" {
			fraction := e.firstText(scope, ".a-price-fraction")
			listing.Price = parser.PricePtr(parser.JoinPriceParts(whole, fraction))
		}
		if listing.Price == nil {
			listing.Price = parser.PricePtr(e.firstText(scope, "span.a-offscreen"))
		}

		listings = append(listings, listing)
	}

	e.logger.Debug("extracted listings", "cards", len(cards), "listings", len(listings))
	return listings
}

// cleanLink resolves href against the marketplace and drops query and
// fragment.
func (e *Extractor) cleanLink(href string) string {
	if href == "" {
		return ""
	}
	abs := e.market.ResolveURL(href)
	u, err := url.Parse(abs)
	if err != nil || u.Host == "" {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
