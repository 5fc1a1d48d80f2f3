// Package parse turns fetched result pages into listing records.
package parse

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
)

// ParseListings extracts every complete listing row from a results page.
// It never fails: empty or malformed content yields no listings, and rows missing
// a title, price or image are skipped. A missing watch count is kept as "".
func ParseListings(content string, sel config.SelectorConfig) []models.Listing {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var listings []models.Listing
	doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		if l, ok := parseRow(row, sel); ok {
			listings = append(listings, l)
		}
	})
	return listings
}

// parseRow reads one result row; ok is false if a required field is absent
func parseRow(row *goquery.Selection, sel config.SelectorConfig) (models.Listing, bool) {
	titleTag := row.Find(sel.Title).First()
	priceTag := row.Find(sel.Price).First()
	imgTag := row.Find(sel.Image).First()
	if titleTag.Length() == 0 || priceTag.Length() == 0 || imgTag.Length() == 0 {
		return models.Listing{}, false
	}

	href := titleTag.AttrOr("href", "")
	watchCount := ""
	if watchTag := row.Find(sel.WatchCount).First(); watchTag.Length() > 0 {
		watchCount = strings.TrimSpace(watchTag.Text())
	}

	return models.Listing{
		ID:         ListingID(href),
		Title:      strings.TrimSpace(titleTag.Text()),
		URL:        href,
		Price:      strings.TrimSpace(priceTag.Text()),
		WatchCount: watchCount,
		ImageURL:   imgTag.AttrOr("src", ""),
	}, true
}

// ListingID returns the last path segment of a listing URL with any query string removed,
// e.g. "https://www.ebay.co.uk/itm/1234?hash=x" -> "1234".
func ListingID(listingURL string) string {
	id := listingURL
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.Index(id, "?"); i >= 0 {
		id = id[:i]
	}
	return id
}
