package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div id="results">
  <div class="resultRow">
    <div class="resultTitle"><a href="https://www.ebay.co.uk/itm/111?hash=abc">  Seiko SKX007 Diver </a></div>
    <span class="resultPrice"> £145.00 </span>
    <span class="resultWatch">12 watchers</span>
    <img src="https://i.ebayimg.com/111.jpg">
  </div>
  <div class="resultRow">
    <div class="resultTitle"><a href="https://www.ebay.co.uk/itm/222">Casio F-91W</a></div>
    <span class="resultPrice">£9.99</span>
    <img src="https://i.ebayimg.com/222.jpg">
  </div>
  <div class="resultRow">
    <div class="resultTitle"><a href="https://www.ebay.co.uk/itm/333">No price here</a></div>
    <span class="resultWatch">3 watchers</span>
    <img src="https://i.ebayimg.com/333.jpg">
  </div>
  <div class="resultRow">
    <span class="resultPrice">£50.00</span>
    <img src="https://i.ebayimg.com/444.jpg">
  </div>
  <div class="resultRow">
    <div class="resultTitle"><a href="https://www.ebay.co.uk/itm/555">No image</a></div>
    <span class="resultPrice">£75.00</span>
  </div>
</div>
</body></html>`

func TestParseListings(t *testing.T) {
	listings := ParseListings(resultsPage, config.DefaultSelectors())
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, "111", first.ID)
	assert.Equal(t, "Seiko SKX007 Diver", first.Title)
	assert.Equal(t, "https://www.ebay.co.uk/itm/111?hash=abc", first.URL)
	assert.Equal(t, "£145.00", first.Price)
	assert.Equal(t, "12 watchers", first.WatchCount)
	assert.Equal(t, "https://i.ebayimg.com/111.jpg", first.ImageURL)

	second := listings[1]
	assert.Equal(t, "222", second.ID)
	assert.Equal(t, "", second.WatchCount, "missing watch count is kept as empty")
}

func TestParseListings_SkipsIncompleteRows(t *testing.T) {
	listings := ParseListings(resultsPage, config.DefaultSelectors())
	for _, l := range listings {
		assert.NotContains(t, []string{"333", "444", "555"}, l.ID)
	}
}

func TestParseListings_NeverFails(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"plain text", "Too Many Requests"},
		{"unclosed tags", `<div class="resultRow"><div class="resultTitle"><a href="/itm/1">x`},
		{"json", `{"error": "rate limited"}`},
		{"binary junk", "\x00\x01\x02<<<>>>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			assert.NotPanics(t, func() {
				got = len(ParseListings(tt.content, config.DefaultSelectors()))
			})
			assert.Equal(t, 0, got)
		})
	}
}

func TestParseListings_CustomSelectors(t *testing.T) {
	page := `<ul>
	  <li class="item"><h3><a href="/p/9001">Tudor Black Bay</a></h3><b class="cost">£2,400</b><em>5</em><img src="/img/9001.png"></li>
	</ul>`
	sel := config.SelectorConfig{Row: "li.item", Title: "h3 a", Price: "b.cost", WatchCount: "em", Image: "img"}

	listings := ParseListings(page, sel)
	require.Len(t, listings, 1)
	assert.Equal(t, "9001", listings[0].ID)
	assert.Equal(t, "£2,400", listings[0].Price)
	assert.Equal(t, "5", listings[0].WatchCount)
	assert.Equal(t, "/img/9001.png", listings[0].ImageURL)
}

func TestListingID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.ebay.co.uk/itm/1234567890", "1234567890"},
		{"https://www.ebay.co.uk/itm/1234567890?hash=item1&var=2", "1234567890"},
		{"https://www.ebay.co.uk/itm/Some-Title/1234567890?x=1", "1234567890"},
		{"1234567890", "1234567890"},
		{"https://www.ebay.co.uk/itm/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ListingID(tt.url))
		})
	}
}
