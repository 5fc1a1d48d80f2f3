package models

import (
	"sort"
	"sync"
)

// Listing is one extracted marketplace item.
// ID is taken from the listing URL and stays stable across pages; Price is a display string and is never parsed.
type Listing struct {
	ID         string `json:"id" yaml:"id"`
	Title      string `json:"title" yaml:"title"`
	URL        string `json:"url" yaml:"url"`
	Price      string `json:"price" yaml:"price"`
	WatchCount string `json:"watch_count" yaml:"watch_count"`
	ImageURL   string `json:"image_url" yaml:"image_url"`
}

// ListingCollection deduplicates listings by ID across all pages of a run.
// The last merged listing for an ID wins.
type ListingCollection struct {
	listings map[string]Listing
	mu       sync.Mutex
}

// NewListingCollection creates an empty collection
func NewListingCollection() *ListingCollection {
	return &ListingCollection{
		listings: make(map[string]Listing),
	}
}

// Merge inserts every listing keyed by ID, overwriting earlier entries with the same ID.
// Returns how many IDs were new to the collection.
func (c *ListingCollection) Merge(listings []Listing) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, l := range listings {
		if _, exists := c.listings[l.ID]; !exists {
			added++
		}
		c.listings[l.ID] = l
	}
	return added
}

// Get returns the listing stored for id
func (c *ListingCollection) Get(id string) (Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[id]
	return l, ok
}

// Len returns the number of distinct listings
func (c *ListingCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listings)
}

// Values returns a snapshot of the collection sorted by ID
func (c *ListingCollection) Values() []Listing {
	c.mu.Lock()
	out := make([]Listing, 0, len(c.listings))
	for _, l := range c.listings {
		out = append(out, l)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
