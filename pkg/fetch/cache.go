package fetch

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/watchcount-scraper/pkg/storage"
)

// CachedFetcher serves pages from a PageCache and falls through to another PageFetcher on a miss.
// Cache errors are logged and never fail a fetch. The cache is owned by the caller.
type CachedFetcher struct {
	next  PageFetcher
	cache storage.PageCache
	log   *logrus.Entry
}

// NewCachedFetcher wraps next with cache
func NewCachedFetcher(next PageFetcher, cache storage.PageCache, log *logrus.Entry) *CachedFetcher {
	return &CachedFetcher{next: next, cache: cache, log: log.WithField("component", "page_cache")}
}

// Fetch implements PageFetcher
func (c *CachedFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	body, found, err := c.cache.Get(pageURL)
	if err != nil {
		c.log.Warnf("Page cache read failed for %s: %v", pageURL, err)
	} else if found {
		return body, nil
	}

	body, err = c.next.Fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}

	if err := c.cache.Put(pageURL, body); err != nil {
		c.log.Warnf("Page cache write failed for %s: %v", pageURL, err)
	}
	return body, nil
}

// Close closes the wrapped fetcher; the cache stays open
func (c *CachedFetcher) Close() error {
	return c.next.Close()
}
