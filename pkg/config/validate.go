package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")

	if c.PageSize <= 0 {
		c.PageSize = 20
	}

	// Retry policy
	if c.MaxAttempts < 0 {
		warnings = append(warnings, "max_attempts cannot be negative, defaulting to 5")
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBackoffMultiplier <= 0 {
		c.RetryBackoffMultiplier = 1 * time.Second
	}
	if c.MinRetryDelay <= 0 {
		c.MinRetryDelay = 1 * time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 60 * time.Second
	}
	if c.MinRetryDelay > c.MaxRetryDelay {
		warnings = append(warnings, fmt.Sprintf(
			"min_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for both",
			c.MinRetryDelay, c.MaxRetryDelay))
		c.MinRetryDelay = c.MaxRetryDelay
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = 60 * time.Second
	}
	if c.RetryAfterUnit <= 0 {
		c.RetryAfterUnit = 1 * time.Second
	}

	// Crawl-mode rate governor
	if c.CrawlPermits < 0 {
		warnings = append(warnings, "crawl_permits cannot be negative, defaulting to 3")
	}
	if c.CrawlPermits <= 0 {
		c.CrawlPermits = 3
	}
	if c.PermitCooldown <= 0 {
		c.PermitCooldown = 60 * time.Second
	}

	if c.GlobalTimeout < 0 {
		warnings = append(warnings, "global_timeout cannot be negative, disabling timeout")
		c.GlobalTimeout = 0
	}

	if c.CacheDir != "" && c.CacheTTL <= 0 {
		c.CacheTTL = 1 * time.Hour
	}

	if c.StateDir == "" {
		c.StateDir = "./state"
	}

	switch c.OutputFormat {
	case "json", "jsonl", "yaml":
	case "":
		c.OutputFormat = "json"
	default:
		warnings = append(warnings, fmt.Sprintf("output_format '%s' unknown, defaulting to 'json'", c.OutputFormat))
		c.OutputFormat = "json"
	}

	c.validateSelectors()
	c.validateHTTPClientSettings()

	return warnings, nil // AppConfig validation never fails fatally
}

// validateSelectors fills empty selectors from DefaultSelectors.
func (c *AppConfig) validateSelectors() {
	d := DefaultSelectors()
	s := &c.Selectors
	if s.Row == "" {
		s.Row = d.Row
	}
	if s.Title == "" {
		s.Title = d.Title
	}
	if s.Price == "" {
		s.Price = d.Price
	}
	if s.WatchCount == "" {
		s.WatchCount = d.WatchCount
	}
	if s.Image == "" {
		s.Image = d.Image
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 10
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks QueryConfig fields and applies defaults.
// Missing keywords, a non-positive page count, a negative price or an unknown mode are fatal.
func (q *QueryConfig) Validate() (warnings []string, err error) {
	q.Keywords = strings.TrimSpace(q.Keywords)
	if q.Keywords == "" {
		return nil, fmt.Errorf("%w: query needs keywords", utils.ErrConfigValidation)
	}

	if q.Pages <= 0 {
		return nil, fmt.Errorf("%w: pages must be > 0, got %d", utils.ErrConfigValidation, q.Pages)
	}

	if q.MinPrice < 0 {
		return nil, fmt.Errorf("%w: min_price cannot be negative, got %v", utils.ErrConfigValidation, q.MinPrice)
	}

	if q.Site == "" {
		warnings = append(warnings, fmt.Sprintf("site is empty, defaulting to '%s'", DefaultSite))
		q.Site = DefaultSite
	}

	if q.Mode == models.FetchModeUnset {
		warnings = append(warnings, "mode is empty, defaulting to 'batch'")
		q.Mode = models.FetchModeBatch
	}
	mode, modeErr := models.ParseFetchMode(string(q.Mode))
	if modeErr != nil {
		return warnings, fmt.Errorf("%w: %w", utils.ErrConfigValidation, modeErr)
	}
	q.Mode = mode

	return warnings, nil
}
