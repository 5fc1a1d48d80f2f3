package config

import (
	"time"

	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
)

const (
	DefaultEndpoint  = "https://www.watchcount.com"
	DefaultUserAgent = "Mozilla/5.0"
	DefaultSite      = "EBAY_GB"
	DefaultMinPrice  = 15
	DefaultPages     = 5
)

// QueryConfig describes one search: what to look for and how to fetch it
type QueryConfig struct {
	Keywords  string           `yaml:"keywords"`
	MinPrice  float64          `yaml:"min_price"`
	Site      string           `yaml:"site"`
	Pages     int              `yaml:"pages"`
	Mode      models.FetchMode `yaml:"mode"`
	SampleDir string           `yaml:"sample_dir,omitempty"` // Pre-rendered pages named page1.html, page2.html, ...
}

// SelectorConfig holds the CSS selectors used to pull listing fields out of a results page
type SelectorConfig struct {
	Row        string `yaml:"row,omitempty"`
	Title      string `yaml:"title,omitempty"`
	Price      string `yaml:"price,omitempty"`
	WatchCount string `yaml:"watch_count,omitempty"`
	Image      string `yaml:"image,omitempty"`
}

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent              string           `yaml:"user_agent,omitempty"`
	Endpoint               string           `yaml:"endpoint,omitempty"`
	PageSize               int              `yaml:"page_size,omitempty"`
	MaxAttempts            int              `yaml:"max_attempts,omitempty"`
	RetryBackoffMultiplier time.Duration    `yaml:"retry_backoff_multiplier,omitempty"` // Backoff of retry n is multiplier * 2^(n-1)
	MinRetryDelay          time.Duration    `yaml:"min_retry_delay,omitempty"`
	MaxRetryDelay          time.Duration    `yaml:"max_retry_delay,omitempty"`
	DefaultRetryAfter      time.Duration    `yaml:"default_retry_after,omitempty"` // Used when a 429 has no usable Retry-After
	RetryAfterUnit         time.Duration    `yaml:"retry_after_unit,omitempty"`    // Length of one Retry-After second
	CrawlPermits           int              `yaml:"crawl_permits,omitempty"`
	PermitCooldown         time.Duration    `yaml:"permit_cooldown,omitempty"`
	GlobalTimeout          time.Duration    `yaml:"global_timeout,omitempty"`
	RespectRobots          bool             `yaml:"respect_robots,omitempty"`
	CacheDir               string           `yaml:"cache_dir,omitempty"` // Empty disables the page cache
	CacheTTL               time.Duration    `yaml:"cache_ttl,omitempty"`
	StateDir               string           `yaml:"state_dir,omitempty"` // Watch-mode run history
	OutputFormat           string           `yaml:"output_format,omitempty"`
	HTTPClientSettings     HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Selectors              SelectorConfig   `yaml:"selectors,omitempty"`
	Query                  QueryConfig      `yaml:"query"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns a config pre-filled with the values a bare command line would use.
// YAML is decoded on top of it, so keys missing from the file keep these values.
func Default() *AppConfig {
	return &AppConfig{
		Query: QueryConfig{
			MinPrice: DefaultMinPrice,
			Site:     DefaultSite,
			Pages:    DefaultPages,
			Mode:     models.FetchModeBatch,
		},
	}
}

// DefaultSelectors returns the selectors matching the watchcount results layout
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Row:        ".resultRow",
		Title:      ".resultTitle a",
		Price:      ".resultPrice",
		WatchCount: ".resultWatch",
		Image:      "img",
	}
}
