package fetch

import (
	"context"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsChecker fetches, parses and caches robots.txt per host
type RobotsChecker struct {
	transport Transport
	userAgent string
	cache     map[string]*robotstxt.RobotsData // host -> parsed data (nil when unavailable)
	mu        sync.Mutex
	log       *logrus.Entry
}

// NewRobotsChecker creates a RobotsChecker that fetches robots.txt through transport
func NewRobotsChecker(transport Transport, userAgent string, log *logrus.Entry) *RobotsChecker {
	return &RobotsChecker{
		transport: transport,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log.WithField("component", "robots"),
	}
}

// robotsData returns the cached rules for u's host, fetching them on first use
func (rc *RobotsChecker) robotsData(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := u.Host

	rc.mu.Lock()
	data, found := rc.cache[host]
	rc.mu.Unlock()
	if found {
		return data
	}

	scheme := u.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rc.log.WithField("robots_url", robotsURL)
	robotsLog.Debug("Fetching robots.txt...")

	data = rc.fetch(ctx, robotsURL, robotsLog)

	rc.mu.Lock()
	rc.cache[host] = data
	rc.mu.Unlock()
	return data
}

func (rc *RobotsChecker) fetch(ctx context.Context, robotsURL string, robotsLog *logrus.Entry) *robotstxt.RobotsData {
	resp, err := rc.transport.Get(ctx, robotsURL)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed: %v", err)
		return nil
	}
	if resp.StatusCode >= 500 {
		robotsLog.Warnf("robots.txt unavailable (status %d)", resp.StatusCode)
		return nil
	}

	// 4xx yields allow-all rules
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, []byte(resp.Body))
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Debug("Parsed robots.txt")
	return data
}

// Allowed reports whether the configured user agent may fetch pageURL.
// Unreachable or unparseable robots.txt files allow everything.
func (rc *RobotsChecker) Allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		rc.log.Warnf("Cannot check robots.txt for invalid URL '%s'", pageURL)
		return true
	}

	data := rc.robotsData(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), rc.userAgent)
}
