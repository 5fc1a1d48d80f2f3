package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

// PageFetcher returns the raw content of one results page
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
	Close() error
}

// Fetcher fetches pages through a Transport with rate-limit aware retries.
// In crawl mode every call holds a RateGovernor permit for its whole retry loop.
type Fetcher struct {
	transport         Transport
	mode              models.FetchMode
	governor          *RateGovernor // nil outside crawl mode
	policy            RetryPolicy
	retryAfterUnit    time.Duration
	defaultRetryAfter time.Duration
	log               *logrus.Entry
}

// NewFetcher creates a Fetcher for mode. governor is required for crawl mode and ignored otherwise.
func NewFetcher(transport Transport, mode models.FetchMode, governor *RateGovernor, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	f := &Fetcher{
		transport:         transport,
		mode:              mode,
		retryAfterUnit:    cfg.RetryAfterUnit,
		defaultRetryAfter: cfg.DefaultRetryAfter,
		log:               log.WithField("mode", mode.String()),
	}
	if mode == models.FetchModeCrawl {
		if governor == nil {
			governor = NewRateGovernor(cfg.CrawlPermits, cfg.PermitCooldown, log)
		}
		f.governor = governor
	}

	f.policy = RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     ExponentialBackoff(cfg.RetryBackoffMultiplier, cfg.MinRetryDelay, cfg.MaxRetryDelay),
		Retryable:   RetryOnRateLimit,
	}
	return f
}

// Fetch returns the body of pageURL.
// Only rate-limit responses are retried; any other non-2xx status or transport
// failure is fatal for this URL. After MaxAttempts rate-limited attempts the
// error wraps ErrRetryFailed.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	reqLog := f.log.WithField("url", pageURL)

	if f.governor != nil {
		reqLog.Debug("Waiting for crawl permit...")
		if err := f.governor.Acquire(ctx); err != nil {
			return "", fmt.Errorf("waiting for crawl permit: %w", err)
		}
		// Released on every exit path, but only after the cooldown
		defer f.governor.Release()
	}

	policy := f.policy
	policy.OnRetry = func(attempt int, delay time.Duration, lastErr error) {
		reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": policy.MaxAttempts, "delay": delay}).
			Warnf("Retrying request after: %v", lastErr)
	}

	var body string
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		b, attemptErr := f.attempt(ctx, pageURL, reqLog.WithField("attempt", attempt))
		if attemptErr == nil {
			body = b
		}
		return attemptErr
	})
	if err != nil {
		reqLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Fetch failed: %v", err)
		return "", err
	}
	return body, nil
}

// attempt performs one request and classifies its outcome.
// A 429 sleeps for the server-requested wait before reporting ErrRateLimited,
// so the retry backoff is added on top of it.
func (f *Fetcher) attempt(ctx context.Context, pageURL string, attemptLog *logrus.Entry) (string, error) {
	resp, err := f.transport.Get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	statusCode := resp.StatusCode
	status := fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
	resLog := attemptLog.WithField("status_code", statusCode)

	switch {
	case statusCode >= 200 && statusCode < 300:
		resLog.Debug("Successfully fetched")
		return resp.Body, nil

	case statusCode == http.StatusTooManyRequests:
		wait := RetryAfter(resp.Header, f.retryAfterUnit, f.defaultRetryAfter)
		resLog.WithField("retry_after", wait).Warn("Rate limited, sleeping before retry")
		if err := sleepContext(ctx, wait); err != nil {
			return "", fmt.Errorf("rate limit wait interrupted: %w", err)
		}
		return "", fmt.Errorf("%w: status %s", utils.ErrRateLimited, status)

	case statusCode >= 400 && statusCode < 500:
		resLog.Warn("Client error (4xx), not retrying")
		return "", fmt.Errorf("%w: status %s", utils.ErrClientHTTPError, status)

	case statusCode >= 500:
		resLog.Warn("Server error (5xx), not retrying")
		return "", fmt.Errorf("%w: status %s", utils.ErrServerHTTPError, status)

	default:
		resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
		return "", fmt.Errorf("%w: status %s", utils.ErrOtherHTTPError, status)
	}
}

// Close releases the transport's pooled connections
func (f *Fetcher) Close() error {
	return f.transport.Close()
}
