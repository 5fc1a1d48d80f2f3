package fetch

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Integer Retry-After values above one day are treated as garbage
const maxRetryAfterSeconds = 24 * 60 * 60

// RetryAfter reads the server's requested wait from a 429 response.
// Integer values count in unit (one second in production); HTTP dates are honoured as-is.
// Missing, negative, oversized or unparsable values yield fallback.
func RetryAfter(h http.Header, unit, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 || n > maxRetryAfterSeconds {
			return fallback
		}
		return time.Duration(n) * unit
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
