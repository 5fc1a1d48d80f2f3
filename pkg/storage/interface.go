package storage

import (
	"context"
	"time"
)

// PageCache stores fetched result pages so a re-run within the TTL can skip the network
type PageCache interface {
	// Get returns the cached body for pageURL; found is false on a miss or an expired entry
	Get(pageURL string) (body string, found bool, err error)

	// Put stores body for pageURL, replacing any earlier entry and restarting its TTL
	Put(pageURL string, body string) error

	// Count returns the number of live entries
	Count() (int, error)

	// RunGC runs periodic value-log garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the underlying database
	Close() error
}
