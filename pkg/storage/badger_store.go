package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/watchcount-scraper/pkg/log"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

const (
	pageKeyPrefix = "page:"    // Prefix for cached page keys in DB
	pageCacheDir  = "pages_db" // Subdirectory suffix within cacheDir for Badger DB files
)

// cachedPage is the JSON value stored under each page key
type cachedPage struct {
	URL       string    `json:"url"`
	Body      string    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// BadgerPageCache implements the PageCache interface using BadgerDB.
// Expiry is delegated to Badger entry TTLs, so expired pages simply read as misses.
type BadgerPageCache struct {
	db  *badger.DB
	ttl time.Duration
	log *logrus.Entry
}

// NewBadgerPageCache opens the page cache for site under cacheDir.
// With refresh set, any existing cache directory for the site is wiped first.
func NewBadgerPageCache(cacheDir, site string, ttl time.Duration, refresh bool, logger *logrus.Entry) (*BadgerPageCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: cache TTL must be > 0, got %v", utils.ErrConfigValidation, ttl)
	}

	dbPath := filepath.Join(cacheDir, utils.SanitizeFilename(site)+"_"+pageCacheDir)

	if refresh {
		logger.Warnf("Refresh requested. REMOVING existing page cache: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing page cache %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create cache directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	logger.Infof("Opening page cache at: %s (TTL: %v)", dbPath, ttl)

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	return &BadgerPageCache{db: db, ttl: ttl, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent batch fetches can race on the same key; conflicts clear quickly.
func (s *BadgerPageCache) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Get implements the PageCache interface
func (s *BadgerPageCache) Get(pageURL string) (string, bool, error) {
	key := utils.CacheKey(pageKeyPrefix, pageURL)
	var page cachedPage
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			if errJson := json.Unmarshal(val, &page); errJson != nil {
				s.log.Warnf("Failed to unmarshal cached page for '%s': %v. Treating as miss.", pageURL, errJson)
				return nil
			}
			// Guards against hash collisions
			found = page.URL == pageURL
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: reading cached page '%s': %w", utils.ErrDatabase, pageURL, err)
	}
	if !found {
		return "", false, nil
	}

	s.log.WithFields(logrus.Fields{
		"url": pageURL,
		"age": time.Since(page.FetchedAt).Round(time.Second),
	}).Debug("Page cache hit")
	return page.Body, true, nil
}

// Put implements the PageCache interface
func (s *BadgerPageCache) Put(pageURL string, body string) error {
	key := utils.CacheKey(pageKeyPrefix, pageURL)
	val, errJson := json.Marshal(cachedPage{URL: pageURL, Body: body, FetchedAt: time.Now()})
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal cached page JSON for '%s': %w", utils.ErrParsing, pageURL, errJson)
	}

	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, val).WithTTL(s.ttl))
	})
	if err != nil {
		if errors.Is(err, utils.ErrDatabase) {
			return err
		}
		return fmt.Errorf("%w: writing cached page '%s': %w", utils.ErrDatabase, pageURL, err)
	}
	return nil
}

// Count implements the PageCache interface
func (s *BadgerPageCache) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pageKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting cached pages: %w", utils.ErrDatabase, err)
	}
	return count, nil
}

// RunGC implements the PageCache interface
func (s *BadgerPageCache) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debugf("Starting page cache GC (interval: %v)", interval)
	for {
		select {
		case <-ticker.C:
			for {
				// Keep going while Badger finds value-log files worth rewriting
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.log.Warnf("Page cache GC error: %v", err)
					}
					break
				}
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping page cache GC: %v", ctx.Err())
			return
		}
	}
}

// Close implements the PageCache interface
func (s *BadgerPageCache) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	s.log.Debug("Closing page cache...")
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing page cache: %v", err)
		return err
	}
	return nil
}
