package orchestrate

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
	"github.com/Sriram-PR/watchcount-scraper/pkg/fetch"
	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/parse"
	"github.com/Sriram-PR/watchcount-scraper/pkg/storage"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

const cacheGCInterval = 5 * time.Minute

// RunResult summarises a finished run
type RunResult struct {
	RunID    string
	Mode     models.FetchMode
	Pages    int
	Bytes    int // Total size of all page bodies
	Rows     int // Listings parsed across all pages, duplicates included
	Listings *models.ListingCollection
	Duration time.Duration
}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithPageCache serves pages from cache before going to the network.
// The orchestrator takes ownership of cache and closes it when Run returns.
func WithPageCache(cache storage.PageCache) Option {
	return func(o *Orchestrator) { o.cache = cache }
}

// WithGovernor makes crawl-mode runs draw permits from g instead of a fresh governor
func WithGovernor(g *fetch.RateGovernor) Option {
	return func(o *Orchestrator) { o.governor = g }
}

// Orchestrator turns a query into the set of listings across its result pages
type Orchestrator struct {
	appCfg    *config.AppConfig
	transport fetch.Transport
	cache     storage.PageCache
	governor  *fetch.RateGovernor
	robots    *fetch.RobotsChecker // nil unless respect_robots is set
	log       *logrus.Entry
}

// NewOrchestrator creates an orchestrator for appCfg.Query. appCfg must already be validated.
func NewOrchestrator(appCfg *config.AppConfig, transport fetch.Transport, log *logrus.Entry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		appCfg:    appCfg,
		transport: transport,
		log:       log,
	}
	if appCfg.RespectRobots {
		o.robots = fetch.NewRobotsChecker(transport, appCfg.UserAgent, log)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuildURLs returns the result page URLs for q, one per page index
func BuildURLs(q config.QueryConfig, endpoint string, pageSize int) []string {
	keywords := url.QueryEscape(q.Keywords)
	minPrice := formatPrice(q.MinPrice)
	site := url.QueryEscape(q.Site)

	urls := make([]string, 0, q.Pages)
	for i := range q.Pages {
		urls = append(urls, fmt.Sprintf("%s/live/%s/-/all?minPrice=%s&offset=%d&site=%s",
			endpoint, keywords, minPrice, i*pageSize, site))
	}
	return urls
}

// formatPrice renders v with at least one decimal place: 15 -> "15.0", 12.5 -> "12.5"
func formatPrice(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Run fetches (or reads) every page of the query, parses them and merges the listings
// in page order, so a listing seen on several pages keeps the fields of the last one.
// Any fatal error fails the whole run and no partial collection is returned.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	q := o.appCfg.Query
	start := time.Now()
	runID := uuid.NewString()
	runLog := o.log.WithFields(logrus.Fields{
		"run_id": runID,
		"mode":   q.Mode.String(),
	})

	if o.cache != nil {
		gcCtx, stopGC := context.WithCancel(ctx)
		gcDone := make(chan struct{})
		go func() {
			defer close(gcDone)
			o.cache.RunGC(gcCtx, cacheGCInterval)
		}()
		defer func() {
			stopGC()
			<-gcDone
			if err := o.cache.Close(); err != nil {
				runLog.Warnf("Error closing page cache: %v", err)
			}
		}()
	}

	var pages []string
	var err error
	if q.SampleDir != "" {
		runLog.Infof("Reading %d sample pages from %s", q.Pages, q.SampleDir)
		pages, err = readSamplePages(q.SampleDir, q.Pages)
	} else {
		urls := BuildURLs(q, o.appCfg.Endpoint, o.appCfg.PageSize)
		runLog.Infof("Fetching %d pages for '%s'", len(urls), q.Keywords)
		pages, err = o.fetchPages(ctx, q.Mode, urls, runLog)
	}
	if err != nil {
		runLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Run failed: %v", err)
		return nil, err
	}

	result := &RunResult{
		RunID:    runID,
		Mode:     q.Mode,
		Pages:    len(pages),
		Listings: models.NewListingCollection(),
	}
	for i, content := range pages {
		listings := parse.ParseListings(content, o.appCfg.Selectors)
		added := result.Listings.Merge(listings)
		result.Rows += len(listings)
		result.Bytes += len(content)
		runLog.WithFields(logrus.Fields{"page": i + 1, "rows": len(listings), "new": added}).Debug("Merged page")
	}
	result.Duration = time.Since(start)

	runLog.Infof("Run complete: %d listings (%d rows) from %d pages in %v",
		result.Listings.Len(), result.Rows, result.Pages, result.Duration.Round(time.Millisecond))
	return result, nil
}

// readSamplePages reads page1.html .. page{n}.html from dir in index order
func readSamplePages(dir string, n int) ([]string, error) {
	pages := make([]string, 0, n)
	for i := range n {
		path := filepath.Join(dir, fmt.Sprintf("page%d.html", i+1))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading sample page %d: %w", utils.ErrFilesystem, i+1, err)
		}
		pages = append(pages, string(data))
	}
	return pages, nil
}

// fetchPages builds the fetcher chain for mode and fetches urls with it.
// The fetcher is closed on every exit path.
func (o *Orchestrator) fetchPages(ctx context.Context, mode models.FetchMode, urls []string, runLog *logrus.Entry) ([]string, error) {
	var fetcher fetch.PageFetcher = fetch.NewFetcher(o.transport, mode, o.governor, o.appCfg, runLog)
	if o.cache != nil {
		fetcher = fetch.NewCachedFetcher(fetcher, o.cache, runLog)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			runLog.Warnf("Error closing fetcher: %v", err)
		}
	}()

	switch mode {
	case models.FetchModeBatch:
		return fetchBatch(ctx, fetcher, urls)
	case models.FetchModeCrawl:
		return o.fetchCrawl(ctx, fetcher, urls, runLog)
	default:
		return nil, fmt.Errorf("%w: unsupported fetch mode '%s'", utils.ErrConfigValidation, mode)
	}
}

// fetchBatch fetches every page concurrently. The first failure cancels the
// siblings' context, and all of them have returned before fetchBatch does.
func fetchBatch(ctx context.Context, fetcher fetch.PageFetcher, urls []string) ([]string, error) {
	pages := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, pageURL := range urls {
		g.Go(func() error {
			body, err := fetcher.Fetch(gctx, pageURL)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// fetchCrawl fetches pages one at a time; each fetch, retries included, finishes before the next starts
func (o *Orchestrator) fetchCrawl(ctx context.Context, fetcher fetch.PageFetcher, urls []string, runLog *logrus.Entry) ([]string, error) {
	pages := make([]string, 0, len(urls))
	for i, pageURL := range urls {
		if o.robots != nil && !o.robots.Allowed(ctx, pageURL) {
			return nil, fmt.Errorf("page %d: %w: %s", i+1, utils.ErrRobotsDisallowed, pageURL)
		}
		body, err := fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		runLog.WithField("page", i+1).Debug("Page fetched")
		pages = append(pages, body)
	}
	return pages, nil
}
