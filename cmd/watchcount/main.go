package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
	"github.com/Sriram-PR/watchcount-scraper/pkg/fetch"
	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/watchcount-scraper/pkg/output"
	"github.com/Sriram-PR/watchcount-scraper/pkg/storage"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
	"github.com/Sriram-PR/watchcount-scraper/pkg/watch"
)

const version = "0.3.0"

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "watchcount",
		Short: "Scrape watchcount.com listing results",
		Long: `watchcount fetches the result pages of a watchcount.com search,
extracts the listings and writes them as JSON, JSONL or YAML.

Examples:
  watchcount scrape --keywords "seiko skx" --pages 3
  watchcount scrape --keywords rolex --mode crawl -o rolex.yaml --format yaml
  watchcount scrape --keywords omega --sample-dir ./saved --pages 2
  watchcount watch --keywords "tudor bb58" --every 6h -o tudor.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newScrapeCmd(), newWatchCmd(), newValidateCmd(), newVersionCmd())
	return root
}

// scrapeOptions holds the scrape command's flag values
type scrapeOptions struct {
	configFile    string
	logLevel      string
	keywords      string
	minPrice      float64
	site          string
	pages         int
	mode          string
	sampleDir     string
	outputPath    string
	format        string
	cacheDir      string
	refreshCache  bool
	respectRobots bool
	stateDir      string
}

func newScrapeCmd() *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch, parse and output the listings for a search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, opts)
		},
	}
	bindScrapeFlags(cmd.Flags(), opts)
	return cmd
}

func newWatchCmd() *cobra.Command {
	opts := &scrapeOptions{}
	var every string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run a search on a schedule, rewriting the output after each run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, every)
		},
	}
	bindScrapeFlags(cmd.Flags(), opts)
	cmd.Flags().StringVar(&every, "every", "1h", "Interval between runs (e.g. 30m, 6h, 1d)")
	cmd.Flags().StringVar(&opts.stateDir, "state-dir", "", "Directory for the watch history (default ./state)")
	return cmd
}

func bindScrapeFlags(flags *pflag.FlagSet, opts *scrapeOptions) {
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to YAML config file (optional)")
	flags.StringVar(&opts.logLevel, "loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	flags.StringVarP(&opts.keywords, "keywords", "k", "", "Search keywords")
	flags.Float64Var(&opts.minPrice, "min-price", config.DefaultMinPrice, "Minimum listing price")
	flags.StringVar(&opts.site, "site", config.DefaultSite, "Marketplace site code")
	flags.IntVarP(&opts.pages, "pages", "n", config.DefaultPages, "Number of result pages")
	flags.StringVarP(&opts.mode, "mode", "m", string(models.FetchModeBatch), "Fetch mode: batch or crawl")
	flags.StringVar(&opts.sampleDir, "sample-dir", "", "Read page1.html..pageN.html from this directory instead of fetching")

	flags.StringVarP(&opts.outputPath, "output", "o", "", "Output file (default: stdout)")
	flags.StringVarP(&opts.format, "format", "f", "json", "Output format: json, jsonl, yaml")

	flags.StringVar(&opts.cacheDir, "cache-dir", "", "Cache fetched pages under this directory")
	flags.BoolVar(&opts.refreshCache, "refresh-cache", false, "Discard any cached pages before fetching")
	flags.BoolVar(&opts.respectRobots, "respect-robots", false, "Check robots.txt before each crawl-mode fetch")
}

func newValidateCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := doValidate(configFile, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return fmt.Errorf("%w: %s", utils.ErrConfigValidation, configFile)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to config file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "watchcount %s\n", version)
		},
	}
}

// newLogger builds the stderr logger shared by every component
func newLogger(levelStr string, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", levelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// loadConfig decodes the YAML file at path on top of config.Default()
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %w", utils.ErrFilesystem, err)
	}

	cfg := config.Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config YAML: %w", utils.ErrParsing, err)
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags over the loaded config
func applyFlags(flags *pflag.FlagSet, opts *scrapeOptions, cfg *config.AppConfig) {
	if flags.Changed("keywords") || cfg.Query.Keywords == "" {
		cfg.Query.Keywords = opts.keywords
	}
	if flags.Changed("min-price") {
		cfg.Query.MinPrice = opts.minPrice
	}
	if flags.Changed("site") {
		cfg.Query.Site = opts.site
	}
	if flags.Changed("pages") {
		cfg.Query.Pages = opts.pages
	}
	if flags.Changed("mode") {
		cfg.Query.Mode = models.FetchMode(opts.mode)
	}
	if flags.Changed("sample-dir") {
		cfg.Query.SampleDir = opts.sampleDir
	}
	if flags.Changed("format") || cfg.OutputFormat == "" {
		cfg.OutputFormat = opts.format
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = opts.cacheDir
	}
	if flags.Changed("respect-robots") {
		cfg.RespectRobots = opts.respectRobots
	}
	if flags.Changed("state-dir") {
		cfg.StateDir = opts.stateDir
	}
}

// prepareConfig loads, overrides and validates the configuration for a scrape or watch
func prepareConfig(cmd *cobra.Command, opts *scrapeOptions, log *logrus.Logger) (*config.AppConfig, error) {
	appCfg := config.Default()
	if opts.configFile != "" {
		log.Infof("Loading configuration from %s", opts.configFile)
		loaded, err := loadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		appCfg = loaded
	}
	applyFlags(cmd.Flags(), opts, appCfg)

	appWarnings, err := appCfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range appWarnings {
		log.Warn(w)
	}
	queryWarnings, err := appCfg.Query.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range queryWarnings {
		log.Warn(w)
	}
	logAppConfig(appCfg, log)
	return appCfg, nil
}

func runScrape(cmd *cobra.Command, opts *scrapeOptions) error {
	log := newLogger(opts.logLevel, cmd.ErrOrStderr())
	appCfg, err := prepareConfig(cmd, opts, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = scrapeOnce(ctx, appCfg, opts, log.WithField("keywords", appCfg.Query.Keywords), cmd.ErrOrStderr())
	return err
}

func runWatch(cmd *cobra.Command, opts *scrapeOptions, every string) error {
	interval, err := watch.ParseInterval(every)
	if err != nil {
		return err
	}

	log := newLogger(opts.logLevel, cmd.ErrOrStderr())
	appCfg, err := prepareConfig(cmd, opts, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logEntry := log.WithField("keywords", appCfg.Query.Keywords)
	run := func(ctx context.Context) (*orchestrate.RunResult, error) {
		defer func() { opts.refreshCache = false }() // Only the first run discards the cache
		return scrapeOnce(ctx, appCfg, opts, logEntry, cmd.ErrOrStderr())
	}
	return watch.NewScheduler(appCfg.StateDir, watch.QueryKey(appCfg.Query), interval, run, logEntry).Run(ctx)
}

// scrapeOnce runs the orchestrator for the configured query and writes its output
func scrapeOnce(ctx context.Context, appCfg *config.AppConfig, opts *scrapeOptions, logEntry *logrus.Entry, summary io.Writer) (*orchestrate.RunResult, error) {
	if appCfg.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, appCfg.GlobalTimeout)
		defer cancel()
	}

	client := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	transport := fetch.NewHTTPTransport(client, appCfg.UserAgent)

	var orchOpts []orchestrate.Option
	if appCfg.CacheDir != "" && appCfg.Query.SampleDir == "" {
		cache, err := storage.NewBadgerPageCache(appCfg.CacheDir, appCfg.Query.Site, appCfg.CacheTTL, opts.refreshCache, logEntry)
		if err != nil {
			return nil, err
		}
		orchOpts = append(orchOpts, orchestrate.WithPageCache(cache))
	}

	result, err := orchestrate.NewOrchestrator(appCfg, transport, logEntry, orchOpts...).Run(ctx)
	if err != nil {
		return nil, err
	}

	listings := result.Listings.Values()
	if err := output.Write(listings, opts.outputPath, appCfg.OutputFormat, logEntry); err != nil {
		return nil, err
	}

	fmt.Fprintf(summary, "Fetched %s listings from %d pages (%s) in %v\n",
		humanize.Comma(int64(len(listings))), result.Pages, humanize.Bytes(uint64(result.Bytes)),
		result.Duration.Round(time.Millisecond))
	return result, nil
}

// logAppConfig logs the effective configuration at debug level
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	q := appCfg.Query
	log.Debugf("Query: Keywords:'%s', MinPrice:%v, Site:%s, Pages:%d, Mode:%s, SampleDir:'%s'",
		q.Keywords, q.MinPrice, q.Site, q.Pages, q.Mode, q.SampleDir)
	log.Debugf("Config: Endpoint:%s, PageSize:%d, UserAgent:'%s', Output:%s",
		appCfg.Endpoint, appCfg.PageSize, appCfg.UserAgent, appCfg.OutputFormat)
	log.Debugf("Config Retries: MaxAttempts:%d, BackoffMultiplier:%v, MinDelay:%v, MaxDelay:%v, DefaultRetryAfter:%v",
		appCfg.MaxAttempts, appCfg.RetryBackoffMultiplier, appCfg.MinRetryDelay, appCfg.MaxRetryDelay, appCfg.DefaultRetryAfter)
	log.Debugf("Config Crawl: Permits:%d, Cooldown:%v, RespectRobots:%t, GlobalTimeout:%v",
		appCfg.CrawlPermits, appCfg.PermitCooldown, appCfg.RespectRobots, appCfg.GlobalTimeout)
	log.Debugf("Config Cache: Dir:'%s', TTL:%v, StateDir:'%s'", appCfg.CacheDir, appCfg.CacheTTL, appCfg.StateDir)
	log.Debugf("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout)
}

// doValidate validates the config file and writes the report to the provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	if appCfg.Query.Keywords == "" {
		fmt.Fprintln(stdout, "NOTE: no query keywords configured; pass --keywords to scrape")
	} else {
		queryWarnings, err := appCfg.Query.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [query] %v\n", err)
			return 1
		}
		for _, w := range queryWarnings {
			fmt.Fprintf(stdout, "WARN: [query] %s\n", w)
		}
		fmt.Fprintf(stdout, "OK: [query] '%s', %d pages, %s mode\n", appCfg.Query.Keywords, appCfg.Query.Pages, appCfg.Query.Mode)
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
