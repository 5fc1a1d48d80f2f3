package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

const testPage = `<html><body>
<div class="resultRow">
  <div class="resultTitle"><a href="https://www.ebay.co.uk/itm/9001">Seiko 5 Sports</a></div>
  <span class="resultPrice">£189.00</span>
  <span class="resultWatch">8 watchers</span>
  <img src="https://i.ebayimg.com/images/9001.jpg">
</div>
<div class="resultRow">
  <div class="resultTitle"><a href="https://www.ebay.co.uk/itm/9002">Seiko Presage</a></div>
  <span class="resultPrice">£310.00</span>
  <img src="https://i.ebayimg.com/images/9002.jpg">
</div>
</body></html>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	content := `
endpoint: "http://localhost:9999/"
max_attempts: 3
retry_backoff_multiplier: 2s
permit_cooldown: 30s
cache_dir: "./cache"
query:
  keywords: "omega speedmaster"
  mode: crawl
`
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", content)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999/", cfg.Endpoint)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoffMultiplier)
	assert.Equal(t, 30*time.Second, cfg.PermitCooldown)
	assert.Equal(t, "omega speedmaster", cfg.Query.Keywords)
	assert.Equal(t, models.FetchModeCrawl, cfg.Query.Mode)

	// Keys missing from the file keep their defaults
	assert.Equal(t, float64(config.DefaultMinPrice), cfg.Query.MinPrice)
	assert.Equal(t, config.DefaultSite, cfg.Query.Site)
	assert.Equal(t, config.DefaultPages, cfg.Query.Pages)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/config.yaml")

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrFilesystem)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "bad.yaml", "{{invalid yaml")

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrParsing)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantCode   int
		wantStdout []string
		wantStderr string
	}{
		{
			name:       "valid query",
			content:    "query:\n  keywords: rolex\n  pages: 2\n",
			wantCode:   0,
			wantStdout: []string{"OK: [query] 'rolex', 2 pages, batch mode", "Configuration valid."},
		},
		{
			name:       "no keywords",
			content:    "max_attempts: 4\n",
			wantCode:   0,
			wantStdout: []string{"NOTE: no query keywords configured", "Configuration valid."},
		},
		{
			name:       "warnings",
			content:    "output_format: csv\nquery:\n  keywords: rolex\n  site: \"\"\n",
			wantCode:   0,
			wantStdout: []string{"WARN: output_format 'csv' unknown", "WARN: [query] site is empty"},
		},
		{
			name:       "zero pages",
			content:    "query:\n  keywords: rolex\n  pages: 0\n",
			wantCode:   1,
			wantStderr: "ERROR: [query]",
		},
		{
			name:       "unknown mode",
			content:    "query:\n  keywords: rolex\n  mode: turbo\n",
			wantCode:   1,
			wantStderr: "turbo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeFile(t, t.TempDir(), "config.yaml", tt.content)
			var stdout, stderr bytes.Buffer

			code := doValidate(cfgPath, &stdout, &stderr)

			assert.Equal(t, tt.wantCode, code, "stdout: %s\nstderr: %s", stdout.String(), stderr.String())
			for _, want := range tt.wantStdout {
				assert.Contains(t, stdout.String(), want)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doValidate("/nonexistent/config.yaml", &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "watchcount "+version+"\n", stdout.String())
}

func TestScrapeCommand_SampleDir(t *testing.T) {
	sampleDir := t.TempDir()
	writeFile(t, sampleDir, "page1.html", testPage)
	outPath := filepath.Join(t.TempDir(), "listings.json")

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"scrape",
		"--keywords", "seiko",
		"--sample-dir", sampleDir,
		"--pages", "1",
		"--output", outPath,
		"--loglevel", "error",
	})

	require.NoError(t, root.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var listings []models.Listing
	require.NoError(t, json.Unmarshal(data, &listings))
	require.Len(t, listings, 2)
	assert.Equal(t, "9001", listings[0].ID)
	assert.Equal(t, "", listings[1].WatchCount)
	assert.Contains(t, stderr.String(), "Fetched 2 listings from 1 pages")
}

func TestScrapeCommand_FetchesFromEndpoint(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		w.Write([]byte(testPage))
	}))
	t.Cleanup(server.Close)

	tmp := t.TempDir()
	cfgPath := writeFile(t, tmp, "config.yaml", "endpoint: "+server.URL+"\n")
	outPath := filepath.Join(tmp, "listings.yaml")

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"scrape",
		"--config", cfgPath,
		"--keywords", "seiko 5",
		"--min-price", "20",
		"--pages", "1",
		"--format", "yaml",
		"--output", outPath,
		"--loglevel", "error",
	})

	require.NoError(t, root.Execute())
	assert.Equal(t, "minPrice=20.0&offset=0&site=EBAY_GB", gotQuery.Load())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id: \"9001\"")
}

func TestScrapeCommand_FailureWritesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	tmp := t.TempDir()
	cfgPath := writeFile(t, tmp, "config.yaml", "endpoint: "+server.URL+"\n")
	outPath := filepath.Join(tmp, "listings.json")

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"scrape", "--config", cfgPath, "--keywords", "seiko", "--pages", "2", "--output", outPath, "--loglevel", "fatal"})

	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrClientHTTPError)
	assert.NoFileExists(t, outPath)
}

func TestScrapeCommand_MissingKeywords(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"scrape", "--loglevel", "error"})

	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestWatchCommand_RunsAndRecordsState(t *testing.T) {
	sampleDir := t.TempDir()
	writeFile(t, sampleDir, "page1.html", testPage)
	tmp := t.TempDir()
	outPath := filepath.Join(tmp, "listings.json")
	stateDir := filepath.Join(tmp, "state")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"watch",
		"--keywords", "seiko",
		"--sample-dir", sampleDir,
		"--pages", "1",
		"--every", "1h",
		"--state-dir", stateDir,
		"--output", outPath,
		"--loglevel", "error",
	})

	require.NoError(t, root.ExecuteContext(ctx))

	assert.FileExists(t, outPath)
	assert.FileExists(t, filepath.Join(stateDir, "watch_state.json"))
	assert.Equal(t, 1, strings.Count(stderr.String(), "Fetched 2 listings"), "one run within the interval")
}

func TestWatchCommand_InvalidInterval(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs([]string{"watch", "--keywords", "seiko", "--every", "often"})

	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
