package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/watchcount-scraper/pkg/log"
	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

func sampleListings() []models.Listing {
	return []models.Listing{
		{
			ID:         "1001",
			Title:      "Seiko SKX007 <Diver>",
			URL:        "https://www.ebay.co.uk/itm/1001?a=1&b=2",
			Price:      "£145.00",
			WatchCount: "12 watchers",
			ImageURL:   "https://i.ebayimg.com/images/1001.jpg",
		},
		{
			ID:       "1004",
			Title:    "Tissot PRX",
			URL:      "https://www.ebay.co.uk/itm/1004",
			Price:    "£325.00",
			ImageURL: "https://i.ebayimg.com/images/1004.jpg",
		},
	}
}

func TestEncode_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleListings(), FormatJSON))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[\n  {\n    \"id\": \"1001\""), "2-space indented array, got:\n%s", out)
	assert.Contains(t, out, `"watch_count": ""`, "missing watch count is emitted as empty")
	assert.Contains(t, out, "<Diver>", "HTML is not escaped")
	assert.Contains(t, out, "a=1&b=2")

	var decoded []models.Listing
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleListings(), decoded)
}

func TestEncode_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil, FormatJSON))
	assert.Equal(t, "[]\n", buf.String())
}

func TestEncode_JSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleListings(), FormatJSONL))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var l models.Listing
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &l))
	assert.Equal(t, "1004", l.ID)
}

func TestEncode_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleListings(), FormatYAML))
	assert.Contains(t, buf.String(), "- id: \"1001\"")

	var decoded []models.Listing
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleListings(), decoded)
}

func TestEncode_UnknownFormat(t *testing.T) {
	err := Encode(&bytes.Buffer{}, sampleListings(), "csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestWrite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "listings.json")
	require.NoError(t, Write(sampleListings(), path, FormatJSON, log.NewDiscardLogger()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []models.Listing
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWrite_FailedEncodeLeavesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	err := Write(sampleListings(), path, "csv", log.NewDiscardLogger())
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "previous", string(data))
}
