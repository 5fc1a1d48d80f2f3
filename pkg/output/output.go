package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/watchcount-scraper/pkg/models"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

// Supported output formats
const (
	FormatJSON  = "json"  // Single JSON array, 2-space indent
	FormatJSONL = "jsonl" // One JSON object per line
	FormatYAML  = "yaml"
)

// Encode writes listings to w in format
func Encode(w io.Writer, listings []models.Listing, format string) error {
	if listings == nil {
		listings = []models.Listing{} // "[]" rather than "null"
	}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(listings); err != nil {
			return fmt.Errorf("%w: encoding listings as JSON: %w", utils.ErrParsing, err)
		}
	case FormatJSONL:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, l := range listings {
			if err := enc.Encode(l); err != nil {
				return fmt.Errorf("%w: encoding listing %s as JSON: %w", utils.ErrParsing, l.ID, err)
			}
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(listings); err != nil {
			return fmt.Errorf("%w: encoding listings as YAML: %w", utils.ErrParsing, err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("%w: flushing YAML output: %w", utils.ErrParsing, err)
		}
	default:
		return fmt.Errorf("%w: unknown output format '%s'", utils.ErrConfigValidation, format)
	}
	return nil
}

// Write encodes listings to path, or to stdout when path is empty or "-".
// The file is written in full or not at all: output goes to a temp file that is renamed into place.
func Write(listings []models.Listing, path, format string, log *logrus.Entry) error {
	if path == "" || path == "-" {
		w := bufio.NewWriter(os.Stdout)
		if err := Encode(w, listings, format); err != nil {
			return err
		}
		return w.Flush()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating output directory '%s': %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp output file in '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // No-op once renamed

	w := bufio.NewWriter(tmp)
	if err := Encode(w, listings, format); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing output file '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing output file '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("%w: setting permissions on '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: moving output into place at '%s': %w", utils.ErrFilesystem, path, err)
	}

	log.WithFields(logrus.Fields{"path": path, "format": format, "listings": len(listings)}).Info("Output written")
	return nil
}
