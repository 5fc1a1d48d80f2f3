package models

import (
	"fmt"
	"strings"
)

// FetchMode selects how the orchestrator schedules page fetches
type FetchMode string

const (
	FetchModeUnset FetchMode = ""      // Zero value = unset
	FetchModeBatch FetchMode = "batch" // All pages concurrently, no permit pool
	FetchModeCrawl FetchMode = "crawl" // Sequential, governed by the rate governor
)

// String implements fmt.Stringer for logging
func (m FetchMode) String() string {
	if m == "" {
		return "unset"
	}
	return string(m)
}

// IsValid returns true if the mode is a known value
func (m FetchMode) IsValid() bool {
	switch m {
	case FetchModeBatch, FetchModeCrawl:
		return true
	}
	return false
}

// ParseFetchMode converts user input (case-insensitive) into a FetchMode
func ParseFetchMode(s string) (FetchMode, error) {
	m := FetchMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return FetchModeUnset, fmt.Errorf("unknown fetch mode %q (want batch or crawl)", s)
	}
	return m, nil
}
