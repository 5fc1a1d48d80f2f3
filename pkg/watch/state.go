package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sriram-PR/watchcount-scraper/pkg/config"
	"github.com/Sriram-PR/watchcount-scraper/pkg/utils"
)

const stateFileName = "watch_state.json"

// QueryState is the outcome of the last run of one query
type QueryState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	Pages          int       `json:"pages"`
	Listings       int       `json:"listings"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// State is the persisted watch history, keyed by QueryKey
type State struct {
	Queries   map[string]QueryState `json:"queries"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// QueryKey identifies a query across runs. Queries differing only in page count or mode share a key.
func QueryKey(q config.QueryConfig) string {
	return fmt.Sprintf("%s|%s|%s",
		q.Site,
		strings.ToLower(strings.Join(strings.Fields(q.Keywords), " ")),
		strconv.FormatFloat(q.MinPrice, 'f', -1, 64))
}

// StateManager loads and saves State under a directory
type StateManager struct {
	stateDir  string
	statePath string
	state     State
	mu        sync.RWMutex
}

// NewStateManager creates a manager for the state file in stateDir; call Load before use
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     State{Queries: make(map[string]QueryState)},
	}
}

// Load reads the state file. A missing file is an empty history.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = State{Queries: make(map[string]QueryState)}
			return nil
		}
		return fmt.Errorf("%w: reading watch state '%s': %w", utils.ErrFilesystem, m.statePath, err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("%w: parsing watch state '%s': %w", utils.ErrParsing, m.statePath, err)
	}
	if loaded.Queries == nil {
		loaded.Queries = make(map[string]QueryState)
	}
	m.state = loaded
	return nil
}

// Save writes the state file, replacing it atomically
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("%w: creating state directory '%s': %w", utils.ErrFilesystem, m.stateDir, err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding watch state: %w", utils.ErrParsing, err)
	}

	tmpPath := m.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("%w: writing watch state: %w", utils.ErrFilesystem, err)
	}
	if err := os.Rename(tmpPath, m.statePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing watch state: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// Get returns the last recorded outcome for key
func (m *StateManager) Get(key string) (QueryState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Queries[key]
	return st, ok
}

// Record stores the outcome of a run finished now
func (m *StateManager) Record(key string, success bool, pages, listings int, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Queries[key] = QueryState{
		LastRunTime:    time.Now(),
		LastRunSuccess: success,
		Pages:          pages,
		Listings:       listings,
		ErrorMessage:   errorMsg,
	}
}

// NextRunTime is the last run plus interval, or now for a query that never ran
func (m *StateManager) NextRunTime(key string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.state.Queries[key]
	if !ok {
		return time.Now()
	}
	return st.LastRunTime.Add(interval)
}

// ShouldRun reports whether the query never ran or at least interval has passed since its last run
func (m *StateManager) ShouldRun(key string, interval time.Duration) bool {
	st, ok := m.Get(key)
	if !ok {
		return true
	}
	return time.Since(st.LastRunTime) >= interval
}
