// Package checkpoint persists crawl progress so an interrupted session
// can resume: the visited set, the pending frontier, and the page
// budget already consumed.
package checkpoint

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// stateVersion guards against decoding checkpoints written by an
// incompatible layout.
const stateVersion = 1

// PendingEntry is one frontier entry in a saved checkpoint.
type PendingEntry struct {
	URL          string    `json:"url"`
	Depth        int       `json:"depth"`
	Priority     float64   `json:"priority"`
	Referer      string    `json:"referer,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// State is a saved crawl state.
type State struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	SeedURL   string    `json:"seed_url"`
	SavedAt   time.Time `json:"saved_at"`

	// Visited URL set
	Visited []string `json:"visited"`

	// Frontier entries, highest priority first
	Pending []PendingEntry `json:"pending"`

	// Page budget already consumed
	PagesVisited int `json:"pages_visited"`
	PagesFailed  int `json:"pages_failed"`

	// Crawl config snapshot
	ConfigJSON string `json:"config_json"`
}

// Completed returns the page slots the saved crawl had consumed.
func (s *State) Completed() int {
	return s.PagesVisited + s.PagesFailed
}

// ToJSON exports the state as JSON, for inspection.
func (s *State) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Info describes one checkpoint file on disk.
type Info struct {
	ID        string
	Size      int64
	CreatedAt time.Time
}

// ManagerConfig defines checkpoint manager configuration.
type ManagerConfig struct {
	BaseDir     string
	MaxKeep     int  // Checkpoints retained per directory
	Compression bool // Use gzip compression
}

// DefaultManagerConfig returns default configuration.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		BaseDir:     ".prowl_checkpoints",
		MaxKeep:     5,
		Compression: true,
	}
}

// Manager writes and restores checkpoint files.
type Manager struct {
	mu sync.Mutex

	baseDir     string
	maxKeep     int
	compression bool

	lastSave time.Time
}

// NewManager creates a checkpoint manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultManagerConfig()
	}

	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Manager{
		baseDir:     cfg.BaseDir,
		maxKeep:     cfg.MaxKeep,
		compression: cfg.Compression,
	}, nil
}

// Save writes a checkpoint and returns its ID.
func (m *Manager) Save(state *State) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state.Version = stateVersion
	state.SavedAt = time.Now()

	id := fmt.Sprintf("checkpoint_%d", state.SavedAt.UnixNano())
	if err := m.writeFile(state, m.path(id)); err != nil {
		return "", err
	}

	m.lastSave = state.SavedAt
	m.pruneOld()
	return id, nil
}

func (m *Manager) path(id string) string {
	name := id + ".checkpoint"
	if m.compression {
		name += ".gz"
	}
	return filepath.Join(m.baseDir, name)
}

func (m *Manager) writeFile(state *State, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file
	if m.compression {
		gz := gzip.NewWriter(file)
		defer gz.Close()
		writer = gz
	}

	if err := gob.NewEncoder(writer).Encode(state); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint by ID.
func (m *Manager) Load(id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readFile(m.path(id))
}

func (m *Manager) readFile(filename string) (*State, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if filepath.Ext(filename) == ".gz" {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	var state State
	if err := gob.NewDecoder(reader).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if state.Version != stateVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", state.Version)
	}
	return &state, nil
}

// LoadLatest reads the most recent checkpoint in the directory.
func (m *Manager) LoadLatest() (*State, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no checkpoints found")
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return m.Load(infos[0].ID)
}

// List returns all checkpoints in the directory.
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var infos []*Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id, ok := checkpointID(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}

		infos = append(infos, &Info{
			ID:        id,
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}
	return infos, nil
}

// checkpointID strips the checkpoint extensions from a file name.
func checkpointID(name string) (string, bool) {
	if filepath.Ext(name) == ".gz" {
		name = name[:len(name)-len(".gz")]
	}
	if filepath.Ext(name) != ".checkpoint" {
		return "", false
	}
	return name[:len(name)-len(".checkpoint")], true
}

// pruneOld removes the oldest checkpoints beyond the retention limit.
func (m *Manager) pruneOld() {
	if m.maxKeep <= 0 {
		return
	}

	infos, err := m.List()
	if err != nil || len(infos) <= m.maxKeep {
		return
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	for _, info := range infos[:len(infos)-m.maxKeep] {
		os.Remove(m.path(info.ID))
	}
}

// Delete removes a checkpoint.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return os.Remove(m.path(id))
}

// Clear removes all checkpoints in the directory.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, ok := checkpointID(entry.Name()); ok {
			os.Remove(filepath.Join(m.baseDir, entry.Name()))
		}
	}
	return nil
}

// LastSave returns the time of the last successful save.
func (m *Manager) LastSave() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSave
}
