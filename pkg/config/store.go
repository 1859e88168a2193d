package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PathEnv overrides the default config file location.
const PathEnv = "BROWSERKIT_CONFIG"

const fileVersion = "1"

// Store persists section data.
type Store interface {
	Load() error
	Save() error
	GetSection(sectionID string) (map[string]any, error)
	SetSection(sectionID string, data map[string]any) error
	GetAll() (map[string]map[string]any, error)
	SetAll(data map[string]map[string]any) error
}

// document is the on-disk layout of a FileStore.
type document struct {
	Version  string                    `json:"version"`
	Sections map[string]map[string]any `json:"sections"`
}

// FileStore is a Store backed by a JSON file. Writes go through a temp
// file and a rename so a crash never leaves a truncated config.
type FileStore struct {
	path     string
	sections map[string]map[string]any
	modified bool
	mu       sync.RWMutex
}

// DefaultPath returns $BROWSERKIT_CONFIG or ~/.browserkit/config.json.
func DefaultPath() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".browserkit", "config.json"), nil
}

// NewFileStore opens the store at path, or at DefaultPath when path is
// empty. A missing file is an empty config.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &FileStore{path: path, sections: make(map[string]map[string]any)}
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return s, nil
}

// Load replaces the in-memory data with the file contents.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.sections = make(map[string]map[string]any)
		s.modified = false
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	if doc.Sections == nil {
		doc.Sections = make(map[string]map[string]any)
	}
	s.sections = doc.Sections
	s.modified = false
	return nil
}

// Save writes the in-memory data to the file.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	raw, err := json.MarshalIndent(document{Version: fileVersion, Sections: s.sections}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	s.modified = false
	return nil
}

// GetSection returns a copy of a section's data, empty if absent.
func (s *FileStore) GetSection(sectionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSection(s.sections[sectionID]), nil
}

func (s *FileStore) SetSection(sectionID string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[sectionID] = cloneSection(data)
	s.modified = true
	return nil
}

func (s *FileStore) GetAll() (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string]map[string]any, len(s.sections))
	for id, data := range s.sections {
		all[id] = cloneSection(data)
	}
	return all, nil
}

func (s *FileStore) SetAll(data map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sections = make(map[string]map[string]any, len(data))
	for id, section := range data {
		s.sections[id] = cloneSection(section)
	}
	s.modified = true
	return nil
}

// IsModified reports unsaved changes.
func (s *FileStore) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Path returns the file path.
func (s *FileStore) Path() string {
	return s.path
}

func cloneSection(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
