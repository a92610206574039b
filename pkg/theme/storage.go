package theme

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type fileState struct {
	Theme Preference `yaml:"theme"`
}

// FileStorage keeps the preference in a small YAML file ("theme: dark").
type FileStorage struct {
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) Load() (Preference, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return "", false, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if !state.Theme.Valid() {
		return "", false, nil
	}
	return state.Theme, true, nil
}

func (s *FileStorage) Save(p Preference) error {
	data, err := yaml.Marshal(fileState{Theme: p})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// MemoryStorage is a Storage for tests and headless clients.
type MemoryStorage struct {
	mu   sync.Mutex
	pref Preference
	set  bool
	err  error
}

func (m *MemoryStorage) Load() (Preference, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pref, m.set, nil
}

func (m *MemoryStorage) Save(p Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pref, m.set = p, true
	return nil
}

// FailWith makes every later Save return err.
func (m *MemoryStorage) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
