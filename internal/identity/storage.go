package identity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// MapStorage keeps values in memory, the equivalent of one browser tab's
// session storage.
type MapStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMapStorage() *MapStorage {
	return &MapStorage{values: make(map[string]string)}
}

func (m *MapStorage) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok
}

func (m *MapStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MapStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileStorage keeps values in a small JSON file, one file per terminal
// session, so the CLI survives restarts the way a tab survives reloads.
type FileStorage struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

func OpenFileStorage(path string) (*FileStorage, error) {
	f := &FileStorage{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	return value, ok
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.saveLocked()
}

func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return f.saveLocked()
}

func (f *FileStorage) saveLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
