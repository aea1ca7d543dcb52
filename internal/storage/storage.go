package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotExist is returned when no value is stored under a key.
	ErrNotExist = errors.New("storage: key does not exist")
	// ErrExist is returned when a move would overwrite a key.
	ErrExist = errors.New("storage: key already exists")
)

// Store is keyed blob storage for project, scene and asset files.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Exists(key string) (bool, error)
}

// CleanKey normalizes a key and rejects keys that escape the store.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(filepath.ToSlash(key))
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	if path.IsAbs(key) {
		return "", fmt.Errorf("storage: key %q must be relative", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: key %q escapes the store", key)
	}
	return cleaned, nil
}

// Move writes the value of from under to and then deletes from. It refuses
// to overwrite an existing key.
func Move(s Store, from, to string) error {
	src, err := CleanKey(from)
	if err != nil {
		return err
	}
	dst, err := CleanKey(to)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}
	exists, err := s.Exists(dst)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("storage: move %s to %s: %w", src, dst, ErrExist)
	}
	data, err := s.Read(src)
	if err != nil {
		return fmt.Errorf("storage: move %s: %w", src, err)
	}
	if err := s.Write(dst, data); err != nil {
		return fmt.Errorf("storage: move %s to %s: %w", src, dst, err)
	}
	if err := s.Delete(src); err != nil {
		return fmt.Errorf("storage: move %s: %w", src, err)
	}
	return nil
}

// FS stores keys as files below a root directory.
type FS struct {
	root string
}

// NewFS returns a store rooted at dir.
func NewFS(dir string) *FS {
	return &FS{root: dir}
}

// Root returns the backing directory.
func (s *FS) Root() string {
	return s.root
}

// Path maps key to its file path.
func (s *FS) Path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Key maps a file path below the root back to its key.
func (s *FS) Key(file string) (string, error) {
	rel, err := filepath.Rel(s.root, file)
	if err != nil {
		return "", fmt.Errorf("storage: %s: %w", file, err)
	}
	return CleanKey(rel)
}

func (s *FS) Read(key string) ([]byte, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: %s: %w", key, ErrNotExist)
		}
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return data, nil
}

// Write replaces the file for key, writing through a temporary file so a
// crash never leaves a truncated document.
func (s *FS) Write(key string, data []byte) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("storage: ensure dir for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	return nil
}

func (s *FS) Delete(key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: %s: %w", key, ErrNotExist)
		}
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

func (s *FS) Exists(key string) (bool, error) {
	p, err := s.Path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Memory is an in-process store, safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns a store seeded with files.
func NewMemory(files map[string][]byte) *Memory {
	m := &Memory{files: map[string][]byte{}}
	for k, v := range files {
		if key, err := CleanKey(k); err == nil {
			m.files[key] = append([]byte(nil), v...)
		}
	}
	return m
}

func (m *Memory) Read(key string) ([]byte, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[cleaned]
	if !ok {
		return nil, fmt.Errorf("storage: %s: %w", key, ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Write(key string, data []byte) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[cleaned] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Delete(key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[cleaned]; !ok {
		return fmt.Errorf("storage: %s: %w", key, ErrNotExist)
	}
	delete(m.files, cleaned)
	return nil
}

func (m *Memory) Exists(key string) (bool, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[cleaned]
	return ok, nil
}

// Keys lists stored keys, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.files))
	for k := range m.files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
