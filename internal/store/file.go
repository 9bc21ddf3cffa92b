package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File keeps one <key>.json file per key under a directory. Writes go to a
// temp file that is renamed over the target, so readers never see a partial
// document. Two processes sharing a directory still overwrite each other.
type File struct {
	mu  sync.Mutex
	dir string
}

var _ Store = (*File)(nil)

// NewFile creates the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if key != filepath.Base(key) {
		return "", fmt.Errorf("store: invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *File) Get(key string) ([]byte, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, true, nil
}

func (f *File) Set(key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (f *File) Delete(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
