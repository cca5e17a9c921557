package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type fileStore struct {
	root string
}

// NewFileStore creates a Store backed by the filesystem. Each key maps to
// one file under root. Writes go through a temp file and rename so a crashed
// write never leaves a torn value behind.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.root, key+".json")
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
	}
	return data, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte) error {
	path := s.path(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
	}

	return nil
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete failed: %s: %w", key, err)
	}
	return nil
}
