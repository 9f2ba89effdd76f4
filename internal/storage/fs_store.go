package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FSStore is a filesystem-backed ObjectStore. Keys map directly to paths
// under the base directory, so the stage layout on disk mirrors the
// bucket layout in production. Writes are temp-file + rename so a
// watcher never observes a half-written object.
type FSStore struct {
	basePath string
	mu       sync.RWMutex

	// notify, when set, is called after each successful Put/Copy with
	// the new key. The daemon wires this to the event bus.
	notify func(key string)
}

// NewFSStore creates a filesystem object store rooted at basePath.
func NewFSStore(basePath string) (*FSStore, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", basePath, err)
	}
	return &FSStore{basePath: basePath}, nil
}

// OnPut registers the object-created callback. Must be set before any
// writers run.
func (s *FSStore) OnPut(fn func(key string)) { s.notify = fn }

// Put stores an object at key.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	err := s.writeLocked(key, data)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.notify != nil {
		s.notify(key)
	}
	return nil
}

func (s *FSStore) writeLocked(key string, data []byte) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit object %s: %w", key, err)
	}
	return nil
}

// Get retrieves an object by key.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is rooted under basePath by objectPath
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Copy duplicates src to dst.
func (s *FSStore) Copy(ctx context.Context, src, dst string) error {
	s.mu.Lock()
	data, err := s.readLocked(src)
	if err == nil {
		err = s.writeLocked(dst, data)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.notify != nil {
		s.notify(dst)
	}
	return nil
}

func (s *FSStore) readLocked(key string) ([]byte, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is rooted under basePath by objectPath
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete removes an object by key.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	// Prune now-empty parents up to the store root. Best effort.
	for dir := filepath.Dir(path); dir != s.basePath; dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// List returns all keys under prefix, sorted.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := filepath.Join(s.basePath, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list prefix %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists checks if an object exists.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

// Close releases resources.
func (s *FSStore) Close() error { return nil }

// objectPath maps a key to a filesystem path, rejecting traversal.
func (s *FSStore) objectPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}
