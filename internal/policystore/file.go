package policystore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/example/portal-scheduler/internal/scheduler"
)

// FileStore keeps the policy in a YAML file.
//
// A missing file means no policy was saved yet and loads as the default.
// Saves write a temporary file in the same directory and rename it over the
// target, so readers never observe a partial document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadPolicy reads and decodes the policy file.
func (s *FileStore) LoadPolicy(ctx context.Context) (scheduler.Policy, error) {
	if s.path == "" {
		return scheduler.Policy{}, errors.New("policystore: file path is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return scheduler.DefaultPolicy(), nil
		}
		return scheduler.Policy{}, fmt.Errorf("policystore: read %s: %w", s.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return scheduler.Policy{}, fmt.Errorf("policystore: decode %s: %w", s.path, err)
	}
	return doc.Policy()
}

// SavePolicy encodes the policy and atomically replaces the file with 0600 permissions.
func (s *FileStore) SavePolicy(ctx context.Context, policy scheduler.Policy) error {
	if s.path == "" {
		return errors.New("policystore: file path is empty")
	}

	data, err := yaml.Marshal(FromPolicy(policy))
	if err != nil {
		return fmt.Errorf("policystore: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("policystore: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".policy-*.tmp")
	if err != nil {
		return fmt.Errorf("policystore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("policystore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("policystore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("policystore: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("policystore: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("policystore: replace %s: %w", s.path, err)
	}
	return nil
}
