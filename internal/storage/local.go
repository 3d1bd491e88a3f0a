package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harmonialab/harmonia/internal/model"
)

// LocalStore keeps payloads under a base directory and returns file:// URLs.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	return &LocalStore{baseDir: abs}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("store audio: %w", err)
	}
	return "file://" + path, nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("audio %s: %w", key, model.ErrNotFoundOrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete audio: %w", err)
	}
	return nil
}
