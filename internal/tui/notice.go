package tui

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// NoticeStore persists whether the onboarding notice was dismissed.
type NoticeStore interface {
	Dismissed() (bool, error)
	Dismiss() error
}

// FileNoticeStore records dismissal as the existence of a marker file.
type FileNoticeStore struct {
	path string
}

// NewFileNoticeStore returns a store backed by path. An empty path yields a
// store that never persists, so the notice is shown on every start.
func NewFileNoticeStore(path string) *FileNoticeStore {
	return &FileNoticeStore{path: path}
}

func (s *FileNoticeStore) Dismissed() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat notice marker: %w", err)
	}
	return true, nil
}

func (s *FileNoticeStore) Dismiss() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create notice dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte("true\n"), 0o644); err != nil {
		return fmt.Errorf("write notice marker: %w", err)
	}
	return nil
}

// MemoryNoticeStore keeps dismissal for the lifetime of the process.
type MemoryNoticeStore struct {
	mu        sync.Mutex
	dismissed bool
}

func (s *MemoryNoticeStore) Dismissed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dismissed, nil
}

func (s *MemoryNoticeStore) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed = true
	return nil
}
