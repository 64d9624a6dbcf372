package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/julianstephens/studyplanner/internal/keyring"
)

// KeyringSlot stores the identity in the OS keyring.
type KeyringSlot struct {
	Key string
}

func (s KeyringSlot) Get() (string, error) {
	v, err := keyring.Get(s.Key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (s KeyringSlot) Set(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmpty
	}
	return keyring.Set(s.Key, value)
}

// FileSlot stores the identity as a single line in a private file.
type FileSlot struct {
	Path string
}

func (s FileSlot) Get() (string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (s FileSlot) Set(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmpty
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("failed to replace identity file: %w", err)
	}
	return nil
}

// MemorySlot is an in-process slot for tests and ephemeral sessions.
type MemorySlot struct {
	mu    sync.Mutex
	Value string
}

func (s *MemorySlot) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Value == "" {
		return "", ErrNotFound
	}
	return s.Value, nil
}

func (s *MemorySlot) Set(value string) error {
	if strings.TrimSpace(value) == "" {
		return ErrEmpty
	}
	s.mu.Lock()
	s.Value = value
	s.mu.Unlock()
	return nil
}
