// Package identity owns the sync identifier: the opaque token that selects
// which partition of the shared collections this device reads and writes.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/julianstephens/studyplanner/internal/logger"
)

var (
	// ErrNotFound is returned by a Slot holding no identifier.
	ErrNotFound = errors.New("no sync identity stored")
	// ErrEmpty rejects blank identifiers.
	ErrEmpty = errors.New("sync identity cannot be empty")
)

// Slot is a single persistent value surviving process restarts.
type Slot interface {
	Get() (string, error)
	Set(value string) error
}

// Manager loads, generates and replaces the active sync identity.
type Manager struct {
	slot Slot
	gen  func() string

	mu      sync.RWMutex
	current string
	watch   []chan string
}

// NewManager creates a manager over slot. Nothing is read until Load.
func NewManager(slot Slot) *Manager {
	return &Manager{slot: slot, gen: uuid.NewString}
}

// Load returns the persisted identifier, generating and persisting a fresh
// one when the slot is empty.
func (m *Manager) Load() (string, error) {
	id, err := m.slot.Get()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("failed to read sync identity: %w", err)
	}
	id = strings.TrimSpace(id)

	if id == "" {
		id = m.gen()
		if err := m.slot.Set(id); err != nil {
			return "", fmt.Errorf("failed to persist sync identity: %w", err)
		}
		logger.Info("Generated new sync identity")
	}

	m.mu.Lock()
	m.current = id
	m.mu.Unlock()
	return id, nil
}

// Current returns the identity from the last Load or Adopt.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Adopt persists candidate as the active identity and notifies watchers.
// Blank input is a no-op and reports false. Adopting the active identity
// persists it again but does not notify.
func (m *Manager) Adopt(candidate string) (bool, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false, nil
	}

	if err := m.slot.Set(candidate); err != nil {
		return false, fmt.Errorf("failed to persist sync identity: %w", err)
	}

	m.mu.Lock()
	changed := candidate != m.current
	m.current = candidate
	watchers := append([]chan string(nil), m.watch...)
	m.mu.Unlock()

	if !changed {
		return true, nil
	}
	logger.Info("Adopted sync identity")
	for _, ch := range watchers {
		// Latest wins.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- candidate:
		default:
		}
	}
	return true, nil
}

// Changes returns a channel receiving each newly adopted identity. A slow
// reader only sees the most recent one.
func (m *Manager) Changes() <-chan string {
	ch := make(chan string, 1)
	m.mu.Lock()
	m.watch = append(m.watch, ch)
	m.mu.Unlock()
	return ch
}
