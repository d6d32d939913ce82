package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// State is the client-held auth state: everything needed to call resource
// APIs and keep the session alive across restarts. It never contains the
// refresh token.
type State struct {
	AccessToken     string `json:"accessToken"`
	TokenExpiration int64  `json:"tokenExpiration"` // epoch ms
	SessionID       string `json:"sessionId"`
	Hostname        string `json:"hostname"`
	Port            int    `json:"port"`
}

// Storage persists State durably so a restart does not force re-login.
// Load returns (nil, nil) when no state is stored.
type Storage interface {
	Load() (*State, error)
	Save(*State) error
	Clear() error
}

// MemoryStorage keeps state in memory. Used in tests and for callers that
// manage persistence themselves.
type MemoryStorage struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	copied := *m.state
	return &copied, nil
}

func (m *MemoryStorage) Save(s *State) error {
	if s == nil {
		return errors.New("client: cannot save nil state")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.state = &copied
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

// FileStorage persists state as a JSON file with owner-only permissions.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage creates a storage backed by the given path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Load() (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client: failed to read state file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("client: failed to parse state file: %w", err)
	}
	return &s, nil
}

func (f *FileStorage) Save(s *State) error {
	if s == nil {
		return errors.New("client: cannot save nil state")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("client: failed to marshal state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("client: failed to write state file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStorage) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
