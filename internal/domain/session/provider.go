// internal/domain/session/provider.go
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNoSession is returned by Storage.Load when nothing has been saved yet
var ErrNoSession = errors.New("no session stored")

// Storage is durable client-side storage for the session identifier
type Storage interface {
	Load() (string, error)
	Save(sessionID string) error
}

// Provider issues a stable anonymous session identifier
type Provider struct {
	storage Storage
	newID   func() string
}

// NewProvider creates a provider backed by storage. A nil storage means there
// is no client context and GetOrCreateSessionID returns "".
func NewProvider(storage Storage) *Provider {
	return &Provider{
		storage: storage,
		newID:   func() string { return uuid.New().String() },
	}
}

// GetOrCreateSessionID returns the stored identifier, creating and persisting
// one on first use. If the storage cannot be read or written a fresh id is
// returned on every call.
func (p *Provider) GetOrCreateSessionID() string {
	if p.storage == nil {
		return ""
	}

	if id, err := p.storage.Load(); err == nil && id != "" {
		return id
	}

	id := p.newID()
	_ = p.storage.Save(id)
	return id
}

// FileStorage keeps the session identifier in a file
type FileStorage struct {
	path string
}

// NewFileStorage stores the identifier at path
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load implements Storage
func (f *FileStorage) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// Save implements Storage
func (f *FileStorage) Save(sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(sessionID+"\n"), 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// MemoryStorage keeps the identifier for the life of the process
type MemoryStorage struct {
	mu sync.Mutex
	id string
}

// Load implements Storage
func (m *MemoryStorage) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		return "", ErrNoSession
	}
	return m.id, nil
}

// Save implements Storage
func (m *MemoryStorage) Save(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = sessionID
	return nil
}
