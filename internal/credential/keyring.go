package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "taskzen"

	// sessionKey is the keyring entry holding the API session token.
	sessionKey = "session-token"
)

// ErrNotFound is returned when no token has been stored.
var ErrNotFound = errors.New("credential not found")

// TokenStore persists the session token between runs.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
}

// KeyringStore keeps the token in the operating system keyring.
type KeyringStore struct {
	open func() (keyring.Keyring, error)
}

// NewKeyringStore returns a store backed by the system keyring.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{open: openKeyring}
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/taskzen/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("taskzen-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves the stored session token.
func (s *KeyringStore) Get() (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(sessionKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting credential %q: %w", sessionKey, err)
	}

	return string(item.Data), nil
}

// Set stores the session token.
func (s *KeyringStore) Set(token string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   sessionKey,
		Data:  []byte(token),
		Label: "TaskZen session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", sessionKey, err)
	}

	return nil
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (s *KeyringStore) Delete() error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	if err := ring.Remove(sessionKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", sessionKey, err)
	}

	return nil
}

// MemoryStore keeps the token in memory only.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrNotFound
	}
	return s.token, nil
}

func (s *MemoryStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
