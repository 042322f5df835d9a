// Package credential keeps secrets such as the preference database password
// in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

// DBPasswordKey is the keyring entry holding the preference database password.
const DBPasswordKey = "db-password"

// ErrNotFound is returned when the keyring has no entry for a key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes secrets for one service.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store over the first available system keyring backend for
// serviceName, falling back to an encrypted file under fileDir.
func Open(serviceName, fileDir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// OpenFile returns a Store backed only by an encrypted file in dir.
func OpenFile(dir, password string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open file keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

func (s *Store) Set(key, value string) error {
	if err := s.ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("failed to set credential %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete credential %q: %w", key, err)
	}
	return nil
}
