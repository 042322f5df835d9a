package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vdavid/vmail/desktop/internal/models"
)

var (
	// ErrNotInitialized is returned by every operation before Init.
	ErrNotInitialized = errors.New("preferences are not loaded, call Init first")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("preferences are already loaded")
	// ErrInvalidValue is returned for values outside a preference's allowed set.
	ErrInvalidValue = errors.New("invalid preference value")
)

// Persister reads and writes the durable preference record.
type Persister interface {
	LoadPreferences(ctx context.Context) (models.Preferences, error)
	SavePreferences(ctx context.Context, prefs models.Preferences) error
}

// Store holds the process-wide preference record. Reads always reflect the
// changes applied so far, not the ones still queued.
type Store struct {
	mu    sync.RWMutex
	prefs *models.Preferences
}

func NewStore() *Store {
	return &Store{}
}

// Init loads prefs into the store. It can only be called once.
func (s *Store) Init(prefs models.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs != nil {
		return ErrAlreadyInitialized
	}
	p := prefs.Clone()
	s.prefs = &p
	return nil
}

// Load reads the record from persister and initializes the store with it.
func (s *Store) Load(ctx context.Context, persister Persister) error {
	prefs, err := persister.LoadPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	return s.Init(prefs)
}

func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs != nil
}

// Get returns a copy of the current record.
func (s *Store) Get() (models.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.prefs == nil {
		return models.Preferences{}, ErrNotInitialized
	}
	return s.prefs.Clone(), nil
}

// Update mutates the record in place under the store lock.
func (s *Store) Update(fn func(prefs *models.Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs == nil {
		return ErrNotInitialized
	}
	fn(s.prefs)
	return nil
}

func (s *Store) Theme() (models.Theme, error) {
	p, err := s.Get()
	return p.Theme, err
}

func (s *Store) Language() (models.Language, error) {
	p, err := s.Get()
	return p.Language, err
}

func (s *Store) MailboxLength() (models.MailboxLength, error) {
	p, err := s.Get()
	return p.MailboxLength, err
}

func (s *Store) IsAutostartEnabled() (bool, error) {
	p, err := s.Get()
	return p.IsAutostartEnabled, err
}

func (s *Store) IsSendDelayEnabled() (bool, error) {
	p, err := s.Get()
	return p.IsSendDelayEnabled, err
}

func (s *Store) NotificationStatus() (models.NotificationStatus, error) {
	p, err := s.Get()
	return p.NotificationStatus, err
}
