package notification

import (
	"context"
	"sync"

	"github.com/vdavid/vmail/desktop/internal/models"
)

// Manager keeps at most one Channel per account address.
type Manager struct {
	deps Deps

	// ops serializes Create and Terminate so a channel can't be opened after removal.
	ops      sync.Mutex
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		channels: make(map[string]*Channel),
	}
}

// HasChannel reports whether a channel is registered for address.
func (m *Manager) HasChannel(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[address]
	return ok
}

// Channel returns the registered channel for address.
func (m *Manager) Channel(address string) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[address]
	return ch, ok
}

// Len returns the number of registered channels.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// Addresses returns the addresses with a registered channel.
func (m *Manager) Addresses() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addresses := make([]string, 0, len(m.channels))
	for address := range m.channels {
		addresses = append(addresses, address)
	}
	return addresses
}

// Create opens a channel for account, or reinitializes the existing one.
// Connection failures are logged by the channel; a channel that still cannot
// open after its retries is removed so a later Create or Sync starts over.
func (m *Manager) Create(ctx context.Context, account models.Account) {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	ch, exists := m.channels[account.EmailAddress]
	if !exists {
		ch = NewChannel(account, m.deps)
		m.channels[account.EmailAddress] = ch
	}
	m.mu.Unlock()

	var err error
	if exists {
		err = ch.SetAccount(ctx, account)
	} else {
		err = ch.Initialize(ctx)
	}
	if err == nil {
		return
	}

	m.mu.Lock()
	if m.channels[account.EmailAddress] == ch {
		delete(m.channels, account.EmailAddress)
	}
	m.mu.Unlock()
	ch.Terminate()
}

// Terminate closes and removes the channel for address. Unknown addresses are ignored.
func (m *Manager) Terminate(address string) {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	ch, ok := m.channels[address]
	delete(m.channels, address)
	m.mu.Unlock()

	if ok {
		ch.Terminate()
	}
}

// TerminateAll closes and removes every channel.
func (m *Manager) TerminateAll() {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	channels := m.channels
	m.channels = make(map[string]*Channel)
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Terminate()
	}
}

// Sync makes the registry match status: with a global flag every account gets
// a channel or none does; a per-account map opens exactly the enabled ones.
// Enabled channels whose connection was lost are reopened.
func (m *Manager) Sync(ctx context.Context, accounts []models.Account, status models.NotificationStatus) {
	for _, account := range accounts {
		enabled := status.Global
		if !status.IsGlobal() {
			enabled = status.PerAccount[account.EmailAddress]
		}

		switch {
		case enabled && !m.isOpen(account.EmailAddress):
			m.Create(ctx, account)
		case !enabled && m.HasChannel(account.EmailAddress):
			m.Terminate(account.EmailAddress)
		}
	}
}

func (m *Manager) isOpen(address string) bool {
	ch, ok := m.Channel(address)
	return ok && ch.State() == StateOpen
}
