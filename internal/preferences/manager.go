package preferences

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/locale"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/state"
)

// Channels is the part of the notification manager the preferences drive.
type Channels interface {
	HasChannel(address string) bool
	Create(ctx context.Context, account models.Account)
	Terminate(address string)
	TerminateAll()
}

// MailboxLoader reloads every mailbox window with a new page length.
type MailboxLoader interface {
	Init(ctx context.Context, pageLength int) error
}

// Autostarter registers the app to start on login.
type Autostarter interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// FloorSetter is told the page length so caches sized by it can follow.
type FloorSetter interface {
	SetFloor(n int)
}

type Deps struct {
	Store     *Store
	Persister Persister
	State     *state.State
	Channels  Channels
	Mailboxes MailboxLoader
	Autostart Autostarter
	Avatars   FloorSetter
	// SystemTheme reports the OS theme. Nil means dark.
	SystemTheme func() models.Theme
	Logger      *logrus.Logger
}

type operation func(ctx context.Context) error

// Manager queues preference changes and applies them on SavePreferences.
type Manager struct {
	deps Deps

	mu     sync.Mutex
	queue  []operation
	locale string
	theme  string

	saveMu sync.Mutex
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

func (m *Manager) enqueue(op operation) error {
	if !m.deps.Store.IsInitialized() {
		return ErrNotInitialized
	}
	m.mu.Lock()
	m.queue = append(m.queue, op)
	m.mu.Unlock()
	return nil
}

// Pending returns the number of queued, not yet applied changes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// AppliedLocale returns the RFC 5646 tag of the last applied language, e.g. "en-US".
func (m *Manager) AppliedLocale() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locale
}

// AppliedTheme returns the lower-cased concrete theme last applied, e.g. "dark".
func (m *Manager) AppliedTheme() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.theme
}

func (m *Manager) ChangeLanguage(lang models.Language) error {
	if lang != models.LanguageSystem && lang != models.LanguageENUS {
		return fmt.Errorf("%w: language %q", ErrInvalidValue, lang)
	}

	return m.enqueue(func(context.Context) error {
		tag := locale.RFC5646(lang)
		if err := m.deps.Store.Update(func(p *models.Preferences) { p.Language = lang }); err != nil {
			return err
		}
		m.mu.Lock()
		m.locale = tag
		m.mu.Unlock()
		return nil
	})
}

func (m *Manager) ResetLanguage() error {
	return m.ChangeLanguage(models.DefaultPreferences().Language)
}

func (m *Manager) ChangeTheme(theme models.Theme) error {
	switch theme {
	case models.ThemeSystem, models.ThemeLight, models.ThemeDark:
	default:
		return fmt.Errorf("%w: theme %q", ErrInvalidValue, theme)
	}

	return m.enqueue(func(context.Context) error {
		concrete := theme
		if concrete == models.ThemeSystem {
			concrete = models.ThemeDark
			if m.deps.SystemTheme != nil {
				if detected := m.deps.SystemTheme(); detected == models.ThemeLight || detected == models.ThemeDark {
					concrete = detected
				}
			}
		}

		if err := m.deps.Store.Update(func(p *models.Preferences) { p.Theme = theme }); err != nil {
			return err
		}
		m.mu.Lock()
		m.theme = lowerTheme(concrete)
		m.mu.Unlock()
		return nil
	})
}

func (m *Manager) ResetTheme() error {
	return m.ChangeTheme(models.DefaultPreferences().Theme)
}

func (m *Manager) ChangeAutostart(enabled bool) error {
	return m.enqueue(func(ctx context.Context) error {
		if err := m.deps.Store.Update(func(p *models.Preferences) { p.IsAutostartEnabled = enabled }); err != nil {
			return err
		}
		if m.deps.Autostart == nil {
			return nil
		}
		if enabled {
			return m.deps.Autostart.Enable(ctx)
		}
		return m.deps.Autostart.Disable(ctx)
	})
}

func (m *Manager) ResetAutostart() error {
	return m.ChangeAutostart(models.DefaultPreferences().IsAutostartEnabled)
}

func (m *Manager) ChangeSendDelay(enabled bool) error {
	return m.enqueue(func(context.Context) error {
		return m.deps.Store.Update(func(p *models.Preferences) { p.IsSendDelayEnabled = enabled })
	})
}

func (m *Manager) ResetSendDelay() error {
	return m.ChangeSendDelay(models.DefaultPreferences().IsSendDelayEnabled)
}

// ChangeMailboxLength reloads every mailbox with the new page length when applied.
func (m *Manager) ChangeMailboxLength(length models.MailboxLength) error {
	switch length {
	case models.MailboxLengthFast, models.MailboxLengthStandard, models.MailboxLengthCompact:
	default:
		return fmt.Errorf("%w: mailbox length %q", ErrInvalidValue, length)
	}

	return m.enqueue(func(ctx context.Context) error {
		if m.deps.Mailboxes != nil {
			if err := m.deps.Mailboxes.Init(ctx, length.Int()); err != nil {
				return fmt.Errorf("failed to reload mailboxes: %w", err)
			}
		}
		if m.deps.Avatars != nil {
			m.deps.Avatars.SetFloor(length.Int())
		}
		return m.deps.Store.Update(func(p *models.Preferences) { p.MailboxLength = length })
	})
}

func (m *Manager) ResetMailboxLength() error {
	return m.ChangeMailboxLength(models.DefaultPreferences().MailboxLength)
}

// CheckNotificationStatus reports whether notifications are on for address.
// With a per-account status the account must also have a live channel.
func (m *Manager) CheckNotificationStatus(address string) (bool, error) {
	status, err := m.deps.Store.NotificationStatus()
	if err != nil {
		return false, err
	}
	if status.IsGlobal() {
		return status.Global, nil
	}
	_, listed := status.PerAccount[address]
	return listed && m.deps.Channels.HasChannel(address), nil
}

// ChangeNotificationStatus queues a notification status change.
//
// A global status opens channels for every account or closes them all. A
// per-account status first expands a global current status into a map over
// all accounts, opens or closes the named accounts' channels, then merges.
// With deleteRecord, disabled accounts are removed from the map instead of
// being stored as false.
func (m *Manager) ChangeNotificationStatus(status models.NotificationStatus, deleteRecord bool) error {
	status = status.Clone()

	return m.enqueue(func(ctx context.Context) error {
		if status.IsGlobal() {
			if status.Global {
				for _, acc := range m.deps.State.Accounts() {
					m.deps.Channels.Create(ctx, acc)
				}
			} else {
				m.deps.Channels.TerminateAll()
			}
			return m.deps.Store.Update(func(p *models.Preferences) { p.NotificationStatus = status })
		}

		current, err := m.deps.Store.NotificationStatus()
		if err != nil {
			return err
		}
		merged := map[string]bool{}
		if current.IsGlobal() {
			for _, acc := range m.deps.State.Accounts() {
				merged[acc.EmailAddress] = current.Global
			}
		} else {
			for address, enabled := range current.PerAccount {
				merged[address] = enabled
			}
		}

		addresses := make([]string, 0, len(status.PerAccount))
		for address := range status.PerAccount {
			addresses = append(addresses, address)
		}
		slices.Sort(addresses)

		for _, address := range addresses {
			enabled := status.PerAccount[address]
			acc, ok := m.deps.State.AccountByAddress(address)
			if !ok {
				m.deps.Logger.WithField("account", address).Warn("PreferenceManager: notification status for unknown account")
			} else if enabled {
				m.deps.Channels.Create(ctx, acc)
			} else {
				m.deps.Channels.Terminate(address)
			}

			merged[address] = enabled
			if deleteRecord && !enabled {
				delete(merged, address)
			}
		}

		return m.deps.Store.Update(func(p *models.Preferences) {
			p.NotificationStatus = models.AccountNotifications(merged)
		})
	})
}

func (m *Manager) ResetNotificationStatus() error {
	return m.ChangeNotificationStatus(models.DefaultPreferences().NotificationStatus, false)
}

// ResetToDefault queues a reset of every preference.
func (m *Manager) ResetToDefault() error {
	for _, reset := range []func() error{
		m.ResetSendDelay,
		m.ResetTheme,
		m.ResetLanguage,
		m.ResetAutostart,
		m.ResetMailboxLength,
		m.ResetNotificationStatus,
	} {
		if err := reset(); err != nil {
			return err
		}
	}
	return nil
}

// SavePreferences applies the queued changes in order, persists the resulting
// record once and clears the queue. With an empty queue it still writes the
// current record. A change that fails stays queued along with the ones after it.
func (m *Manager) SavePreferences(ctx context.Context) error {
	if !m.deps.Store.IsInitialized() {
		return ErrNotInitialized
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	ops := slices.Clone(m.queue)
	m.mu.Unlock()

	for i, op := range ops {
		if err := op(ctx); err != nil {
			m.dropApplied(i)
			return fmt.Errorf("failed to apply preference change: %w", err)
		}
	}
	m.dropApplied(len(ops))

	prefs, err := m.deps.Store.Get()
	if err != nil {
		return err
	}
	if err := m.deps.Persister.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("failed to persist preferences: %w", err)
	}

	m.deps.Logger.WithField("applied", len(ops)).Debug("PreferenceManager: preferences saved")
	return nil
}

// dropApplied removes the first n operations, keeping anything queued during the save.
func (m *Manager) dropApplied(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = slices.Delete(m.queue, 0, n)
}

func lowerTheme(theme models.Theme) string {
	switch theme {
	case models.ThemeLight:
		return "light"
	case models.ThemeDark:
		return "dark"
	default:
		return "system"
	}
}
