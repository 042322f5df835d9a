package preferences

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/state"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

type memoryPersister struct {
	saved   []models.Preferences
	loadErr error
	saveErr error
	initial models.Preferences
}

func (p *memoryPersister) LoadPreferences(context.Context) (models.Preferences, error) {
	return p.initial, p.loadErr
}

func (p *memoryPersister) SavePreferences(_ context.Context, prefs models.Preferences) error {
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved = append(p.saved, prefs.Clone())
	return nil
}

type fakeChannels struct {
	mu         sync.Mutex
	open       map[string]bool
	created    []string
	terminated []string
}

func newFakeChannels(open ...string) *fakeChannels {
	c := &fakeChannels{open: map[string]bool{}}
	for _, address := range open {
		c.open[address] = true
	}
	return c
}

func (c *fakeChannels) HasChannel(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open[address]
}

func (c *fakeChannels) Create(_ context.Context, acc models.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open[acc.EmailAddress] = true
	c.created = append(c.created, acc.EmailAddress)
}

func (c *fakeChannels) Terminate(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, address)
	c.terminated = append(c.terminated, address)
}

func (c *fakeChannels) TerminateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for address := range c.open {
		c.terminated = append(c.terminated, address)
	}
	c.open = map[string]bool{}
}

type fakeLoader struct {
	lengths []int
	err     error
}

func (l *fakeLoader) Init(_ context.Context, pageLength int) error {
	l.lengths = append(l.lengths, pageLength)
	return l.err
}

type fakeAutostart struct {
	calls []bool
}

func (a *fakeAutostart) Enable(context.Context) error {
	a.calls = append(a.calls, true)
	return nil
}

func (a *fakeAutostart) Disable(context.Context) error {
	a.calls = append(a.calls, false)
	return nil
}

type floorRecorder struct{ floor int }

func (f *floorRecorder) SetFloor(n int) { f.floor = n }

type fixture struct {
	store     *Store
	persister *memoryPersister
	channels  *fakeChannels
	loader    *fakeLoader
	autostart *fakeAutostart
	avatars   *floorRecorder
	manager   *Manager
}

func newFixture(t *testing.T, prefs models.Preferences) *fixture {
	t.Helper()

	st := state.New()
	st.SetAccounts([]models.Account{{EmailAddress: alice}, {EmailAddress: bob}}, nil)

	store := NewStore()
	require.NoError(t, store.Init(prefs))

	logger, _ := logrustest.NewNullLogger()
	f := &fixture{
		store:     store,
		persister: &memoryPersister{},
		channels:  newFakeChannels(),
		loader:    &fakeLoader{},
		autostart: &fakeAutostart{},
		avatars:   &floorRecorder{},
	}
	f.manager = NewManager(Deps{
		Store:     store,
		Persister: f.persister,
		State:     st,
		Channels:  f.channels,
		Mailboxes: f.loader,
		Autostart: f.autostart,
		Avatars:   f.avatars,
		Logger:    logger,
	})
	return f
}

func TestStoreRequiresInit(t *testing.T) {
	store := NewStore()

	_, err := store.Get()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = store.Theme()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, store.Update(func(*models.Preferences) {}), ErrNotInitialized)

	require.NoError(t, store.Init(models.DefaultPreferences()))
	assert.ErrorIs(t, store.Init(models.DefaultPreferences()), ErrAlreadyInitialized)

	theme, err := store.Theme()
	require.NoError(t, err)
	assert.Equal(t, models.ThemeSystem, theme)
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Init(models.Preferences{NotificationStatus: models.AccountNotifications(map[string]bool{alice: true})}))

	prefs, err := store.Get()
	require.NoError(t, err)
	prefs.NotificationStatus.PerAccount[alice] = false

	status, err := store.NotificationStatus()
	require.NoError(t, err)
	assert.True(t, status.PerAccount[alice])
}

func TestStoreLoad(t *testing.T) {
	persister := &memoryPersister{initial: models.Preferences{Theme: models.ThemeDark}}
	store := NewStore()

	require.NoError(t, store.Load(context.Background(), persister))
	theme, _ := store.Theme()
	assert.Equal(t, models.ThemeDark, theme)

	failing := &memoryPersister{loadErr: errors.New("disk on fire")}
	err := NewStore().Load(context.Background(), failing)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestManagerRejectsOperationsBeforeInit(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	m := NewManager(Deps{Store: NewStore(), Persister: &memoryPersister{}, Logger: logger})

	assert.ErrorIs(t, m.ChangeTheme(models.ThemeDark), ErrNotInitialized)
	assert.ErrorIs(t, m.ChangeSendDelay(false), ErrNotInitialized)
	assert.ErrorIs(t, m.ResetToDefault(), ErrNotInitialized)
	assert.ErrorIs(t, m.SavePreferences(context.Background()), ErrNotInitialized)
	_, err := m.CheckNotificationStatus(alice)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestChangesApplyOnlyOnSave(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())

	require.NoError(t, f.manager.ChangeSendDelay(false))
	require.NoError(t, f.manager.ChangeTheme(models.ThemeLight))
	require.NoError(t, f.manager.ChangeAutostart(true))
	assert.Equal(t, 3, f.manager.Pending())

	delay, _ := f.store.IsSendDelayEnabled()
	assert.True(t, delay, "queued change must not be visible before save")

	require.NoError(t, f.manager.SavePreferences(context.Background()))

	assert.Zero(t, f.manager.Pending())
	require.Len(t, f.persister.saved, 1)
	saved := f.persister.saved[0]
	assert.False(t, saved.IsSendDelayEnabled)
	assert.Equal(t, models.ThemeLight, saved.Theme)
	assert.True(t, saved.IsAutostartEnabled)
	assert.Equal(t, []bool{true}, f.autostart.calls)
	assert.Equal(t, "light", f.manager.AppliedTheme())

	current, _ := f.store.Get()
	assert.Empty(t, cmp.Diff(saved, current))
}

func TestSaveAppliesInOrder(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())

	require.NoError(t, f.manager.ChangeTheme(models.ThemeLight))
	require.NoError(t, f.manager.ChangeTheme(models.ThemeDark))
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	theme, _ := f.store.Theme()
	assert.Equal(t, models.ThemeDark, theme)
}

func TestSaveWithEmptyQueueWritesCurrentRecord(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())

	require.NoError(t, f.manager.SavePreferences(context.Background()))

	require.Len(t, f.persister.saved, 1)
	assert.Empty(t, cmp.Diff(models.DefaultPreferences(), f.persister.saved[0]))
}

func TestSaveKeepsFailedChangeQueued(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())
	f.loader.err = errors.New("backend down")

	require.NoError(t, f.manager.ChangeSendDelay(false))
	require.NoError(t, f.manager.ChangeMailboxLength(models.MailboxLengthStandard))
	require.NoError(t, f.manager.ChangeTheme(models.ThemeDark))

	err := f.manager.SavePreferences(context.Background())

	require.Error(t, err)
	assert.Empty(t, f.persister.saved)
	assert.Equal(t, 2, f.manager.Pending())
	delay, _ := f.store.IsSendDelayEnabled()
	assert.False(t, delay, "changes before the failure stay applied")

	f.loader.err = nil
	require.NoError(t, f.manager.SavePreferences(context.Background()))
	assert.Zero(t, f.manager.Pending())
	length, _ := f.store.MailboxLength()
	assert.Equal(t, models.MailboxLengthStandard, length)
}

func TestSavePersistError(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())
	f.persister.saveErr = errors.New("read-only filesystem")
	require.NoError(t, f.manager.ChangeSendDelay(false))

	err := f.manager.SavePreferences(context.Background())

	assert.ErrorContains(t, err, "read-only filesystem")
	assert.Zero(t, f.manager.Pending())
}

func TestChangeMailboxLengthReloadsMailboxes(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())

	require.NoError(t, f.manager.ChangeMailboxLength(models.MailboxLengthCompact))
	assert.Empty(t, f.loader.lengths)

	require.NoError(t, f.manager.SavePreferences(context.Background()))

	assert.Equal(t, []int{100}, f.loader.lengths)
	assert.Equal(t, 100, f.avatars.floor)
}

func TestInvalidValuesAreRejected(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())

	assert.ErrorIs(t, f.manager.ChangeTheme("Sepia"), ErrInvalidValue)
	assert.ErrorIs(t, f.manager.ChangeLanguage("Klingon"), ErrInvalidValue)
	assert.ErrorIs(t, f.manager.ChangeMailboxLength("7"), ErrInvalidValue)
	assert.Zero(t, f.manager.Pending())
}

func TestChangeLanguage(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())

	require.NoError(t, f.manager.ChangeLanguage(models.LanguageENUS))
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	assert.Equal(t, "en-US", f.manager.AppliedLocale())
	lang, _ := f.store.Language()
	assert.Equal(t, models.LanguageENUS, lang)
}

func TestSystemThemeResolution(t *testing.T) {
	f := newFixture(t, models.DefaultPreferences())
	f.manager.deps.SystemTheme = func() models.Theme { return models.ThemeLight }

	require.NoError(t, f.manager.ChangeTheme(models.ThemeSystem))
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	assert.Equal(t, "light", f.manager.AppliedTheme())
	theme, _ := f.store.Theme()
	assert.Equal(t, models.ThemeSystem, theme, "the stored value stays System")
}

func TestGlobalNotificationStatus(t *testing.T) {
	f := newFixture(t, models.Preferences{NotificationStatus: models.AllNotifications(false)})

	require.NoError(t, f.manager.ChangeNotificationStatus(models.AllNotifications(true), false))
	require.NoError(t, f.manager.SavePreferences(context.Background()))
	assert.ElementsMatch(t, []string{alice, bob}, f.channels.created)

	require.NoError(t, f.manager.ChangeNotificationStatus(models.AllNotifications(false), false))
	require.NoError(t, f.manager.SavePreferences(context.Background()))
	assert.False(t, f.channels.HasChannel(alice))
	assert.False(t, f.channels.HasChannel(bob))

	status, _ := f.store.NotificationStatus()
	assert.Equal(t, models.AllNotifications(false), status)
}

func TestPerAccountStatusExpandsGlobal(t *testing.T) {
	f := newFixture(t, models.Preferences{NotificationStatus: models.AllNotifications(true)})

	require.NoError(t, f.manager.ChangeNotificationStatus(models.AccountNotifications(map[string]bool{bob: false}), false))
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	status, _ := f.store.NotificationStatus()
	assert.Equal(t, map[string]bool{alice: true, bob: false}, status.PerAccount)
	assert.Equal(t, []string{bob}, f.channels.terminated)
}

func TestPerAccountStatusDeleteRecord(t *testing.T) {
	f := newFixture(t, models.Preferences{NotificationStatus: models.AccountNotifications(map[string]bool{alice: true, bob: true})})

	require.NoError(t, f.manager.ChangeNotificationStatus(models.AccountNotifications(map[string]bool{alice: true, bob: false}), true))
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	status, _ := f.store.NotificationStatus()
	assert.Equal(t, map[string]bool{alice: true}, status.PerAccount)
	assert.Equal(t, []string{alice}, f.channels.created)
	assert.Equal(t, []string{bob}, f.channels.terminated)
}

func TestPerAccountStatusIgnoresUnknownAccount(t *testing.T) {
	f := newFixture(t, models.Preferences{NotificationStatus: models.AccountNotifications(map[string]bool{})})

	require.NoError(t, f.manager.ChangeNotificationStatus(models.AccountNotifications(map[string]bool{"ghost@example.com": true}), false))
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	assert.Empty(t, f.channels.created)
}

func TestCheckNotificationStatus(t *testing.T) {
	f := newFixture(t, models.Preferences{NotificationStatus: models.AllNotifications(true)})
	enabled, err := f.manager.CheckNotificationStatus(alice)
	require.NoError(t, err)
	assert.True(t, enabled)

	f = newFixture(t, models.Preferences{NotificationStatus: models.AccountNotifications(map[string]bool{alice: true, bob: true})})
	f.channels.open[alice] = true

	enabled, _ = f.manager.CheckNotificationStatus(alice)
	assert.True(t, enabled)
	enabled, _ = f.manager.CheckNotificationStatus(bob)
	assert.False(t, enabled, "listed but without a channel")
	enabled, _ = f.manager.CheckNotificationStatus("ghost@example.com")
	assert.False(t, enabled)
}

func TestResetToDefault(t *testing.T) {
	custom := models.Preferences{
		Theme:              models.ThemeDark,
		Language:           models.LanguageENUS,
		MailboxLength:      models.MailboxLengthCompact,
		IsAutostartEnabled: true,
		IsSendDelayEnabled: false,
		NotificationStatus: models.AllNotifications(false),
	}
	f := newFixture(t, custom)

	require.NoError(t, f.manager.ResetToDefault())
	assert.Equal(t, 6, f.manager.Pending())
	require.NoError(t, f.manager.SavePreferences(context.Background()))

	current, _ := f.store.Get()
	assert.Empty(t, cmp.Diff(models.DefaultPreferences(), current))
	assert.Equal(t, []int{10}, f.loader.lengths)
	assert.Equal(t, []bool{false}, f.autostart.calls)
	assert.True(t, slices.Contains(f.channels.created, alice))
}

func TestXDGAutostart(t *testing.T) {
	dir := t.TempDir()
	a := &XDGAutostart{Dir: filepath.Join(dir, "autostart"), AppName: "vmail", Exec: "/usr/bin/vmail"}

	require.NoError(t, a.Disable(context.Background()), "disabling a missing entry is fine")
	assert.False(t, a.IsEnabled())

	require.NoError(t, a.Enable(context.Background()))
	assert.True(t, a.IsEnabled())
	data, err := os.ReadFile(filepath.Join(dir, "autostart", "vmail.desktop"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exec=/usr/bin/vmail")

	require.NoError(t, a.Disable(context.Background()))
	assert.False(t, a.IsEnabled())
}

func TestNewXDGAutostartHonoursConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	a := NewXDGAutostart("/home/jane", "vmail", "vmail")
	assert.Equal(t, filepath.Join("/tmp/xdg", "autostart"), a.Dir)

	t.Setenv("XDG_CONFIG_HOME", "")
	a = NewXDGAutostart("/home/jane", "vmail", "vmail")
	assert.Equal(t, filepath.Join("/home/jane", ".config", "autostart"), a.Dir)
}
