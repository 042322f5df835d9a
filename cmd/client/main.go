package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/avatar"
	"github.com/vdavid/vmail/desktop/internal/config"
	"github.com/vdavid/vmail/desktop/internal/db"
	"github.com/vdavid/vmail/desktop/internal/desktop"
	"github.com/vdavid/vmail/desktop/internal/filesystem"
	"github.com/vdavid/vmail/desktop/internal/logging"
	"github.com/vdavid/vmail/desktop/internal/mailbox"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/notification"
	"github.com/vdavid/vmail/desktop/internal/preferences"
	"github.com/vdavid/vmail/desktop/internal/server"
	"github.com/vdavid/vmail/desktop/internal/state"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger, desktop.NewCommandSender(cfg.AppName))
	if err != nil {
		logger.WithError(err).Fatal("Client: failed to start")
	}

	logger.WithFields(logrus.Fields{
		"server":   cfg.ServerURL,
		"accounts": len(app.State.Accounts()),
		"channels": app.Notifications.Len(),
	}).Info("Client: running")

	<-ctx.Done()
	logger.Info("Client: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Client: shutdown failed")
		os.Exit(1)
	}
}

// Alerter can both check alert permission and show alerts.
type Alerter interface {
	desktop.Authorizer
	desktop.Sender
}

// App holds the wired notification core of the client.
type App struct {
	State         *state.State
	Store         *preferences.Store
	Preferences   *preferences.Manager
	Notifications *notification.Manager
	Mailboxes     *mailbox.Controller
	Avatars       *avatar.Cache

	logger  *logrus.Logger
	closers []func()
}

// NewApp loads the preferences, connects to the backend, loads every inbox
// window and opens the push channels the notification status asks for.
func NewApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, alerter Alerter) (*App, error) {
	app := &App{logger: logger}

	persister, err := app.openPersister(ctx, cfg)
	if err != nil {
		app.close()
		return nil, err
	}

	app.Store = preferences.NewStore()
	if err := app.Store.Load(ctx, persister); err != nil {
		app.close()
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	prefs, err := app.Store.Get()
	if err != nil {
		app.close()
		return nil, err
	}

	app.State = state.New()
	client, err := server.NewDiscovery(app.State, logger, cfg.ConnectRetries, cfg.ConnectRetryDelay).
		Connect(ctx, cfg.ServerURL)
	if err != nil {
		app.close()
		return nil, err
	}

	pageLength := prefs.MailboxLength.Int()
	app.Avatars = avatar.New(avatar.Options{
		Ceiling:     cfg.AvatarCacheCeiling,
		Floor:       pageLength,
		GravatarURL: cfg.GravatarURL,
		RPS:         cfg.GravatarRPS,
	}, logger)
	for _, acc := range app.State.Accounts() {
		identity := app.Avatars.CreateAvatarData(ctx, acc.EmailAddress, acc.Fullname)
		app.State.UpdateAccount(acc.EmailAddress, func(a *models.Account) { a.Avatar = &identity })
	}

	app.Mailboxes = mailbox.NewController(client, app.State, logger)
	if err := app.Mailboxes.Init(ctx, pageLength); err != nil {
		app.close()
		return nil, err
	}

	app.Notifications = notification.NewManager(notification.Deps{
		State:      app.State,
		Fetcher:    client,
		Authorizer: alerter,
		Sender:     alerter,
		Language: func() models.Language {
			lang, err := app.Store.Language()
			if err != nil {
				return ""
			}
			return lang
		},
		DialAttempts:   cfg.ConnectRetries,
		DialRetryDelay: cfg.ConnectRetryDelay,
		Logger:         logger,
	})
	app.Notifications.Sync(ctx, app.State.Accounts(), prefs.NotificationStatus)

	executable, err := os.Executable()
	if err != nil {
		executable = cfg.AppName
	}
	app.Preferences = preferences.NewManager(preferences.Deps{
		Store:     app.Store,
		Persister: persister,
		State:     app.State,
		Channels:  app.Notifications,
		Mailboxes: app.Mailboxes,
		Autostart: preferences.NewXDGAutostart(cfg.HomeDir, cfg.AppName, executable),
		Avatars:   app.Avatars,
		Logger:    logger,
	})

	return app, nil
}

func (a *App) openPersister(ctx context.Context, cfg *config.Config) (preferences.Persister, error) {
	switch cfg.PreferencesBackend {
	case config.PreferencesBackendSQLite:
		if err := os.MkdirAll(cfg.RootDir(), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", cfg.RootDir(), err)
		}
		store, err := db.NewSQLitePreferences(cfg.SQLitePath(), cfg.PreferencesProfile)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil

	case config.PreferencesBackendPostgres:
		pool, err := db.NewConnection(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() { db.CloseConnection(pool) })
		if err := db.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		return db.NewPreferenceRepository(pool, cfg.PreferencesProfile), nil

	default:
		fs := filesystem.New(cfg.RootDir(), a.logger)
		if err := fs.Init(ctx); err != nil {
			return nil, err
		}
		return fs, nil
	}
}

// Shutdown closes every push channel, applies any queued preference changes
// and releases the preference storage.
func (a *App) Shutdown(ctx context.Context) error {
	defer a.close()

	a.Notifications.TerminateAll()
	if a.Preferences.Pending() == 0 {
		return nil
	}
	return a.Preferences.SavePreferences(ctx)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
