// Package filesystem owns the per-app directory under the user's home and
// the preference file inside it.
package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/models"
	"golang.org/x/sync/singleflight"
)

const PreferencesFile = "preferences.json"

// ErrNotInitialized is returned when the root is used before Init.
var ErrNotInitialized = errors.New("filesystem is not initialized, call Init first")

// FS is the app root, e.g. ~/.vmail. Init creates the directory and the
// preference file; concurrent first calls share one initialization.
type FS struct {
	root   string
	logger *logrus.Logger

	group       singleflight.Group
	mu          sync.RWMutex
	initialized bool
}

func New(root string, logger *logrus.Logger) *FS {
	return &FS{root: root, logger: logger}
}

// Init creates the root and a default preference file when they are missing.
func (f *FS) Init(ctx context.Context) error {
	if f.isInitialized() {
		return nil
	}

	_, err, _ := f.group.Do("init", func() (any, error) {
		if f.isInitialized() {
			return nil, nil
		}
		if err := f.create(ctx, false); err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.initialized = true
		f.mu.Unlock()
		f.logger.WithField("root", f.root).Debug("FileSystem: initialized")
		return nil, nil
	})
	return err
}

// Reset recreates the preference file with defaults.
func (f *FS) Reset(ctx context.Context) error {
	if err := f.create(ctx, true); err != nil {
		return err
	}
	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()
	return nil
}

func (f *FS) create(ctx context.Context, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(f.root, 0o700); err != nil {
		return fmt.Errorf("failed to create app directory %s: %w", f.root, err)
	}

	path := filepath.Join(f.root, PreferencesFile)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return writeJSON(path, models.DefaultPreferences())
}

func (f *FS) isInitialized() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.initialized
}

// Root returns the app directory.
func (f *FS) Root() (string, error) {
	if !f.isInitialized() {
		return "", ErrNotInitialized
	}
	return f.root, nil
}

// PreferencesPath returns the path of the preference file.
func (f *FS) PreferencesPath() (string, error) {
	root, err := f.Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, PreferencesFile), nil
}

// LoadPreferences reads the preference file. Missing fields and an empty
// file fall back to the defaults.
func (f *FS) LoadPreferences(_ context.Context) (models.Preferences, error) {
	path, err := f.PreferencesPath()
	if err != nil {
		return models.Preferences{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to read preferences: %w", err)
	}

	prefs := models.DefaultPreferences()
	if len(bytes.TrimSpace(data)) == 0 {
		return prefs, nil
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return models.Preferences{}, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences rewrites the whole preference file.
func (f *FS) SavePreferences(_ context.Context, prefs models.Preferences) error {
	path, err := f.PreferencesPath()
	if err != nil {
		return err
	}
	return writeJSON(path, prefs)
}

// writeJSON replaces path atomically with the indented JSON of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
