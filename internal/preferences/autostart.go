package preferences

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// XDGAutostart toggles a freedesktop autostart entry, e.g.
// ~/.config/autostart/vmail.desktop.
type XDGAutostart struct {
	Dir     string
	AppName string
	Exec    string
}

// NewXDGAutostart uses $XDG_CONFIG_HOME/autostart, or ~/.config/autostart.
func NewXDGAutostart(homeDir, appName, exec string) *XDGAutostart {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(homeDir, ".config")
	}
	return &XDGAutostart{Dir: filepath.Join(configHome, "autostart"), AppName: appName, Exec: exec}
}

func (a *XDGAutostart) path() string {
	return filepath.Join(a.Dir, a.AppName+".desktop")
}

func (a *XDGAutostart) Enable(context.Context) error {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create autostart directory: %w", err)
	}
	entry := fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\nX-GNOME-Autostart-enabled=true\n", a.AppName, a.Exec)
	if err := os.WriteFile(a.path(), []byte(entry), 0o644); err != nil {
		return fmt.Errorf("failed to write autostart entry: %w", err)
	}
	return nil
}

func (a *XDGAutostart) Disable(context.Context) error {
	if err := os.Remove(a.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove autostart entry: %w", err)
	}
	return nil
}

// IsEnabled reports whether the autostart entry exists.
func (a *XDGAutostart) IsEnabled() bool {
	_, err := os.Stat(a.path())
	return err == nil
}
