// Package desktop sends native desktop alerts and tracks whether the user
// allowed them.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Permission is the tri-state desktop notification authorization.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// ErrUnsupported is returned when no native alert mechanism exists on this platform.
var ErrUnsupported = errors.New("desktop notifications are not supported on this platform")

// Authorizer checks and requests permission to show desktop alerts.
type Authorizer interface {
	IsGranted(ctx context.Context) bool
	Request(ctx context.Context) Permission
}

// Sender shows a desktop alert.
type Sender interface {
	Send(ctx context.Context, title, body string) error
}

// StaticAuthorizer answers with a fixed permission.
type StaticAuthorizer struct {
	Permission Permission
}

func (a StaticAuthorizer) IsGranted(context.Context) bool {
	return a.Permission == PermissionGranted
}

func (a StaticAuthorizer) Request(context.Context) Permission {
	return a.Permission
}

// CommandSender shows alerts through the platform's notification command:
// notify-send on Linux and BSDs, osascript on macOS.
type CommandSender struct {
	appName  string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewCommandSender creates a CommandSender that tags alerts with appName.
func NewCommandSender(appName string) *CommandSender {
	return &CommandSender{
		appName:  appName,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (s *CommandSender) command(title, body string) (string, []string, error) {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptQuote(body), appleScriptQuote(title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{"--app-name", s.appName, title, body}, nil
	default:
		return "", nil, ErrUnsupported
	}
}

func (s *CommandSender) Send(ctx context.Context, title, body string) error {
	name, args, err := s.command(title, body)
	if err != nil {
		return err
	}
	if err := s.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to run %s: %w", name, err)
	}
	return nil
}

// IsGranted reports whether the platform's notification command is installed.
// Desktop environments without one behave as if permission was denied.
func (s *CommandSender) IsGranted(context.Context) bool {
	name, _, err := s.command("", "")
	if err != nil {
		return false
	}
	_, err = s.lookPath(name)
	return err == nil
}

// Request has no prompt to show for command-based alerts; it reports the
// availability of the command.
func (s *CommandSender) Request(ctx context.Context) Permission {
	if s.IsGranted(ctx) {
		return PermissionGranted
	}
	return PermissionDenied
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
