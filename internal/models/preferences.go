package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

type Language string

const (
	LanguageSystem Language = "System"
	LanguageENUS   Language = "English (US)"
)

type Theme string

const (
	ThemeSystem Theme = "System"
	ThemeLight  Theme = "Light"
	ThemeDark   Theme = "Dark"
)

// MailboxLength is the configured page length, stored as a string on disk.
type MailboxLength string

const (
	MailboxLengthFast     MailboxLength = "10"
	MailboxLengthStandard MailboxLength = "50"
	MailboxLengthCompact  MailboxLength = "100"
)

// Int returns the page length as a number, or 10 when the value is not numeric.
func (l MailboxLength) Int() int {
	n, err := strconv.Atoi(string(l))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

// NotificationStatus is either a global on/off switch or a per-account map.
// A nil PerAccount means the global value applies.
type NotificationStatus struct {
	Global     bool
	PerAccount map[string]bool
}

// AllNotifications returns a global status.
func AllNotifications(enabled bool) NotificationStatus {
	return NotificationStatus{Global: enabled}
}

// AccountNotifications returns a per-account status.
func AccountNotifications(perAccount map[string]bool) NotificationStatus {
	if perAccount == nil {
		perAccount = map[string]bool{}
	}
	return NotificationStatus{PerAccount: perAccount}
}

// IsGlobal reports whether the status is a single switch for every account.
func (s NotificationStatus) IsGlobal() bool {
	return s.PerAccount == nil
}

// Clone deep-copies the per-account map.
func (s NotificationStatus) Clone() NotificationStatus {
	if s.PerAccount == nil {
		return s
	}
	return NotificationStatus{PerAccount: maps.Clone(s.PerAccount)}
}

func (s NotificationStatus) MarshalJSON() ([]byte, error) {
	if s.IsGlobal() {
		return json.Marshal(s.Global)
	}
	return json.Marshal(s.PerAccount)
}

func (s *NotificationStatus) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		perAccount := map[string]bool{}
		if err := json.Unmarshal(trimmed, &perAccount); err != nil {
			return fmt.Errorf("failed to decode notification status: %w", err)
		}
		*s = NotificationStatus{PerAccount: perAccount}
		return nil
	}

	var global bool
	if err := json.Unmarshal(trimmed, &global); err != nil {
		return fmt.Errorf("failed to decode notification status: %w", err)
	}
	*s = NotificationStatus{Global: global}
	return nil
}

// Preferences is the process-wide user preference record.
type Preferences struct {
	Theme              Theme              `json:"theme"`
	Language           Language           `json:"language"`
	MailboxLength      MailboxLength      `json:"mailboxLength"`
	IsAutostartEnabled bool               `json:"isAutostartEnabled"`
	IsSendDelayEnabled bool               `json:"isSendDelayEnabled"`
	NotificationStatus NotificationStatus `json:"notificationStatus"`
}

// DefaultPreferences returns the preferences used on first start and on reset.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:              ThemeSystem,
		Language:           LanguageENUS,
		MailboxLength:      MailboxLengthFast,
		IsAutostartEnabled: false,
		IsSendDelayEnabled: true,
		NotificationStatus: AllNotifications(true),
	}
}

// Clone returns a copy that shares no maps with p.
func (p Preferences) Clone() Preferences {
	p.NotificationStatus = p.NotificationStatus.Clone()
	return p
}
