package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStandardFolder(t *testing.T) {
	tests := []struct {
		folder   string
		standard Folder
		want     bool
	}{
		{"INBOX", FolderInbox, true},
		{"Inbox", FolderInbox, true},
		{"Inbox:INBOX", FolderInbox, true},
		{"sent:[Gmail]/Sent Mail", FolderSent, true},
		{"[Gmail]/Sent Mail", FolderSent, false},
		{"Projects/Inbox", FolderInbox, false},
		{"Work/INBOX", FolderInbox, false},
		{"Inbox Archive", FolderInbox, false},
		{"Archive/2024", FolderInbox, false},
		{"Newsletters", FolderInbox, false},
		{"", FolderInbox, false},
	}

	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStandardFolder(tt.folder, tt.standard))
		})
	}
}

func TestNotificationStatusJSON(t *testing.T) {
	t.Run("global value", func(t *testing.T) {
		var status NotificationStatus
		require.NoError(t, json.Unmarshal([]byte(`false`), &status))
		assert.True(t, status.IsGlobal())
		assert.False(t, status.Global)

		out, err := json.Marshal(AllNotifications(true))
		require.NoError(t, err)
		assert.JSONEq(t, `true`, string(out))
	})

	t.Run("per-account value", func(t *testing.T) {
		var status NotificationStatus
		require.NoError(t, json.Unmarshal([]byte(`{"a@x.com": true, "b@x.com": false}`), &status))
		assert.False(t, status.IsGlobal())
		assert.Equal(t, map[string]bool{"a@x.com": true, "b@x.com": false}, status.PerAccount)

		out, err := json.Marshal(status)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a@x.com": true, "b@x.com": false}`, string(out))
	})

	t.Run("rejects other shapes", func(t *testing.T) {
		var status NotificationStatus
		assert.Error(t, json.Unmarshal([]byte(`"yes"`), &status))
	})
}

func TestPreferencesCloneDoesNotShareMaps(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.NotificationStatus = AccountNotifications(map[string]bool{"a@x.com": true})

	clone := prefs.Clone()
	clone.NotificationStatus.PerAccount["a@x.com"] = false

	assert.True(t, prefs.NotificationStatus.PerAccount["a@x.com"])
}

func TestMailboxLengthInt(t *testing.T) {
	assert.Equal(t, 50, MailboxLengthStandard.Int())
	assert.Equal(t, 10, MailboxLength("lots").Int())
}
