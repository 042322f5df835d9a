package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vmail/desktop/internal/models"
)

func TestState_Accounts(t *testing.T) {
	s := New()
	s.SetAccounts(
		[]models.Account{{EmailAddress: "a@x.com"}, {EmailAddress: "b@x.com"}},
		[]models.Account{{EmailAddress: "c@x.com"}},
	)

	acc, ok := s.AccountByAddress("b@x.com")
	require.True(t, ok)
	assert.Equal(t, "b@x.com", acc.EmailAddress)

	_, ok = s.AccountByAddress("c@x.com")
	assert.False(t, ok, "failed accounts are not connected accounts")

	t.Run("returned slices are copies", func(t *testing.T) {
		accounts := s.Accounts()
		accounts[0].EmailAddress = "mutated@x.com"
		_, ok := s.AccountByAddress("a@x.com")
		assert.True(t, ok)
	})

	t.Run("failed accounts are deduplicated", func(t *testing.T) {
		s.AddFailedAccount(models.Account{EmailAddress: "c@x.com"})
		s.AddFailedAccount(models.Account{EmailAddress: "d@x.com"})
		assert.Len(t, s.FailedAccounts(), 2)
	})

	t.Run("update account", func(t *testing.T) {
		ok := s.UpdateAccount("a@x.com", func(acc *models.Account) { acc.Fullname = "Alice" })
		require.True(t, ok)
		acc, _ := s.AccountByAddress("a@x.com")
		assert.Equal(t, "Alice", acc.Fullname)

		assert.False(t, s.UpdateAccount("nobody@x.com", func(*models.Account) {}))
	})
}

func TestState_Mailboxes(t *testing.T) {
	s := New()

	called := s.UpdateMailbox("a@x.com", func(*models.Mailbox) {
		t.Fatal("fn must not run for an untracked mailbox")
	})
	assert.False(t, called)

	s.SetMailbox("a@x.com", models.Mailbox{
		Folder: "INBOX",
		Emails: models.Window{Current: []models.Email{{UID: "1"}}},
		Total:  1,
	})

	ok := s.UpdateMailbox("a@x.com", func(mb *models.Mailbox) {
		mb.Emails.Current = append(mb.Emails.Current, models.Email{UID: "2"})
		mb.Total++
	})
	require.True(t, ok)

	mb, ok := s.Mailbox("a@x.com")
	require.True(t, ok)
	assert.Equal(t, 2, mb.Total)
	assert.Len(t, mb.Emails.Current, 2)

	mb.Emails.Current[0].UID = "mutated"
	again, _ := s.Mailbox("a@x.com")
	assert.Equal(t, "1", again.Emails.Current[0].UID)
}

func TestState_RecentEmails(t *testing.T) {
	s := New()

	assert.False(t, s.AppendRecentEmail("a@x.com", models.EmailContent{}), "no buffer yet")
	assert.False(t, s.HasRecentEmails("a@x.com"))

	s.EnsureRecentEmails("a@x.com")
	assert.True(t, s.HasRecentEmails("a@x.com"))
	assert.Empty(t, s.RecentEmails("a@x.com"))

	require.True(t, s.AppendRecentEmail("a@x.com", models.EmailContent{Body: "hi"}))

	// A second Ensure must not clear the buffer.
	s.EnsureRecentEmails("a@x.com")
	assert.Len(t, s.RecentEmails("a@x.com"), 1)
}

func TestState_Reset(t *testing.T) {
	s := New()
	s.SetServer("http://127.0.0.1:8000")
	s.SetAccounts([]models.Account{{EmailAddress: "a@x.com"}}, nil)
	s.SetMailbox("a@x.com", models.Mailbox{Folder: "INBOX"})
	s.EnsureRecentEmails("a@x.com")

	s.Reset(KeyMailboxes)
	_, ok := s.Mailbox("a@x.com")
	assert.False(t, ok)
	assert.Len(t, s.Accounts(), 1)

	s.Reset()
	assert.Empty(t, s.Accounts())
	assert.False(t, s.HasRecentEmails("a@x.com"))
	assert.Equal(t, "http://127.0.0.1:8000", s.Server(), "server is never reset")
}

func TestState_Subscribe(t *testing.T) {
	s := New()
	changes, unsubscribe := s.Subscribe()

	s.SetServer("http://127.0.0.1:8000")

	select {
	case key := <-changes:
		assert.Equal(t, KeyServer, key)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	unsubscribe()
	unsubscribe()

	_, open := <-changes
	assert.False(t, open)

	// Must not panic after unsubscribe.
	s.SetServer("http://127.0.0.1:9000")
}
