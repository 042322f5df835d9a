// Package state holds the shared application state: the backend URL, the
// connected accounts, the per-account mailbox windows and the per-account
// buffers of freshly fetched emails.
//
// A single *State is created at startup and passed to every component that
// needs it. All reads return copies and all writes go through the methods
// below, each of which runs under one lock. A caller that reads, blocks on
// I/O and then writes must use one of the Update* methods to apply its change
// against current data instead of writing back a stale copy.
package state

import (
	"slices"
	"sync"

	"github.com/vdavid/vmail/desktop/internal/models"
)

// Key names a part of the state, used in change notifications and Reset.
type Key string

const (
	KeyServer         Key = "server"
	KeyAccounts       Key = "accounts"
	KeyFailedAccounts Key = "failedAccounts"
	KeyMailboxes      Key = "mailboxes"
	KeyRecentEmails   Key = "recentEmails"
)

// AllKeys lists every resettable key.
var AllKeys = []Key{KeyServer, KeyAccounts, KeyFailedAccounts, KeyMailboxes, KeyRecentEmails}

type State struct {
	mu             sync.RWMutex
	server         string
	accounts       []models.Account
	failedAccounts []models.Account
	mailboxes      map[string]*models.Mailbox
	recentEmails   map[string][]models.EmailContent

	subsMu sync.RWMutex
	subs   map[chan Key]struct{}
}

func New() *State {
	return &State{
		mailboxes:    make(map[string]*models.Mailbox),
		recentEmails: make(map[string][]models.EmailContent),
		subs:         make(map[chan Key]struct{}),
	}
}

// Subscribe returns a channel that receives the key of every change and a
// function that unsubscribes and closes it. Slow subscribers miss events.
func (s *State) Subscribe() (<-chan Key, func()) {
	ch := make(chan Key, 16)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, ch)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *State) notify(key Key) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- key:
		default:
		}
	}
}

func (s *State) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

func (s *State) SetServer(server string) {
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()
	s.notify(KeyServer)
}

func (s *State) Accounts() []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts)
}

// SetAccounts replaces the connected and failed account lists.
func (s *State) SetAccounts(connected, failed []models.Account) {
	s.mu.Lock()
	s.accounts = slices.Clone(connected)
	s.failedAccounts = slices.Clone(failed)
	s.mu.Unlock()
	s.notify(KeyAccounts)
	s.notify(KeyFailedAccounts)
}

// AccountByAddress finds a connected account.
func (s *State) AccountByAddress(address string) (models.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.EmailAddress == address {
			return acc, true
		}
	}
	return models.Account{}, false
}

// UpdateAccount applies fn to the connected account with the given address.
func (s *State) UpdateAccount(address string, fn func(acc *models.Account)) bool {
	s.mu.Lock()
	found := false
	for i := range s.accounts {
		if s.accounts[i].EmailAddress == address {
			fn(&s.accounts[i])
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.notify(KeyAccounts)
	}
	return found
}

func (s *State) FailedAccounts() []models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.failedAccounts)
}

// AddFailedAccount records an account whose bulk operation failed.
// Adding the same address twice keeps a single entry.
func (s *State) AddFailedAccount(acc models.Account) {
	s.mu.Lock()
	if slices.ContainsFunc(s.failedAccounts, func(a models.Account) bool {
		return a.EmailAddress == acc.EmailAddress
	}) {
		s.mu.Unlock()
		return
	}
	s.failedAccounts = append(s.failedAccounts, acc)
	s.mu.Unlock()
	s.notify(KeyFailedAccounts)
}

// Mailbox returns a copy of the tracked mailbox view for an account.
func (s *State) Mailbox(account string) (models.Mailbox, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.mailboxes[account]
	if !ok {
		return models.Mailbox{}, false
	}
	return models.Mailbox{Folder: mb.Folder, Emails: mb.Emails.Clone(), Total: mb.Total}, true
}

func (s *State) SetMailbox(account string, mailbox models.Mailbox) {
	s.mu.Lock()
	mb := mailbox
	mb.Emails = mailbox.Emails.Clone()
	s.mailboxes[account] = &mb
	s.mu.Unlock()
	s.notify(KeyMailboxes)
}

// UpdateMailbox runs fn on the tracked mailbox for account while holding the
// lock. It returns false, without calling fn, when no mailbox is tracked.
func (s *State) UpdateMailbox(account string, fn func(mb *models.Mailbox)) bool {
	s.mu.Lock()
	mb, ok := s.mailboxes[account]
	if ok {
		fn(mb)
	}
	s.mu.Unlock()
	if ok {
		s.notify(KeyMailboxes)
	}
	return ok
}

// EnsureRecentEmails creates an empty recent-emails buffer for the account if
// none exists.
func (s *State) EnsureRecentEmails(account string) {
	s.mu.Lock()
	_, ok := s.recentEmails[account]
	if !ok {
		s.recentEmails[account] = []models.EmailContent{}
	}
	s.mu.Unlock()
	if !ok {
		s.notify(KeyRecentEmails)
	}
}

func (s *State) HasRecentEmails(account string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.recentEmails[account]
	return ok
}

// AppendRecentEmail appends to the account's buffer. It is a no-op returning
// false when the account has no buffer.
func (s *State) AppendRecentEmail(account string, email models.EmailContent) bool {
	s.mu.Lock()
	buf, ok := s.recentEmails[account]
	if ok {
		s.recentEmails[account] = append(buf, email)
	}
	s.mu.Unlock()
	if ok {
		s.notify(KeyRecentEmails)
	}
	return ok
}

func (s *State) RecentEmails(account string) []models.EmailContent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.recentEmails[account])
}

// Reset restores the given keys (all keys when none are given) to their
// defaults. The server address is never reset.
func (s *State) Reset(keys ...Key) {
	if len(keys) == 0 {
		keys = AllKeys
	}

	var changed []Key
	s.mu.Lock()
	for _, key := range keys {
		switch key {
		case KeyAccounts:
			s.accounts = nil
		case KeyFailedAccounts:
			s.failedAccounts = nil
		case KeyMailboxes:
			s.mailboxes = make(map[string]*models.Mailbox)
		case KeyRecentEmails:
			s.recentEmails = make(map[string][]models.EmailContent)
		default:
			continue
		}
		changed = append(changed, key)
	}
	s.mu.Unlock()

	for _, key := range changed {
		s.notify(key)
	}
}
