package models

import "strings"

// Folder is one of the standard IMAP folders the backend recognizes.
type Folder string

const (
	FolderInbox     Folder = "Inbox"
	FolderFlagged   Folder = "Flagged"
	FolderImportant Folder = "Important"
	FolderSent      Folder = "Sent"
	FolderDrafts    Folder = "Drafts"
	FolderAll       Folder = "All"
	FolderArchive   Folder = "Archive"
	FolderJunk      Folder = "Junk"
	FolderTrash     Folder = "Trash"
)

// IsStandardFolder reports whether folder is the given standard folder.
// The match is case-insensitive on the whole name, or on the tag of a tagged
// name such as "Inbox:INBOX". Nested folders like "Work/Inbox" are not standard.
func IsStandardFolder(folder string, standard Folder) bool {
	if folder == "" {
		return false
	}
	name := strings.ToLower(folder)
	target := strings.ToLower(string(standard))
	return name == target || strings.HasPrefix(name, target+":")
}

// Email is the summary of a message, enough to render a mailbox row.
type Email struct {
	MessageID   string       `json:"message_id"`
	UID         string       `json:"uid"`
	Sender      string       `json:"sender"`
	Receivers   string       `json:"receivers"`
	Date        string       `json:"date"`
	Subject     string       `json:"subject"`
	Flags       []string     `json:"flags,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// EmailContent is the full message fetched lazily for a single email.
type EmailContent struct {
	Email
	Body                string `json:"body"`
	CC                  string `json:"cc,omitempty"`
	BCC                 string `json:"bcc,omitempty"`
	InReplyTo           string `json:"in_reply_to,omitempty"`
	References          string `json:"references,omitempty"`
	ListUnsubscribe     string `json:"list_unsubscribe,omitempty"`
	ListUnsubscribePost string `json:"list_unsubscribe_post,omitempty"`
}

type Attachment struct {
	Name string `json:"name"`
	Size string `json:"size"`
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
	CID  string `json:"cid,omitempty"`
}

// Window is the three-segment view over a folder's ordered emails.
// Prev ++ Current ++ Next is always a contiguous slice of the folder.
type Window struct {
	Prev    []Email `json:"prev"`
	Current []Email `json:"current"`
	Next    []Email `json:"next"`
}

// Len returns the total number of emails held by the window.
func (w Window) Len() int {
	return len(w.Prev) + len(w.Current) + len(w.Next)
}

// Clone returns a deep copy of the window's segment slices.
func (w Window) Clone() Window {
	return Window{
		Prev:    append([]Email(nil), w.Prev...),
		Current: append([]Email(nil), w.Current...),
		Next:    append([]Email(nil), w.Next...),
	}
}

// Mailbox is a per-account, per-folder view.
type Mailbox struct {
	Folder string `json:"folder"`
	Emails Window `json:"emails"`
	Total  int    `json:"total"`
}

// RawMailbox is the flat mailbox shape returned by the backend.
type RawMailbox struct {
	Folder string  `json:"folder"`
	Emails []Email `json:"emails"`
	Total  int     `json:"total"`
}
