package models

// Account is a connected email account, keyed by its address.
type Account struct {
	EmailAddress string    `json:"email_address"`
	Fullname     string    `json:"fullname,omitempty"`
	Avatar       *Identity `json:"avatar,omitempty"`
}

// AccountsResult is the backend's split of connected and failed accounts.
type AccountsResult struct {
	Connected []Account `json:"connected"`
	Failed    []Account `json:"failed"`
}

// Identity is a display avatar. Exactly one of Gravatar or Local is set.
type Identity struct {
	Gravatar *Gravatar    `json:"gravatar,omitempty"`
	Local    *LocalAvatar `json:"local,omitempty"`
}

// IsRemote reports whether the identity came from a remote hash lookup.
func (i Identity) IsRemote() bool {
	return i.Gravatar != nil
}

type Gravatar struct {
	Hash     string `json:"hash"`
	Fullname string `json:"fullname,omitempty"`
}

type LocalAvatar struct {
	BG       string `json:"bg"`
	FG       string `json:"fg"`
	Initials string `json:"initials"`
}
