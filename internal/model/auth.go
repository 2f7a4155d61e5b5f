package model

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// Auth is a login-provider record attached to an account.
type Auth struct {
	ID       string    `json:"id" bson:"_id" yaml:"id"`
	Account  string    `json:"account,omitempty" bson:"account,omitempty" yaml:"account,omitempty"`
	Provider string    `json:"provider" bson:"provider" yaml:"provider"`
	Name     string    `json:"name,omitempty" bson:"name,omitempty" yaml:"name,omitempty"`
	URL      string    `json:"url,omitempty" bson:"url,omitempty" yaml:"url,omitempty"`
	Disabled bool      `json:"disabled,omitempty" bson:"disabled,omitempty" yaml:"disabled,omitempty"`
	Banned   bool      `json:"banned,omitempty" bson:"banned,omitempty" yaml:"banned,omitempty"`
	LastUsed time.Time `json:"lastUsed" bson:"lastUsed" yaml:"lastUsed"`
	Stamps   `bson:",inline" yaml:",inline"`
}

// RecordID returns the auth id.
func (a *Auth) RecordID() string { return a.ID }

// AuthView is the snapshot sent to subscribers.
type AuthView struct {
	ID       string    `json:"id"`
	Account  string    `json:"account,omitempty"`
	Provider string    `json:"provider"`
	Name     string    `json:"name,omitempty"`
	URL      string    `json:"url,omitempty"`
	Disabled bool      `json:"disabled,omitempty"`
	Banned   bool      `json:"banned,omitempty"`
	LastUsed time.Time `json:"lastUsed"`
}

// AuthID keys a mirrored auth.
func AuthID(a *Auth) string { return a.ID }

// AuthStamp returns the watermark stamp of an auth.
func AuthStamp(a *Auth) time.Time { return a.UpdatedAt }

// AuthParent returns the declared owning account.
func AuthParent(a *Auth) string { return a.Account }

// CleanAuth builds the subscriber snapshot.
func CleanAuth(a *Auth) AuthView {
	return AuthView{
		ID:       a.ID,
		Account:  a.Account,
		Provider: a.Provider,
		Name:     a.Name,
		URL:      a.URL,
		Disabled: a.Disabled,
		Banned:   a.Banned,
		LastUsed: a.LastUsed,
	}
}

// FixAuth canonicalizes a fetched auth in place.
func FixAuth(a *Auth) error {
	a.ID = NormalizeID(a.ID)
	if a.ID == "" {
		return fmt.Errorf("auth: %w", ErrMissingID)
	}
	a.Account = NormalizeID(a.Account)
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	return nil
}

// CompareAuths orders auths under an account: enabled before disabled,
// then by provider, then by name, then by id.
func CompareAuths(a, b *Auth) int {
	if a.Disabled != b.Disabled {
		if a.Disabled {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(a.Provider, b.Provider); c != 0 {
		return c
	}
	if c := cmp.Compare(foldName(a.Name), foldName(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
