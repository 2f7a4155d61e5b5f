package model

import (
	"fmt"
	"slices"
	"time"
)

// AccountFlags is a bit set of administrative account markers.
type AccountFlags uint32

const (
	// FlagNoAutoMerge excludes the account from automatic duplicate merges,
	// both as the checked account and as a candidate.
	FlagNoAutoMerge AccountFlags = 1 << iota

	// FlagMerged marks an account that already absorbed a duplicate.
	FlagMerged

	// FlagSuspicious is set by moderators for review.
	FlagSuspicious
)

// Has reports whether every bit in f is set.
func (a AccountFlags) Has(f AccountFlags) bool { return a&f == f }

// OriginRef records an address an account connected from.
type OriginRef struct {
	IP      string    `json:"ip" bson:"ip" yaml:"ip"`
	Country string    `json:"country,omitempty" bson:"country,omitempty" yaml:"country,omitempty"`
	Last    time.Time `json:"last" bson:"last" yaml:"last"`
}

// Account is a top-level player account.
type Account struct {
	ID        string       `json:"id" bson:"_id" yaml:"id"`
	Name      string       `json:"name" bson:"name" yaml:"name"`
	Emails    []string     `json:"emails,omitempty" bson:"emails,omitempty" yaml:"emails,omitempty"`
	Note      string       `json:"note,omitempty" bson:"note,omitempty" yaml:"note,omitempty"`
	BrowserID string       `json:"browserId,omitempty" bson:"browserId,omitempty" yaml:"browserId,omitempty"`
	Origins   []OriginRef  `json:"origins,omitempty" bson:"origins,omitempty" yaml:"origins,omitempty"`
	Flags     AccountFlags `json:"flags,omitempty" bson:"flags,omitempty" yaml:"flags,omitempty"`
	LastVisit time.Time    `json:"lastVisit" bson:"lastVisit" yaml:"lastVisit"`
	Stamps    `bson:",inline" yaml:",inline"`
}

// RecordID returns the account id.
func (a *Account) RecordID() string { return a.ID }

// NoteRefs returns the ids referenced in the account's note.
func (a *Account) NoteRefs() []string { return ExtractRefs(a.Note, a.ID) }

// AccountView is the snapshot sent to subscribers. Origins are exposed
// through the origins relation instead.
type AccountView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Emails      []string     `json:"emails,omitempty"`
	Note        string       `json:"note,omitempty"`
	BrowserID   string       `json:"browserId,omitempty"`
	Flags       AccountFlags `json:"flags,omitempty"`
	OriginCount int          `json:"originCount"`
	LastVisit   time.Time    `json:"lastVisit"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// AccountID keys a mirrored account.
func AccountID(a *Account) string { return a.ID }

// AccountStamp returns the watermark stamp of an account.
func AccountStamp(a *Account) time.Time { return a.UpdatedAt }

// CleanAccount builds the subscriber snapshot.
func CleanAccount(a *Account) AccountView {
	return AccountView{
		ID:          a.ID,
		Name:        a.Name,
		Emails:      slices.Clone(a.Emails),
		Note:        a.Note,
		BrowserID:   a.BrowserID,
		Flags:       a.Flags,
		OriginCount: len(a.Origins),
		LastVisit:   a.LastVisit,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// FixAccount canonicalizes a fetched account in place.
func FixAccount(a *Account) error {
	a.ID = NormalizeID(a.ID)
	if a.ID == "" {
		return fmt.Errorf("account: %w", ErrMissingID)
	}
	a.Emails = CanonicalEmails(a.Emails)
	a.BrowserID = CanonicalDevice(a.BrowserID)
	for i := range a.Origins {
		a.Origins[i].IP = NormalizeIP(a.Origins[i].IP)
	}
	return nil
}
