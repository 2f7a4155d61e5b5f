package dupes

import (
	"fmt"
	"strings"

	"github.com/drewdru/ponyTown-sub010/internal/model"
)

// KeepPolicy decides which of two duplicate accounts survives a merge.
type KeepPolicy func(a, b *model.Account) (keep, absorb *model.Account)

// PreferRecentVisit keeps the account visited most recently, treating it
// as the identity the player actually uses. Ties keep the older account.
func PreferRecentVisit(a, b *model.Account) (keep, absorb *model.Account) {
	switch {
	case a.LastVisit.After(b.LastVisit):
		return a, b
	case b.LastVisit.After(a.LastVisit):
		return b, a
	}
	return PreferOlderAccount(a, b)
}

// PreferOlderAccount keeps the account created first. Ties keep the lower
// id.
func PreferOlderAccount(a, b *model.Account) (keep, absorb *model.Account) {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	case b.CreatedAt.Before(a.CreatedAt):
		return b, a
	}
	if a.ID <= b.ID {
		return a, b
	}
	return b, a
}

// Policy names accepted by ParseKeepPolicy.
const (
	PolicyRecentVisit  = "recent-visit"
	PolicyOlderAccount = "older-account"
)

// ParseKeepPolicy resolves a configured policy name. An empty name selects
// PreferRecentVisit.
func ParseKeepPolicy(name string) (KeepPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyRecentVisit:
		return PreferRecentVisit, nil
	case PolicyOlderAccount:
		return PreferOlderAccount, nil
	default:
		return nil, fmt.Errorf("unknown keep policy %q (want %s or %s)", name, PolicyRecentVisit, PolicyOlderAccount)
	}
}
