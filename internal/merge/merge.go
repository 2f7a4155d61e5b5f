// Package merge implements the account merge transport on top of the
// document store.
//
// A merge folds the absorbed account into the kept one, moves its
// characters and login providers over, deletes it, and records a merge
// event. The replica observes all of that on its next polls.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/store"
)

// ErrSameAccount is returned when asked to merge an account into itself.
var ErrSameAccount = errors.New("cannot merge an account into itself")

// Merger merges accounts stored in a store.Store.
//
// Writes are ordered so that an interrupted merge loses nothing: the kept
// account is written first and the absorbed one is deleted last but one,
// before the event is recorded.
type Merger struct {
	accounts   *store.Source[model.Account]
	auths      *store.Source[model.Auth]
	characters *store.Source[model.Character]
	events     *store.Source[model.Event]

	clock  live.Clock
	ids    model.IDGenerator
	logger *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithClock overrides the wall clock (tests).
func WithClock(c live.Clock) Option {
	return func(m *Merger) { m.clock = c }
}

// WithIDs overrides the event id generator (tests).
func WithIDs(ids model.IDGenerator) Option {
	return func(m *Merger) { m.ids = ids }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) { m.logger = l }
}

// New creates a Merger over st.
func New(st *store.Store, opts ...Option) *Merger {
	m := &Merger{
		accounts:   store.NewSource[model.Account](st, model.AccountsCollection),
		auths:      store.NewSource[model.Auth](st, model.AuthsCollection),
		characters: store.NewSource[model.Character](st, model.CharactersCollection),
		events:     store.NewSource[model.Event](st, model.EventsCollection),
		clock:      live.SystemClock{},
		ids:        model.UUIDv7{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeAccounts folds absorbID into keepID. Implements dupes.Merger.
func (m *Merger) MergeAccounts(ctx context.Context, keepID, absorbID, reason string, automatic bool) error {
	keepID, absorbID = model.NormalizeID(keepID), model.NormalizeID(absorbID)
	if keepID == absorbID {
		return fmt.Errorf("merge %s: %w", keepID, ErrSameAccount)
	}

	keep, err := m.accounts.Get(ctx, keepID)
	if err != nil {
		return fmt.Errorf("load kept account %s: %w", keepID, err)
	}
	absorb, err := m.accounts.Get(ctx, absorbID)
	if err != nil {
		return fmt.Errorf("load absorbed account %s: %w", absorbID, err)
	}

	now := m.clock.Now()
	Fold(keep, absorb)
	keep.Touch(now)
	if err := m.accounts.Put(ctx, keep); err != nil {
		return fmt.Errorf("write kept account %s: %w", keepID, err)
	}

	moved, err := m.reparent(ctx, absorbID, keepID)
	if err != nil {
		return err
	}

	if err := m.accounts.Delete(ctx, absorbID); err != nil {
		return fmt.Errorf("delete absorbed account %s: %w", absorbID, err)
	}

	mode := "manual"
	if automatic {
		mode = "auto"
	}
	event := &model.Event{
		ID:      m.ids.NewID(),
		Type:    model.EventMerge,
		Message: fmt.Sprintf("merged %s into %s (%s)", absorbID, keepID, mode),
		Desc:    reason,
		Account: keepID,
		Count:   1,
	}
	event.Touch(now)
	if err := m.events.Put(ctx, event); err != nil {
		return fmt.Errorf("record merge event: %w", err)
	}

	m.logger.Info("accounts merged",
		"keep", keepID,
		"absorb", absorbID,
		"moved", moved,
		"automatic", automatic,
	)
	return nil
}

// reparent moves every character and auth of from to to. Returns the
// number of moved records.
func (m *Merger) reparent(ctx context.Context, from, to string) (int, error) {
	now := m.clock.Now()
	filter := live.Filter{"account": from}

	chars, err := m.characters.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("find characters of %s: %w", from, err)
	}
	for _, c := range chars {
		c.Account = to
		c.Touch(now)
		if err := m.characters.Put(ctx, c); err != nil {
			return 0, fmt.Errorf("move character %s: %w", c.ID, err)
		}
	}

	auths, err := m.auths.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("find auths of %s: %w", from, err)
	}
	for _, a := range auths {
		a.Account = to
		a.Touch(now)
		if err := m.auths.Put(ctx, a); err != nil {
			return 0, fmt.Errorf("move auth %s: %w", a.ID, err)
		}
	}
	return len(chars) + len(auths), nil
}

// Fold merges the data of absorb into keep: e-mails and origins are
// unioned, notes concatenated, the earliest creation and the latest visit
// kept.
func Fold(keep, absorb *model.Account) {
	keep.Emails = model.CanonicalEmails(append(slices.Clone(keep.Emails), absorb.Emails...))
	keep.Origins = foldOrigins(keep.Origins, absorb.Origins)

	if note := strings.TrimSpace(absorb.Note); note != "" && !strings.Contains(keep.Note, note) {
		keep.Note = strings.TrimSpace(keep.Note + "\n" + note)
	}
	if keep.BrowserID == "" {
		keep.BrowserID = absorb.BrowserID
	}
	if absorb.LastVisit.After(keep.LastVisit) {
		keep.LastVisit = absorb.LastVisit
	}
	if !absorb.CreatedAt.IsZero() && (keep.CreatedAt.IsZero() || absorb.CreatedAt.Before(keep.CreatedAt)) {
		keep.CreatedAt = absorb.CreatedAt
	}
	keep.Flags |= model.FlagMerged | absorb.Flags&model.FlagSuspicious
}

func foldOrigins(keep, absorb []model.OriginRef) []model.OriginRef {
	out := slices.Clone(keep)
	for _, ref := range absorb {
		i := slices.IndexFunc(out, func(o model.OriginRef) bool { return o.IP == ref.IP })
		if i < 0 {
			out = append(out, ref)
			continue
		}
		if ref.Last.After(out[i].Last) {
			out[i].Last = ref.Last
		}
		if out[i].Country == "" {
			out[i].Country = ref.Country
		}
	}
	return out
}
