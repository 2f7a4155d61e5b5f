package replica

import (
	"log/slog"
	"slices"

	"github.com/drewdru/ponyTown-sub010/internal/index"
	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
)

// maintainer keeps the state derived from mirrored accounts: the e-mail,
// device and note-reference indices, the child lists, and the origins
// relation. Its methods are the lifecycle hooks of the collections and run
// on the replica loop.
//
// INVARIANT: at every quiescent point each index equals the one obtained by
// scanning all mirrored accounts.
type maintainer struct {
	r      *Replica
	logger *slog.Logger

	byEmail  *index.Multi
	byDevice *index.Multi
	byNote   *index.Multi

	characters *children[model.Character, model.CharacterView]
	auths      *children[model.Auth, model.AuthView]

	originLists *live.Arena[string, *live.ObservableList[string, model.OriginView]]

	watchers []func(accountID string, present bool)
}

func newMaintainer(r *Replica, logger *slog.Logger) *maintainer {
	hasAccount := func(id string) bool { return r.Accounts.Has(id) }
	return &maintainer{
		r:        r,
		logger:   logger,
		byEmail:  index.NewMulti(),
		byDevice: index.NewMulti(),
		byNote:   index.NewMulti(),
		characters: newChildren(model.CharactersCollection,
			model.CharacterID, model.CharacterParent, model.CompareCharacters, model.CleanCharacter,
			hasAccount, logger),
		auths: newChildren(model.AuthsCollection,
			model.AuthID, model.AuthParent, model.CompareAuths, model.CleanAuth,
			hasAccount, logger),
		originLists: live.NewArena[string, *live.ObservableList[string, model.OriginView]](nil),
	}
}

func (m *maintainer) accountAdded(a *model.Account) {
	m.byEmail.Add(a.ID, a.Emails...)
	m.byDevice.Add(a.ID, a.BrowserID)
	m.byNote.Add(a.ID, a.NoteRefs()...)

	// A list subscribed before the account arrived was built empty.
	if list, ok := m.originLists.Lookup(a.ID); ok {
		list.Replace(originIPs(a))
	}
	m.notify(a.ID, true)
}

func (m *maintainer) accountUpdated(old, cur *model.Account) {
	m.byEmail.Move(cur.ID, old.Emails, cur.Emails)
	m.byDevice.Move(cur.ID, []string{old.BrowserID}, []string{cur.BrowserID})
	m.byNote.Move(cur.ID, old.NoteRefs(), cur.NoteRefs())

	if !slices.Equal(old.Origins, cur.Origins) {
		if list, ok := m.originLists.Lookup(cur.ID); ok {
			list.Replace(originIPs(cur))
		}
	}
	m.notify(cur.ID, true)
}

func (m *maintainer) accountDeleted(a *model.Account) {
	m.byEmail.Remove(a.ID, a.Emails...)
	m.byDevice.Remove(a.ID, a.BrowserID)
	m.byNote.Remove(a.ID, a.NoteRefs()...)

	m.characters.parentDeleted(a.ID)
	m.auths.parentDeleted(a.ID)
	if list, ok := m.originLists.Lookup(a.ID); ok {
		list.Replace(nil)
	}
	m.notify(a.ID, false)
}

// sweep runs after every applied account batch.
func (m *maintainer) sweep() {
	m.characters.sweep()
	m.auths.sweep()
}

func (m *maintainer) originChanged(o *model.Origin) {
	m.originLists.Each(
		func(string) bool { return true },
		func(_ string, list *live.ObservableList[string, model.OriginView]) {
			if list.Contains(o.ID) {
				list.Refresh()
			}
		},
	)
}

func (m *maintainer) subscribeOrigins(accountID string, fn func([]model.OriginView)) (unsubscribe func()) {
	list, release := m.originLists.Acquire(accountID, func() *live.ObservableList[string, model.OriginView] {
		var ips []string
		if a := m.r.Accounts.Get(accountID); a != nil {
			ips = originIPs(a)
		}
		return live.NewObservableList(&ips, m.originView(accountID))
	})
	unsub := list.Subscribe(fn)
	return func() {
		unsub()
		release()
	}
}

// originView maps an address of accountID to what is known about it,
// stamped with the account's own last visit from there.
func (m *maintainer) originView(accountID string) func(ip string) model.OriginView {
	return func(ip string) model.OriginView {
		view := model.OriginView{IP: ip, Country: model.UnknownCountry}
		if o := m.r.Origins.Get(ip); o != nil {
			view = model.CleanOrigin(o)
		}
		if a := m.r.Accounts.Get(accountID); a != nil {
			for _, ref := range a.Origins {
				if ref.IP != ip {
					continue
				}
				view.Last = ref.Last
				if view.Country == model.UnknownCountry && ref.Country != "" {
					view.Country = ref.Country
				}
				break
			}
		}
		return view
	}
}

func (m *maintainer) notify(accountID string, present bool) {
	for _, fn := range m.watchers {
		fn(accountID, present)
	}
}

func originIPs(a *model.Account) []string {
	out := make([]string, 0, len(a.Origins))
	for _, ref := range a.Origins {
		if ref.IP == "" || slices.Contains(out, ref.IP) {
			continue
		}
		out = append(out, ref.IP)
	}
	return out
}
