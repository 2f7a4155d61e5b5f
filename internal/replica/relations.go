package replica

import (
	"errors"
	"fmt"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
)

// RelationKind names a per-account list a subscriber can watch.
type RelationKind string

const (
	RelationCharacters RelationKind = "characters"
	RelationAuths      RelationKind = "auths"
	RelationOrigins    RelationKind = "origins"
)

// ErrUnknownRelation is returned for a RelationKind the replica does not
// serve.
var ErrUnknownRelation = errors.New("unknown relation")

// SubscribeAccount watches one account's clean snapshot.
func (r *Replica) SubscribeAccount(id string, fn live.Listener[model.AccountView]) (unsubscribe func()) {
	return r.Accounts.Subscribe(model.NormalizeID(id), fn)
}

// SubscribeOrigin watches what is known about one address. An address
// without findings is delivered as a placeholder with an unknown country.
func (r *Replica) SubscribeOrigin(ip string, fn live.Listener[model.OriginView]) (unsubscribe func()) {
	return r.Origins.Subscribe(model.NormalizeIP(ip), fn)
}

// SubscribeCharacters watches the ordered characters of an account. With
// lazy children on, the first subscriber triggers a fetch of the account's
// characters.
func (r *Replica) SubscribeCharacters(accountID string, fn func([]model.CharacterView)) (unsubscribe func()) {
	accountID = model.NormalizeID(accountID)
	if r.opts.LazyChildren && r.m.characters.lists.Refs(accountID) == 0 {
		r.fetchCharacters(accountID)
	}
	return r.m.characters.subscribe(accountID, fn)
}

// SubscribeAuths watches the ordered login providers of an account.
func (r *Replica) SubscribeAuths(accountID string, fn func([]model.AuthView)) (unsubscribe func()) {
	return r.m.auths.subscribe(model.NormalizeID(accountID), fn)
}

// SubscribeOrigins watches the addresses an account connected from.
func (r *Replica) SubscribeOrigins(accountID string, fn func([]model.OriginView)) (unsubscribe func()) {
	return r.m.subscribeOrigins(model.NormalizeID(accountID), fn)
}

// SubscribeRelation is the untyped form of the Subscribe* relation methods,
// for transports that serialize whatever they are handed. fn receives a
// []model.CharacterView, []model.AuthView or []model.OriginView.
func (r *Replica) SubscribeRelation(accountID string, kind RelationKind, fn func(views any)) (unsubscribe func(), err error) {
	switch kind {
	case RelationCharacters:
		return r.SubscribeCharacters(accountID, func(v []model.CharacterView) { fn(v) }), nil
	case RelationAuths:
		return r.SubscribeAuths(accountID, func(v []model.AuthView) { fn(v) }), nil
	case RelationOrigins:
		return r.SubscribeOrigins(accountID, func(v []model.OriginView) { fn(v) }), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRelation, kind)
	}
}

// RelationSubscribers returns how many subscribers watch a relation.
func (r *Replica) RelationSubscribers(accountID string, kind RelationKind) int {
	accountID = model.NormalizeID(accountID)
	switch kind {
	case RelationCharacters:
		return r.m.characters.lists.Refs(accountID)
	case RelationAuths:
		return r.m.auths.lists.Refs(accountID)
	case RelationOrigins:
		return r.m.originLists.Refs(accountID)
	}
	return 0
}

// fetchCharacters loads one account's characters off the loop and applies
// them on it.
func (r *Replica) fetchCharacters(accountID string) {
	go func() {
		batch, err := r.Characters.PullFilter(r.ctx, live.Filter{"account": accountID})
		if err != nil {
			r.logger.Error("character fetch failed", "account", accountID, "error", err)
			return
		}
		if err := r.Exec(r.ctx, func() { r.Characters.Apply(batch) }); err != nil {
			r.logger.Warn("character fetch dropped", "account", accountID, "error", err)
		}
	}()
}
