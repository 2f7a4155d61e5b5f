package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
	"github.com/drewdru/ponyTown-sub010/internal/testutil"
)

// Epoch is the manual clock's starting time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// stepTick separates the stamps of consecutive steps.
const stepTick = time.Millisecond

// Harness executes one scenario against a fresh replica.
// It is single-goroutine: every step, poll and delivery happens on the
// caller's goroutine.
type Harness struct {
	rep   *replica.Replica
	clock *testutil.ManualClock
	ex    *live.Inline

	accounts   *testutil.MemSource[model.Account]
	auths      *testutil.MemSource[model.Auth]
	characters *testutil.MemSource[model.Character]
	origins    *testutil.MemSource[model.Origin]
	events     *testutil.MemSource[model.Event]

	subs   map[string]func()
	step   int
	result *Result
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs over fresh in-memory sources and a manual clock, so
// repeated runs produce identical traces. A step that cannot be carried out
// aborts the run with an error; failed assertions are reported in the
// result instead.
func Run(scenario *Scenario) (*Result, error) {
	h := newHarness(scenario.PageSize)
	ctx := context.Background()

	for i := range scenario.Steps {
		h.step = i + 1
		if err := h.execute(ctx, &scenario.Steps[i]); err != nil {
			return nil, fmt.Errorf("step %d: %w", h.step, err)
		}
		h.clock.Advance(stepTick)
	}

	for _, unsub := range h.subs {
		unsub()
	}

	h.result.State = h.capture()
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(errMsg)
	}
	return h.result, nil
}

func newHarness(pageSize int) *Harness {
	h := &Harness{
		clock:      testutil.NewManualClock(Epoch),
		ex:         &live.Inline{},
		accounts:   testutil.NewMemSource(model.AccountID, model.AccountStamp),
		auths:      testutil.NewMemSource(model.AuthID, model.AuthStamp),
		characters: testutil.NewMemSource(model.CharacterID, model.CharacterStamp),
		origins:    testutil.NewMemSource(model.OriginID, model.OriginStamp),
		events:     testutil.NewMemSource(model.EventID, model.EventStamp),
		subs:       make(map[string]func()),
		result:     NewResult(),
	}

	opts := replica.DefaultOptions()
	opts.PageSize = pageSize
	opts.Clock = h.clock
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h.rep = replica.New(replica.Sources{
		Accounts:   h.accounts,
		Auths:      h.auths,
		Characters: h.characters,
		Origins:    h.origins,
		Events:     h.events,
	}, opts)
	return h
}

func (h *Harness) execute(ctx context.Context, st *Step) error {
	switch {
	case st.Put != nil:
		return h.put(st.Put)
	case st.Drop != nil:
		h.drop(st.Drop)
		return nil
	case st.Remove != nil:
		return h.remove(ctx, st.Remove)
	case st.Poll:
		return h.rep.Load(ctx)
	case st.Prune:
		return h.prune(ctx)
	case st.Subscribe != nil:
		return h.subscribe(st.Subscribe)
	case st.Unsubscribe != "":
		unsub, ok := h.subs[st.Unsubscribe]
		if !ok {
			return fmt.Errorf("unknown subscription %q", st.Unsubscribe)
		}
		unsub()
		delete(h.subs, st.Unsubscribe)
		return nil
	case st.Advance > 0:
		h.clock.Advance(st.Advance)
		return nil
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) put(recs *Records) error {
	now := h.clock.Now()
	for _, a := range recs.Accounts {
		if err := prepare(a, &a.Stamps, model.FixAccount, now); err != nil {
			return err
		}
		h.accounts.Put(a)
	}
	for _, o := range recs.Origins {
		if err := prepare(o, &o.Stamps, model.FixOrigin, now); err != nil {
			return err
		}
		h.origins.Put(o)
	}
	for _, a := range recs.Auths {
		if err := prepare(a, &a.Stamps, model.FixAuth, now); err != nil {
			return err
		}
		h.auths.Put(a)
	}
	for _, c := range recs.Characters {
		if err := prepare(c, &c.Stamps, model.FixCharacter, now); err != nil {
			return err
		}
		h.characters.Put(c)
	}
	return nil
}

// prepare canonicalizes a record the way a store write would and stamps it
// when the scenario left its updatedAt empty.
func prepare[T any](item *T, stamps *model.Stamps, fix func(*T) error, now time.Time) error {
	if err := fix(item); err != nil {
		return err
	}
	if stamps.UpdatedAt.IsZero() {
		stamps.Touch(now)
	}
	return nil
}

func (h *Harness) drop(byCollection map[string][]string) {
	for name, ids := range byCollection {
		for _, id := range ids {
			switch name {
			case model.AccountsCollection:
				h.accounts.Drop(model.NormalizeID(id))
			case model.AuthsCollection:
				h.auths.Drop(model.NormalizeID(id))
			case model.CharactersCollection:
				h.characters.Drop(model.NormalizeID(id))
			case model.OriginsCollection:
				h.origins.Drop(model.NormalizeIP(id))
			}
		}
	}
}

func (h *Harness) remove(ctx context.Context, byCollection map[string][]string) error {
	// Sorted so that listeners fire in a stable order.
	names := make([]string, 0, len(byCollection))
	for name := range byCollection {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		for _, id := range byCollection[name] {
			var err error
			switch name {
			case model.AccountsCollection:
				err = h.rep.Accounts.Remove(ctx, model.NormalizeID(id))
			case model.AuthsCollection:
				err = h.rep.Auths.Remove(ctx, model.NormalizeID(id))
			case model.CharactersCollection:
				err = h.rep.Characters.Remove(ctx, model.NormalizeID(id))
			case model.OriginsCollection:
				err = h.rep.Origins.Remove(ctx, model.NormalizeIP(id))
			default:
				err = fmt.Errorf("unknown collection %q", name)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Harness) prune(ctx context.Context) error {
	prunes := []func(context.Context, live.Executor) (int, error){
		h.rep.Accounts.PruneOnce,
		h.rep.Origins.PruneOnce,
		h.rep.Auths.PruneOnce,
		h.rep.Characters.PruneOnce,
	}
	for _, prune := range prunes {
		if _, err := prune(ctx, h.ex); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) subscribe(sub *Subscription) error {
	if _, dup := h.subs[sub.Label]; dup {
		return fmt.Errorf("duplicate subscription %q", sub.Label)
	}

	var unsub func()
	switch {
	case sub.Origin != "":
		unsub = h.rep.SubscribeOrigin(sub.Origin, func(v *model.OriginView) {
			h.record(sub.Label, formatOrigin(v))
		})
	case sub.Relation == "":
		unsub = h.rep.SubscribeAccount(sub.Account, func(v *model.AccountView) {
			h.record(sub.Label, formatAccount(v))
		})
	default:
		var err error
		unsub, err = h.rep.SubscribeRelation(sub.Account, replica.RelationKind(sub.Relation), func(views any) {
			h.record(sub.Label, formatRelation(views))
		})
		if err != nil {
			return err
		}
	}
	h.subs[sub.Label] = unsub
	return nil
}

func (h *Harness) record(label, value string) {
	h.result.Trace = append(h.result.Trace, TraceEvent{Step: h.step, Label: label, Value: value})
}

// capture reads the final replica state.
func (h *Harness) capture() State {
	state := State{
		Indices: h.rep.IndexSnapshot(),
		Children: map[string]map[string][]string{
			string(replica.RelationCharacters): {},
			string(replica.RelationAuths):      {},
			string(replica.RelationOrigins):    {},
		},
		Unassigned: map[string][]string{
			string(replica.RelationCharacters): sorted(h.rep.UnassignedCharacters()),
			string(replica.RelationAuths):      sorted(h.rep.UnassignedAuths()),
		},
		Mirrored: map[string][]string{
			model.AccountsCollection:   ids(h.rep.Accounts.Items(), model.AccountID),
			model.AuthsCollection:      ids(h.rep.Auths.Items(), model.AuthID),
			model.CharactersCollection: ids(h.rep.Characters.Items(), model.CharacterID),
			model.OriginsCollection:    ids(h.rep.Origins.Items(), model.OriginID),
		},
	}

	for _, a := range h.rep.Accounts.Items() {
		state.Children[string(replica.RelationCharacters)][a.ID] =
			ordered(h.rep.CharactersOf(a.ID), model.CharacterID)
		state.Children[string(replica.RelationAuths)][a.ID] =
			ordered(h.rep.AuthsOf(a.ID), model.AuthID)
		ips := make([]string, 0, len(a.Origins))
		for _, ref := range a.Origins {
			ips = append(ips, ref.IP)
		}
		state.Children[string(replica.RelationOrigins)][a.ID] = ips
	}
	return state
}

func ordered[T any](items []*T, id func(*T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}

func ids[T any](items []*T, id func(*T) string) []string {
	return sorted(ordered(items, id))
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return out
}

const deleted = "<deleted>"

func formatAccount(v *model.AccountView) string {
	if v == nil {
		return deleted
	}
	s := v.ID + " " + v.Name
	if len(v.Emails) > 0 {
		s += " " + list(v.Emails)
	}
	return s
}

func formatOrigin(v *model.OriginView) string {
	if v == nil {
		return deleted
	}
	return v.IP + " " + v.Country
}

func formatRelation(views any) string {
	var out []string
	switch vs := views.(type) {
	case []model.CharacterView:
		for _, v := range vs {
			out = append(out, v.ID+"="+v.Name)
		}
	case []model.AuthView:
		for _, v := range vs {
			out = append(out, v.ID+"="+v.Provider)
		}
	case []model.OriginView:
		for _, v := range vs {
			out = append(out, v.IP+"="+v.Country)
		}
	default:
		return fmt.Sprintf("%v", views)
	}
	return "[" + strings.Join(out, " ") + "]"
}
