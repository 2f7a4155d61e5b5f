package live_test

import (
	"cmp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

type entry struct {
	name string
	rank int
}

func byRank(a, b *entry) int { return cmp.Compare(a.rank, b.rank) }

func label(e *entry) string { return e.name }

func TestObservableList_SubscribeDeliversImmediately(t *testing.T) {
	var backing []*entry
	list := live.NewObservableList(&backing, label)

	var got [][]string
	list.Subscribe(func(v []string) { got = append(got, v) })

	assert.Equal(t, [][]string{{}}, got)
}

func TestObservableList_MutationsUpdateBacking(t *testing.T) {
	var backing []*entry
	list := live.NewObservableList(&backing, label)
	a, b := &entry{name: "a", rank: 2}, &entry{name: "b", rank: 1}

	list.Push(a)
	list.PushOrdered(b, byRank)
	assert.Equal(t, []*entry{b, a}, backing)

	assert.True(t, list.Remove(a))
	assert.False(t, list.Remove(a))
	assert.Equal(t, []*entry{b}, backing)
	assert.Equal(t, 1, list.Len())
	assert.True(t, list.Contains(b))
}

func TestObservableList_NoSubscribersNoMapping(t *testing.T) {
	var backing []*entry
	mapped := 0
	list := live.NewObservableList(&backing, func(e *entry) string {
		mapped++
		return e.name
	})

	list.Push(&entry{name: "a"})
	list.Replace(nil)

	assert.Equal(t, 0, mapped)
	assert.Empty(t, backing)
}

func TestObservableList_PushOrderedIsStable(t *testing.T) {
	var backing []*entry
	list := live.NewObservableList(&backing, label)

	for _, e := range []*entry{{"c", 2}, {"a", 1}, {"d", 2}, {"b", 1}, {"e", 0}} {
		list.PushOrdered(e, byRank)
	}

	var names []string
	for _, e := range backing {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, names)
}

func TestObservableList_UnsubscribeDuringNotify(t *testing.T) {
	var backing []*entry
	list := live.NewObservableList(&backing, label)

	calls := 0
	var unsubSecond func()
	list.Subscribe(func([]string) {
		if unsubSecond != nil {
			unsubSecond()
		}
	})
	unsubSecond = list.Subscribe(func([]string) { calls++ })
	calls = 0

	list.Push(&entry{name: "a"})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, list.Subscribers())
}

// TestObservableList_Transcript records every delivered view while a list is
// mutated, and compares against a golden transcript.
func TestObservableList_Transcript(t *testing.T) {
	var backing []*entry
	list := live.NewObservableList(&backing, label)

	var sb strings.Builder
	list.Subscribe(func(v []string) {
		sb.WriteString("[" + strings.Join(v, ",") + "]\n")
	})

	x, y, z := &entry{"x", 3}, &entry{"y", 1}, &entry{"z", 2}
	list.PushOrdered(x, byRank)
	list.PushOrdered(y, byRank)
	list.PushOrdered(z, byRank)
	list.Remove(y)
	list.Replace([]*entry{z})
	x.name = "x2"
	list.Push(x)
	list.Refresh()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "observable_transcript", []byte(sb.String()))
}
