package live_test

import (
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
	"github.com/drewdru/ponyTown-sub010/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type item struct {
	ID      string    `json:"id"`
	Owner   string    `json:"owner,omitempty"`
	Value   string    `json:"value,omitempty"`
	Bad     bool      `json:"bad,omitempty"`
	Updated time.Time `json:"updated"`
}

type view struct {
	ID    string
	Value string
}

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func newItem(id, value string, ms int) *item {
	return &item{ID: id, Value: value, Updated: at(ms)}
}

func newItemSource() *testutil.MemSource[item] {
	return testutil.NewMemSource(
		func(it *item) string { return it.ID },
		func(it *item) time.Time { return it.Updated },
	)
}

func baseConfig() live.Config[item, view] {
	return live.Config[item, view]{
		Name:  "items",
		ID:    func(it *item) string { return it.ID },
		Stamp: func(it *item) time.Time { return it.Updated },
		Clean: func(it *item) view { return view{ID: it.ID, Value: it.Value} },
	}
}

// recorder collects every snapshot delivered to a listener.
type recorder struct {
	calls []*view
}

func (r *recorder) listen(s *view) { r.calls = append(r.calls, s) }

func (r *recorder) values() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		if c == nil {
			out[i] = "<deleted>"
			continue
		}
		out[i] = c.Value
	}
	return out
}

func sortedIDs(items []*item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
