package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

func TestPutGet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc := newTestDoc("a1", 5)
	require.NoError(t, s.Put(ctx, "accounts", doc))

	var got testDoc
	require.NoError(t, s.Get(ctx, "accounts", "a1", &got))
	assert.Equal(t, doc.Name, got.Name)
	assert.True(t, doc.UpdatedAt.Equal(got.UpdatedAt))
}

func TestPut_UpsertReplacesBody(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc := newTestDoc("a1", 5)
	require.NoError(t, s.Put(ctx, "accounts", doc))
	doc.Name = "renamed"
	doc.UpdatedAt = at(10)
	require.NoError(t, s.Put(ctx, "accounts", doc))

	var got testDoc
	require.NoError(t, s.Get(ctx, "accounts", "a1", &got))
	assert.Equal(t, "renamed", got.Name)

	n, err := s.Count(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)
	var got testDoc
	err := s.Get(context.Background(), "accounts", "missing", &got)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestChangedSince_StrictlyGreaterAndOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "accounts", newTestDoc("c", 20)))
	require.NoError(t, s.Put(ctx, "accounts", newTestDoc("b", 10)))
	require.NoError(t, s.Put(ctx, "accounts", newTestDoc("a", 10)))
	require.NoError(t, s.Put(ctx, "characters", newTestDoc("x", 30)))

	src := NewSource[testDoc](s, "accounts")

	all, err := src.FindChangedSince(ctx, at(0).Add(-1), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rowIDs(all))
	assert.True(t, at(10).Equal(all[0].Stamp), "stamp comes from the updated_at column")
	assert.Equal(t, "a", all[0].Item.Name)

	after, err := src.FindChangedSince(ctx, at(10), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, rowIDs(after), "stamp equal to since is excluded")

	limited, err := src.FindChangedSince(ctx, at(0).Add(-1), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rowIDs(limited))
}

func TestChangedSince_ZeroSinceMatchesAll(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "accounts", newTestDoc("a", 1)))

	src := NewSource[testDoc](s, "accounts")
	docs, err := src.FindChangedSince(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestFind_FiltersOnBodyFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	d1 := newTestDoc("c1", 1)
	d1.Account = "a1"
	d2 := newTestDoc("c2", 2)
	d2.Account = "a2"
	d3 := newTestDoc("c3", 3)
	d3.Account = "a1"
	d3.Disabled = true
	for _, d := range []*testDoc{d1, d2, d3} {
		require.NoError(t, s.Put(ctx, "characters", d))
	}

	src := NewSource[testDoc](s, "characters")

	got, err := src.Find(ctx, live.Filter{"account": "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c3"}, ids(got))

	got, err = src.Find(ctx, live.Filter{"account": "a1", "disabled": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, ids(got))
}

func TestDeleteAndListIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	src := NewSource[testDoc](s, "accounts")

	for _, id := range []string{"b", "a", "c"} {
		require.NoError(t, src.Put(ctx, newTestDoc(id, 1)))
	}
	require.NoError(t, src.Delete(ctx, "b"))
	require.NoError(t, src.Delete(ctx, "missing"), "deleting a missing document is not an error")

	got, err := src.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestSource_PutRejectsNonRecord(t *testing.T) {
	s := createTestStore(t)
	src := NewSource[struct{ ID string }](s, "misc")
	err := src.Put(context.Background(), &struct{ ID string }{ID: "x"})
	assert.Error(t, err)
}

// putRaw writes a body the Record path would never produce.
func putRaw(t *testing.T, s *Store, collection, id string, updatedMs int, body string) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO documents (collection, id, created_at, updated_at, body) VALUES (?, ?, 0, ?, ?)`,
		collection, id, stampNanos(at(updatedMs)), body)
	require.NoError(t, err)
}

func TestSource_UndecodableBodyIsAnErrorRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "accounts", newTestDoc("good", 1)))
	putRaw(t, s, "accounts", "bad", 2, `{"id":"bad","name":123}`)

	src := NewSource[testDoc](s, "accounts")
	rows, err := src.FindChangedSince(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.NoError(t, rows[0].Err)
	assert.Equal(t, "bad", rows[1].ID)
	assert.True(t, at(2).Equal(rows[1].Stamp))
	assert.Error(t, rows[1].Err)
	assert.Nil(t, rows[1].Item)

	docs, err := src.Find(ctx, live.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(docs), "finds skip undecodable bodies")
}

func TestCollection_UndecodableRowInFullPage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	putRaw(t, s, "accounts", "bad", 1, `{"id":"bad","name":123}`)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, "accounts", newTestDoc(id, 2)))
	}

	c := live.New(live.Config[testDoc, testDoc]{
		Name:     "accounts",
		ID:       func(d *testDoc) string { return d.ID },
		Stamp:    func(d *testDoc) time.Time { return d.UpdatedAt },
		Clean:    func(d *testDoc) testDoc { return *d },
		PageSize: 3,
	}, NewSource[testDoc](s, "accounts"))

	require.NoError(t, c.Update(ctx))
	require.NoError(t, c.Update(ctx))

	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, c.Has(id), "%s mirrored", id)
	}
	assert.False(t, c.Has("bad"))
	assert.True(t, at(2).Equal(c.Watermark()))
}

func rowIDs(rows []live.Row[testDoc]) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func ids(docs []*testDoc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
