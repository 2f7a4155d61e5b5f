package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

// Source adapts one collection of the Store to live.Source for records of
// type T. *T must implement Record for Put.
type Source[T any] struct {
	st         *Store
	collection string
	logger     *slog.Logger
}

// NewSource binds collection to record type T.
func NewSource[T any](st *Store, collection string) *Source[T] {
	return &Source[T]{
		st:         st,
		collection: collection,
		logger:     slog.Default().With("collection", collection),
	}
}

// Collection returns the bound collection name.
func (s *Source[T]) Collection() string { return s.collection }

// FindChangedSince implements live.Source.
// Every stored row yields one live.Row, so a page is full whenever the
// query hit its limit, whether or not each body decoded.
func (s *Source[T]) FindChangedSince(ctx context.Context, since time.Time, limit int) ([]live.Row[T], error) {
	docs, err := s.st.ChangedSince(ctx, s.collection, since, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]live.Row[T], len(docs))
	for i, doc := range docs {
		rows[i] = live.Row[T]{ID: doc.ID, Stamp: doc.Stamp}
		item := new(T)
		if err := json.Unmarshal(doc.Body, item); err != nil {
			rows[i].Err = fmt.Errorf("decode: %w", err)
			continue
		}
		rows[i].Item = item
	}
	return rows, nil
}

// Find implements live.Source.
func (s *Source[T]) Find(ctx context.Context, filter live.Filter) ([]*T, error) {
	bodies, err := s.st.Find(ctx, s.collection, filter)
	if err != nil {
		return nil, err
	}
	return s.decode(bodies), nil
}

// Delete implements live.Source.
func (s *Source[T]) Delete(ctx context.Context, id string) error {
	return s.st.Delete(ctx, s.collection, id)
}

// ListIDs implements live.Source.
func (s *Source[T]) ListIDs(ctx context.Context) ([]string, error) {
	return s.st.ListIDs(ctx, s.collection)
}

// Get loads one record.
func (s *Source[T]) Get(ctx context.Context, id string) (*T, error) {
	out := new(T)
	if err := s.st.Get(ctx, s.collection, id, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Put upserts item.
func (s *Source[T]) Put(ctx context.Context, item *T) error {
	rec, ok := any(item).(Record)
	if !ok {
		return fmt.Errorf("put %s: %T does not implement store.Record", s.collection, item)
	}
	return s.st.Put(ctx, s.collection, rec)
}

// decode unmarshals the bodies of a filtered find. A body that fails to
// decode is logged and skipped.
func (s *Source[T]) decode(bodies [][]byte) []*T {
	out := make([]*T, 0, len(bodies))
	for _, body := range bodies {
		item := new(T)
		if err := json.Unmarshal(body, item); err != nil {
			s.logger.Warn("skipping undecodable document", "error", err)
			continue
		}
		out = append(out, item)
	}
	return out
}
