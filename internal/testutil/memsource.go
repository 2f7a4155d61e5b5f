package testutil

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/drewdru/ponyTown-sub010/internal/live"
)

// MemSource is an in-memory live.Source for tests.
//
// Documents are stored as JSON so that the mirror never shares memory with
// the "store", matching what a real driver hands back.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemSource[T any] struct {
	mu    sync.Mutex
	id    func(*T) string
	stamp func(*T) time.Time
	docs  map[string][]byte
	meta  map[string]time.Time

	failNext error
	calls    int
}

// NewMemSource creates an empty source keyed by id and ordered by stamp.
func NewMemSource[T any](id func(*T) string, stamp func(*T) time.Time) *MemSource[T] {
	return &MemSource[T]{
		id:    id,
		stamp: stamp,
		docs:  make(map[string][]byte),
		meta:  make(map[string]time.Time),
	}
}

// Put stores a copy of each item, replacing any document with the same id.
func (s *MemSource[T]) Put(items ...*T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		body, err := json.Marshal(item)
		if err != nil {
			panic(fmt.Sprintf("MemSource: marshal: %v", err))
		}
		id := s.id(item)
		s.docs[id] = body
		s.meta[id] = s.stamp(item)
	}
}

// PutRaw stores body as-is under id with the given stamp. Bodies that do
// not decode into T come back as rows carrying an error.
func (s *MemSource[T]) PutRaw(id string, stamp time.Time, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = []byte(body)
	s.meta[id] = stamp
}

// Drop removes a document without going through Delete (an external
// deletion the mirror has not seen).
func (s *MemSource[T]) Drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.meta, id)
}

// FailNext makes the next query return err.
func (s *MemSource[T]) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Calls returns the number of queries served.
func (s *MemSource[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Len returns the number of stored documents.
func (s *MemSource[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// FindChangedSince implements live.Source.
func (s *MemSource[T]) FindChangedSince(ctx context.Context, since time.Time, limit int) ([]live.Row[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return nil, err
	}

	var ids []string
	for id, stamp := range s.meta {
		if since.IsZero() || stamp.After(since) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := s.meta[a].Compare(s.meta[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	rows := make([]live.Row[T], len(ids))
	for i, id := range ids {
		item, err := s.decode(id)
		rows[i] = live.Row[T]{ID: id, Stamp: s.meta[id], Item: item, Err: err}
	}
	return rows, nil
}

// Find implements live.Source. Filter values are compared against
// top-level JSON fields by their printed form.
func (s *MemSource[T]) Find(ctx context.Context, filter live.Filter) ([]*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return nil, err
	}

	var ids []string
	for id, body := range s.docs {
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			continue
		}
		match := true
		for k, v := range filter {
			if fmt.Sprint(fields[k]) != fmt.Sprint(v) {
				match = false
				break
			}
		}
		if match {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		if item, err := s.decode(id); err == nil {
			out = append(out, item)
		}
	}
	return out, nil
}

// Delete implements live.Source.
func (s *MemSource[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return err
	}
	delete(s.docs, id)
	delete(s.meta, id)
	return nil
}

// ListIDs implements live.Source.
func (s *MemSource[T]) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.take(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *MemSource[T]) take() error {
	s.calls++
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *MemSource[T]) decode(id string) (*T, error) {
	item := new(T)
	if err := json.Unmarshal(s.docs[id], item); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return item, nil
}
