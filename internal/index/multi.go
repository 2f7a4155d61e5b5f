// Package index maintains multi-valued secondary indices over mirrored
// records.
//
// A Multi maps a derived key (an e-mail, a device id, a referenced record
// id) to the set of record ids currently exhibiting it. Updates are applied
// as key-set differences so that their cost is proportional to what changed,
// not to the size of the index.
package index

import "sort"

// Multi is a key -> set-of-ids index. The zero value is not usable; call
// NewMulti.
type Multi struct {
	buckets map[string]map[string]struct{}
}

// NewMulti creates an empty index.
func NewMulti() *Multi {
	return &Multi{buckets: make(map[string]map[string]struct{})}
}

// Add registers id under every key. Empty keys are ignored.
func (m *Multi) Add(id string, keys ...string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		b, ok := m.buckets[k]
		if !ok {
			b = make(map[string]struct{})
			m.buckets[k] = b
		}
		b[id] = struct{}{}
	}
}

// Remove drops id from every key. Buckets left empty are deleted.
func (m *Multi) Remove(id string, keys ...string) {
	for _, k := range keys {
		b, ok := m.buckets[k]
		if !ok {
			continue
		}
		delete(b, id)
		if len(b) == 0 {
			delete(m.buckets, k)
		}
	}
}

// Move applies an old -> new key-set transition for id: id leaves every key
// only in old and joins every key only in next. Keys present in both are
// not touched.
func (m *Multi) Move(id string, old, next []string) {
	removed, added := Diff(old, next)
	m.Remove(id, removed...)
	m.Add(id, added...)
}

// Get returns the ids under key, sorted.
func (m *Multi) Get(key string) []string {
	b := m.buckets[key]
	if len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(b))
	for id := range b {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of ids under key.
func (m *Multi) Count(key string) int {
	return len(m.buckets[key])
}

// Contains reports whether id is registered under key.
func (m *Multi) Contains(key, id string) bool {
	_, ok := m.buckets[key][id]
	return ok
}

// Keys returns every non-empty key, sorted.
func (m *Multi) Keys() []string {
	out := make([]string, 0, len(m.buckets))
	for k := range m.buckets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of non-empty keys.
func (m *Multi) Len() int { return len(m.buckets) }

// Snapshot returns a deep copy of the index as key -> sorted ids.
func (m *Multi) Snapshot() map[string][]string {
	out := make(map[string][]string, len(m.buckets))
	for k := range m.buckets {
		out[k] = m.Get(k)
	}
	return out
}
