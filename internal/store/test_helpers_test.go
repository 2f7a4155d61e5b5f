package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testDoc is a minimal Record for store tests.
type testDoc struct {
	ID        string    `json:"id"`
	Account   string    `json:"account,omitempty"`
	Name      string    `json:"name"`
	Disabled  bool      `json:"disabled,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *testDoc) RecordID() string { return d.ID }

func (d *testDoc) RecordTimes() (time.Time, time.Time) { return d.CreatedAt, d.UpdatedAt }

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// at returns base plus ms milliseconds.
func at(ms int) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

func newTestDoc(id string, updatedMs int) *testDoc {
	return &testDoc{ID: id, Name: id, CreatedAt: at(0), UpdatedAt: at(updatedMs)}
}
