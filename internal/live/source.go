package live

import (
	"context"
	"sync"
	"time"
)

// Filter is an equality filter over top-level document fields.
// An empty filter matches every document.
type Filter map[string]any

// Row is one stored document returned by FindChangedSince: its stored
// stamp and either the decoded record or the error that prevented
// decoding it.
type Row[T any] struct {
	ID    string
	Stamp time.Time
	Item  *T
	Err   error
}

// Source is the document store slice a Collection mirrors.
//
// Implementations must return FindChangedSince results ordered by updatedAt
// ascending (ties broken by id) and use strict greater-than semantics on
// since. Stamps need not be unique across documents.
type Source[T any] interface {
	// FindChangedSince returns up to limit documents with updatedAt > since,
	// one Row per stored document, including those that failed to decode.
	// A limit <= 0 means no limit.
	FindChangedSince(ctx context.Context, since time.Time, limit int) ([]Row[T], error)

	// Find returns every document matching filter.
	Find(ctx context.Context, filter Filter) ([]*T, error)

	// Delete removes the document with the given id.
	Delete(ctx context.Context, id string) error

	// ListIDs returns the ids of every stored document.
	ListIDs(ctx context.Context) ([]string, error)
}

// Clock supplies wall-clock time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Executor runs fn on the goroutine that owns a Collection and waits for it
// to finish. Exec returns an error only if fn could not be scheduled.
type Executor interface {
	Exec(ctx context.Context, fn func()) error
}

// Inline runs fn on the calling goroutine. It is the executor for a
// Collection that is owned by a single goroutine doing its own polling.
type Inline struct {
	mu sync.Mutex
}

// Exec runs fn immediately, serialized against other Exec calls.
func (e *Inline) Exec(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
	return nil
}

// Observer receives instrumentation callbacks. All methods must be cheap
// and non-blocking.
type Observer interface {
	PollCompleted(collection string, documents int)
	PollFailed(collection string)
	RecordSkipped(collection string)
	ListenerPanicked(collection string)
	Mirrored(collection string, items int)
}

type nopObserver struct{}

func (nopObserver) PollCompleted(string, int) {}
func (nopObserver) PollFailed(string)         {}
func (nopObserver) RecordSkipped(string)      {}
func (nopObserver) ListenerPanicked(string)   {}
func (nopObserver) Mirrored(string, int)      {}
