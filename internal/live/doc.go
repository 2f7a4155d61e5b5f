// Package live implements the incremental mirror of a remote document
// collection.
//
// A Collection polls its Source for documents changed after a watermark,
// diffs them against an in-memory map, fires lifecycle hooks, and fans the
// cleaned snapshots out to per-id listeners.
//
// ARCHITECTURE:
//
// Single-Writer Model:
// A Collection is not safe for concurrent mutation. Exactly one goroutine
// (the owner) calls Apply, Add, Removed, Subscribe, and the hooks run on that
// goroutine. The Poller splits every poll into two halves:
//   - Pull: the store query, run on the poller goroutine
//   - Apply: the in-memory diff, handed to an Executor that runs it on the
//     owning goroutine
//
// A poll never starts while the previous poll of the same collection is in
// flight, and the next tick is scheduled only after the current one settles.
//
// Watermark:
// The watermark is the largest updatedAt stamp known to be fully processed.
// Pull never advances it beyond documents it actually returned, and a failed
// Pull leaves it unchanged so the next tick retries the same window.
//
// Listener fan-out:
// Listeners are invoked synchronously over a stable snapshot of the registry,
// so a callback may subscribe or unsubscribe (itself or others) without
// skipping or double-delivering the in-flight pass. A listener that panics is
// logged and the fan-out continues.
//
// Projections:
// ObservableList re-maps a backing slice to every subscriber after each
// mutation; Arena reference-counts those lists so that they exist only while
// somebody watches them.
package live
