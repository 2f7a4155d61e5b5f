// Package replica wires the mirrored collections of the game backend
// together and keeps the state derived from them consistent.
//
// ARCHITECTURE:
//
// Single-Writer Loop:
// A Replica owns five live.Collections (accounts, origins, auths,
// characters, events), the secondary indices over accounts, the per-account
// child lists, and the unassigned-child queues. All of that state is touched
// only by closures run on the Replica's loop (Run). Pollers query the store
// on their own goroutines and hand the apply half to the loop through Exec;
// external callers use Exec the same way.
//
// Thread-safety model:
//   - Exec(): safe from any goroutine, must not be called from the loop
//   - Run(): must be called from exactly one goroutine
//   - every other method: loop only (inside Exec, or from a hook/listener)
//
// Cross-references:
// Account hooks move the account between index buckets by key-set
// difference. Character and auth hooks attach the child to its account's
// ordered list, or park it in an unassigned queue until the account
// appears; every applied account batch sweeps the queues once.
//
// Relations:
// Per-account child lists are exposed as live.ObservableLists held in
// live.Arenas, so a list exists only while somebody subscribes to it.
package replica
