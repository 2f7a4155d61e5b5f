// Package dupes detects duplicate accounts and schedules their merge.
//
// Accounts are queued when they change. Each run pops the most recently
// touched account first, looks for older accounts sharing its device id,
// and hands at most a bounded number of pairs to the merge transport.
//
// Thread-safety model:
//   - Touched(), Check(): owner goroutine only (the replica loop)
//   - Run(), Loop(): any goroutine; queue access goes through the Executor
package dupes
