// Package harness runs replica conformance scenarios.
//
// A scenario drives a Replica over in-memory sources with a manual clock:
// it writes documents into the backing store, polls, prunes, subscribes to
// accounts, relations and origins, and finally asserts on the mirrored
// state. Every delivery a subscription receives is recorded in the trace,
// which can be compared against a golden transcript.
//
// # Scenario Format
//
//	name: reparent_character
//	description: "A character follows its account change"
//	page_size: 2
//	steps:
//	  - put:
//	      accounts: [{id: a, name: Applejack}]
//	      characters: [{id: c1, account: a, name: Star}]
//	  - poll: true
//	  - subscribe: {label: chars-a, account: a, relation: characters}
//	  - drop: {characters: [c1]}
//	  - prune: true
//	assertions:
//	  - type: children
//	    account: a
//	    relation: characters
//	    ids: []
//
// Records put without an updatedAt are stamped with the current clock
// time; the clock advances by one millisecond after every step, so later
// writes always carry later stamps.
//
// # Assertion Types
//
//   - index: the ids under a key of the email, device or note index
//   - children: the ordered child ids of an account's relation
//   - unassigned: the child ids waiting for their account
//   - mirrored: the ids mirrored by a collection
//   - trace_count: how many deliveries a subscription received
//   - trace_last: the last delivery of a subscription
package harness
