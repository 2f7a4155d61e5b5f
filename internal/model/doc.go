// Package model defines the mirrored record types of the game backend
// (accounts, login providers, characters, origins, system events), their
// clean views, the fix functions that canonicalize freshly fetched
// documents, and the comparators used to order child records under their
// account.
package model
