package model

// Store collection names of the mirrored record types.
const (
	AccountsCollection   = "accounts"
	AuthsCollection      = "auths"
	CharactersCollection = "characters"
	OriginsCollection    = "origins"
	EventsCollection     = "events"
)
