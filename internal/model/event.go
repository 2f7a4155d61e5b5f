package model

import (
	"fmt"
	"time"
)

// Event types recorded by the backend.
const (
	EventInfo  = "info"
	EventWarn  = "warn"
	EventMerge = "merge"
)

// Event is a system event shown on the admin dashboard.
type Event struct {
	ID      string `json:"id" bson:"_id" yaml:"id"`
	Type    string `json:"type" bson:"type" yaml:"type"`
	Server  string `json:"server,omitempty" bson:"server,omitempty" yaml:"server,omitempty"`
	Message string `json:"message" bson:"message" yaml:"message"`
	Desc    string `json:"desc,omitempty" bson:"desc,omitempty" yaml:"desc,omitempty"`
	Account string `json:"account,omitempty" bson:"account,omitempty" yaml:"account,omitempty"`
	Origin  string `json:"origin,omitempty" bson:"origin,omitempty" yaml:"origin,omitempty"`
	Count   int    `json:"count" bson:"count" yaml:"count"`
	Stamps  `bson:",inline" yaml:",inline"`
}

// RecordID returns the event id.
func (e *Event) RecordID() string { return e.ID }

// EventView is the snapshot sent to subscribers.
type EventView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Server    string    `json:"server,omitempty"`
	Message   string    `json:"message"`
	Desc      string    `json:"desc,omitempty"`
	Account   string    `json:"account,omitempty"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EventID keys a mirrored event.
func EventID(e *Event) string { return e.ID }

// EventStamp returns the watermark stamp of an event.
func EventStamp(e *Event) time.Time { return e.UpdatedAt }

// CleanEvent builds the subscriber snapshot.
func CleanEvent(e *Event) EventView {
	return EventView{
		ID:        e.ID,
		Type:      e.Type,
		Server:    e.Server,
		Message:   e.Message,
		Desc:      e.Desc,
		Account:   e.Account,
		Count:     e.Count,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// FixEvent canonicalizes a fetched event in place.
func FixEvent(e *Event) error {
	e.ID = NormalizeID(e.ID)
	if e.ID == "" {
		return fmt.Errorf("event: %w", ErrMissingID)
	}
	e.Account = NormalizeID(e.Account)
	if e.Count < 1 {
		e.Count = 1
	}
	return nil
}
