package model

import (
	"errors"
	"time"
)

// ErrMissingID marks a document without a usable id.
var ErrMissingID = errors.New("missing id")

// Stamps is the createdAt/updatedAt pair every mirrored record carries.
type Stamps struct {
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt" yaml:"updatedAt"`
}

// RecordTimes returns the created and updated stamps.
func (s Stamps) RecordTimes() (created, updated time.Time) {
	return s.CreatedAt, s.UpdatedAt
}

// Touch sets UpdatedAt to now, and CreatedAt too when unset.
func (s *Stamps) Touch(now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}
