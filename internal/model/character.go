package model

import (
	"cmp"
	"fmt"
	"strings"
	"time"
)

// Character is a playable pony owned by an account.
type Character struct {
	ID       string    `json:"id" bson:"_id" yaml:"id"`
	Account  string    `json:"account,omitempty" bson:"account,omitempty" yaml:"account,omitempty"`
	Name     string    `json:"name" bson:"name" yaml:"name"`
	Tag      string    `json:"tag,omitempty" bson:"tag,omitempty" yaml:"tag,omitempty"`
	Info     string    `json:"info,omitempty" bson:"info,omitempty" yaml:"info,omitempty"`
	LastUsed time.Time `json:"lastUsed" bson:"lastUsed" yaml:"lastUsed"`
	Stamps   `bson:",inline" yaml:",inline"`
}

// RecordID returns the character id.
func (c *Character) RecordID() string { return c.ID }

// CharacterView is the snapshot sent to subscribers. Info is the encoded
// appearance blob and is left out.
type CharacterView struct {
	ID       string    `json:"id"`
	Account  string    `json:"account,omitempty"`
	Name     string    `json:"name"`
	Tag      string    `json:"tag,omitempty"`
	LastUsed time.Time `json:"lastUsed"`
}

// CharacterID keys a mirrored character.
func CharacterID(c *Character) string { return c.ID }

// CharacterStamp returns the watermark stamp of a character.
func CharacterStamp(c *Character) time.Time { return c.UpdatedAt }

// CharacterParent returns the declared owning account.
func CharacterParent(c *Character) string { return c.Account }

// CleanCharacter builds the subscriber snapshot.
func CleanCharacter(c *Character) CharacterView {
	return CharacterView{
		ID:       c.ID,
		Account:  c.Account,
		Name:     c.Name,
		Tag:      c.Tag,
		LastUsed: c.LastUsed,
	}
}

// FixCharacter canonicalizes a fetched character in place.
func FixCharacter(c *Character) error {
	c.ID = NormalizeID(c.ID)
	if c.ID == "" {
		return fmt.Errorf("character: %w", ErrMissingID)
	}
	c.Account = NormalizeID(c.Account)
	c.Name = strings.TrimSpace(c.Name)
	return nil
}

// CompareCharacters orders characters by name, then id.
func CompareCharacters(a, b *Character) int {
	if c := cmp.Compare(foldName(a.Name), foldName(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
