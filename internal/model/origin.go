package model

import (
	"fmt"
	"time"
)

// UnknownCountry is the country of an origin nothing is known about yet.
const UnknownCountry = "??"

// Origin holds what is known about one client address.
type Origin struct {
	ID      string `json:"id" bson:"_id" yaml:"id"`
	IP      string `json:"ip" bson:"ip" yaml:"ip"`
	Country string `json:"country,omitempty" bson:"country,omitempty" yaml:"country,omitempty"`
	Banned  bool   `json:"banned,omitempty" bson:"banned,omitempty" yaml:"banned,omitempty"`
	Mute    bool   `json:"mute,omitempty" bson:"mute,omitempty" yaml:"mute,omitempty"`
	Stamps  `bson:",inline" yaml:",inline"`
}

// RecordID returns the origin id (its address).
func (o *Origin) RecordID() string { return o.ID }

// OriginView is the snapshot sent to subscribers. Last is filled in by the
// origins relation from the account's own reference.
type OriginView struct {
	IP      string    `json:"ip"`
	Country string    `json:"country"`
	Banned  bool      `json:"banned,omitempty"`
	Mute    bool      `json:"mute,omitempty"`
	Last    time.Time `json:"last,omitzero"`
}

// OriginID keys a mirrored origin.
func OriginID(o *Origin) string { return o.ID }

// OriginStamp returns the watermark stamp of an origin.
func OriginStamp(o *Origin) time.Time { return o.UpdatedAt }

// CleanOrigin builds the subscriber snapshot.
func CleanOrigin(o *Origin) OriginView {
	country := o.Country
	if country == "" {
		country = UnknownCountry
	}
	return OriginView{IP: o.IP, Country: country, Banned: o.Banned, Mute: o.Mute}
}

// FixOrigin canonicalizes a fetched origin in place. The id is the address.
func FixOrigin(o *Origin) error {
	if o.IP == "" {
		o.IP = o.ID
	}
	o.IP = NormalizeIP(o.IP)
	o.ID = o.IP
	if o.ID == "" {
		return fmt.Errorf("origin: %w", ErrMissingID)
	}
	return nil
}

// PlaceholderOrigin is the record synthesized for an address with no
// findings yet.
func PlaceholderOrigin(ip string) *Origin {
	ip = NormalizeIP(ip)
	if ip == "" {
		return nil
	}
	return &Origin{ID: ip, IP: ip, Country: UnknownCountry}
}
