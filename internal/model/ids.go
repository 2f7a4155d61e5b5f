package model

import (
	"net/netip"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces ids for new documents.
// Implemented by UUIDv7 (production) and FixedIDs (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7 generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// NewID returns a hyphenated lower-case UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedIDs returns predetermined ids, for deterministic tests.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator that returns ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// NewID returns the next predetermined id.
// Panics when exhausted so that a misconfigured test fails fast.
func (g *FixedIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedIDs: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// NormalizeID canonicalizes a record id: UUIDs become their lower-case
// hyphenated form, anything else is trimmed and lower-cased.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return strings.ToLower(id)
}

// NormalizeIP canonicalizes an origin address. Unparseable input is
// trimmed and lower-cased.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().String()
	}
	return strings.ToLower(ip)
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ExtractRefs returns every record id referenced in free text, normalized
// and deduplicated in order of appearance. self is excluded.
//
// Only UUIDs are recognized, the shape of ids the backend issues. Other ids
// accepted by NormalizeID, such as "a1", are indistinguishable from
// ordinary words in a note and are never returned.
func ExtractRefs(text, self string) []string {
	matches := uuidPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var refs []string
	for _, m := range matches {
		id := NormalizeID(m)
		if id == self {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, id)
	}
	return refs
}
