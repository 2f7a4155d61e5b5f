package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalEmail folds an address to the form used as an index key:
// NFKC-normalized, trimmed, lower-cased. Returns "" for input without an
// '@' between non-empty local and domain parts.
func CanonicalEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return ""
	}
	return e
}

// CanonicalEmails canonicalizes a list, dropping invalid entries and
// duplicates while keeping first-seen order.
func CanonicalEmails(emails []string) []string {
	if len(emails) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, raw := range emails {
		e := CanonicalEmail(raw)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CanonicalDevice normalizes a browser/device identifier.
func CanonicalDevice(id string) string {
	return strings.TrimSpace(norm.NFC.String(id))
}

// foldName is the collation key for ordering by display name.
func foldName(name string) string {
	return strings.ToLower(norm.NFKC.String(name))
}
